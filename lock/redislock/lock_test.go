package redislock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-identity/lock/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis emulates SET NX and the release script in memory
type fakeRedis struct {
	mu       sync.Mutex
	keys     map[string]string
	ttls     map[string]time.Duration
	setErr   error
	releases int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, held := f.keys[key]; held {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) held(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.keys[key]
	return ok
}

func TestLocker_LockUnlock(t *testing.T) {
	rdb := newFakeRedis()
	l := redislock.New(rdb, redislock.WithTTL(time.Minute), redislock.WithPrefix("test:"))

	unlock, err := l.Lock(context.Background(), "identity:account:1")
	require.NoError(t, err)
	assert.True(t, rdb.held("test:identity:account:1"))
	assert.Equal(t, time.Minute, rdb.ttls["test:identity:account:1"])

	unlock()
	assert.False(t, rdb.held("test:identity:account:1"))
	assert.Equal(t, 1, rdb.releases)
}

func TestLocker_WaitsForHolder(t *testing.T) {
	rdb := newFakeRedis()
	l := redislock.New(rdb, redislock.WithRetryDelay(time.Millisecond))

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := l.Lock(context.Background(), "k")
		if err == nil {
			second()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestLocker_ContextDone(t *testing.T) {
	rdb := newFakeRedis()
	l := redislock.New(rdb, redislock.WithRetryDelay(time.Millisecond))

	_, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, redislock.ErrNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocker_ClientError(t *testing.T) {
	rdb := newFakeRedis()
	rdb.setErr = errors.New("connection reset")
	l := redislock.New(rdb)

	_, err := l.Lock(context.Background(), "k")
	assert.ErrorIs(t, err, rdb.setErr)
}

func TestLocker_StaleUnlockKeepsNewHolder(t *testing.T) {
	rdb := newFakeRedis()
	l := redislock.New(rdb)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// simulate expiry followed by another holder
	rdb.mu.Lock()
	rdb.keys["lock:k"] = "someone-else"
	rdb.mu.Unlock()

	unlock()
	assert.True(t, rdb.held("lock:k"))
}
