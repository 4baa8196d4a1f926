// Package redislock implements identity.Locker on top of Redis so several
// service replicas serialize account mutations against the same key space.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL        = 15 * time.Second
	DefaultRetryDelay = 25 * time.Millisecond
	DefaultPrefix     = "lock:"
)

// release deletes the key only while it still holds our token
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// ErrNotAcquired is returned when the lock could not be taken before ctx ended
var ErrNotAcquired = errors.New("redislock: lock not acquired")

// Client is the subset of redis.UniversalClient used by the locker
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Option configures a Locker
type Option func(*Locker)

// WithTTL sets how long a lock survives a crashed holder
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryDelay sets the poll interval while waiting for a held lock
func WithRetryDelay(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithPrefix namespaces lock keys
func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

// WithLogger sets the logger used for release failures
func WithLogger(logger identity.Logger) Option {
	return func(l *Locker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Locker is a Redis backed identity.Locker
type Locker struct {
	client Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger identity.Logger
}

var _ identity.Locker = (*Locker)(nil)

// New creates a Locker
func New(client Client, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		ttl:    DefaultTTL,
		retry:  DefaultRetryDelay,
		prefix: DefaultPrefix,
		logger: identity.NopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// NewClient connects to Redis and checks the connection
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Lock blocks until key is acquired or ctx is done
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("redislock: acquire %s: %w", key, err)
		}
		if ok {
			return l.unlocker(ctx, fullKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlocker(ctx context.Context, key, token string) func() {
	return func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.ttl)
		defer cancel()

		if err := l.client.Eval(relCtx, releaseScript, []string{key}, token).Err(); err != nil {
			l.logger.Error("failed to release lock", "key", key, "error", err)
		}
	}
}
