package identity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type logEntry struct {
	level string
	msg   string
}

// recordingLogger keeps messages for assertions
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e.msg)
		}
	}
	return out
}

func TestDispatcherDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	delivered := make(chan string, 1)
	notifier := identity.NotifierFunc(func(ctx context.Context, dest identity.Destination, code string, _ identity.OTPPurpose) error {
		<-release
		delivered <- dest.Email + ":" + code
		return nil
	})

	d := identity.NewDispatcher(notifier, time.Second, identity.NopLogger())

	done := make(chan struct{})
	go func() {
		d.Dispatch(context.Background(), identity.Destination{Email: "a@example.com"}, "123456", identity.OTPPurposeVerification)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on delivery")
	}

	close(release)
	d.Wait()
	assert.Equal(t, "a@example.com:123456", <-delivered)
}

func TestDispatcherDetachesFromRequestContext(t *testing.T) {
	var (
		gotErr      error
		hasDeadline bool
	)
	notifier := identity.NotifierFunc(func(ctx context.Context, _ identity.Destination, _ string, _ identity.OTPPurpose) error {
		gotErr = ctx.Err()
		_, hasDeadline = ctx.Deadline()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := identity.NewDispatcher(notifier, 0, identity.NopLogger())
	d.Dispatch(ctx, identity.Destination{}, "123456", identity.OTPPurposePasswordReset)
	d.Wait()

	assert.NoError(t, gotErr)
	assert.True(t, hasDeadline)
}

func TestDispatcherLogsFailures(t *testing.T) {
	notifier := &MockNotifier{}
	notifier.On("SendOTP", mock.Anything, mock.Anything, "123456", identity.OTPPurposeVerification).
		Return(errors.New("smtp down")).Once()

	logger := &recordingLogger{}
	d := identity.NewDispatcher(notifier, time.Second, logger)
	d.Dispatch(context.Background(), identity.Destination{AccountID: "acc"}, "123456", identity.OTPPurposeVerification)
	d.Wait()

	notifier.AssertExpectations(t)
	assert.Equal(t, []string{"notification delivery failed"}, logger.messages("error"))
}

func TestDispatcherRecoversPanics(t *testing.T) {
	notifier := identity.NotifierFunc(func(context.Context, identity.Destination, string, identity.OTPPurpose) error {
		panic("template exploded")
	})

	logger := &recordingLogger{}
	d := identity.NewDispatcher(notifier, time.Second, logger)
	require.NotPanics(t, func() {
		d.Dispatch(context.Background(), identity.Destination{}, "123456", identity.OTPPurposeVerification)
		d.Wait()
	})
	assert.Equal(t, []string{"notification delivery panicked"}, logger.messages("error"))
}

func TestDispatcherWithoutNotifier(t *testing.T) {
	logger := &recordingLogger{}
	d := identity.NewDispatcher(nil, time.Second, logger)
	d.Dispatch(context.Background(), identity.Destination{}, "123456", identity.OTPPurposeVerification)
	d.Wait()
	assert.Empty(t, logger.messages("error"))
}

func TestDestinationFor(t *testing.T) {
	account := &identity.Account{Email: "a@example.com", Phone: "+12015550123", FirstName: "Alice"}
	dest := identity.DestinationFor(account)
	assert.Equal(t, account.ID.String(), dest.AccountID)
	assert.Equal(t, "a@example.com", dest.Email)
	assert.Equal(t, "+12015550123", dest.Phone)
	assert.Equal(t, "Alice", dest.Name)
}
