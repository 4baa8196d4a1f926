package identity

import (
	"context"
	"sync"
	"time"
)

// DefaultNotificationTimeout bounds a single out of band delivery
const DefaultNotificationTimeout = 5 * time.Second

// Destination is where a code is delivered
type Destination struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Name      string `json:"name,omitempty"`
}

// DestinationFor builds the delivery target of an account
func DestinationFor(a *Account) Destination {
	return Destination{
		AccountID: a.ID.String(),
		Email:     a.Email,
		Phone:     a.Phone,
		Name:      a.FirstName,
	}
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, dest Destination, code string, purpose OTPPurpose) error

// SendOTP implements Notifier
func (f NotifierFunc) SendOTP(ctx context.Context, dest Destination, code string, purpose OTPPurpose) error {
	if f == nil {
		return nil
	}
	return f(ctx, dest, code, purpose)
}

type noopNotifier struct{}

func (noopNotifier) SendOTP(context.Context, Destination, string, OTPPurpose) error {
	return nil
}

// Dispatcher delivers notifications fire and forget. The caller never waits
// and never sees a delivery error; failures are logged. Each delivery runs
// on its own goroutine with a context detached from the request and bounded
// by the timeout.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   Logger
	wg       sync.WaitGroup
}

// NewDispatcher returns a dispatcher around notifier
func NewDispatcher(notifier Notifier, timeout time.Duration, logger Logger) *Dispatcher {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if timeout <= 0 {
		timeout = DefaultNotificationTimeout
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		logger:   normalizeLogger(logger),
	}
}

// Dispatch schedules delivery and returns immediately
func (d *Dispatcher) Dispatch(ctx context.Context, dest Destination, code string, purpose OTPPurpose) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("notification delivery panicked", "account_id", dest.AccountID, "purpose", purpose, "panic", r)
			}
		}()

		if err := d.notifier.SendOTP(sendCtx, dest, code, purpose); err != nil {
			d.logger.Error("notification delivery failed", "account_id", dest.AccountID, "purpose", purpose, "error", err)
			return
		}
		d.logger.Debug("notification delivered", "account_id", dest.AccountID, "purpose", purpose)
	}()
}

// Wait blocks until all scheduled deliveries finished. Used on shutdown and
// in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
