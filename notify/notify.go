// Package notify provides identity.Notifier implementations: SMTP email, a
// log backed notifier for development and a fan out combinator.
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-identity"
)

// LogNotifier records issued codes in the log. The code itself is masked
// unless RevealCodes was called.
type LogNotifier struct {
	logger identity.Logger
	reveal bool
}

// NewLogNotifier creates a log notifier
func NewLogNotifier(logger identity.Logger) *LogNotifier {
	if logger == nil {
		logger = identity.NopLogger()
	}
	return &LogNotifier{logger: logger}
}

// RevealCodes makes the notifier log plaintext codes. Development only.
func (n *LogNotifier) RevealCodes() *LogNotifier {
	n.reveal = true
	return n
}

// SendOTP implements identity.Notifier
func (n *LogNotifier) SendOTP(_ context.Context, dest identity.Destination, code string, purpose identity.OTPPurpose) error {
	n.logger.Info("otp issued",
		"account_id", dest.AccountID,
		"email", dest.Email,
		"purpose", string(purpose),
		"code", n.maskCode(code),
	)
	return nil
}

func (n *LogNotifier) maskCode(code string) string {
	if n.reveal {
		return code
	}
	return strings.Repeat("*", len(code))
}

// Multi delivers to every notifier and joins their errors
type Multi []identity.Notifier

// SendOTP implements identity.Notifier
func (m Multi) SendOTP(ctx context.Context, dest identity.Destination, code string, purpose identity.OTPPurpose) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.SendOTP(ctx, dest, code, purpose); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
