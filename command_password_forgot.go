package identity

import (
	"context"
)

// ForgotPasswordHandler issues password reset codes
type ForgotPasswordHandler struct {
	svc *Service
}

func (h *ForgotPasswordHandler) Execute(ctx context.Context, msg ForgotPasswordMessage) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx, "password reset request")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *ForgotPasswordHandler) execute(ctx context.Context, msg ForgotPasswordMessage) error {
	s := h.svc
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	msg.Email = NormalizeEmail(msg.Email)
	if err := msg.Validate(); err != nil {
		return ValidationError(err, "invalid password reset request")
	}

	var rec OTPRecord
	account, err := s.mutateByEmail(ctx, msg.Email, func(ctx context.Context, account *Account) error {
		var err error
		if rec, err = s.issueOTP(account, OTPPurposePasswordReset); err != nil {
			return err
		}
		return s.store.Save(ctx, account)
	})
	if err != nil {
		return publicResult(err)
	}

	s.dispatchOTP(ctx, account, rec)
	return nil
}
