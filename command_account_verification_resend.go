package identity

import (
	"context"
)

// ResendVerificationHandler reissues verification codes
type ResendVerificationHandler struct {
	svc *Service
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, msg ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx, "verification resend")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *ResendVerificationHandler) execute(ctx context.Context, msg ResendVerificationMessage) error {
	s := h.svc
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	msg.Email = NormalizeEmail(msg.Email)
	if err := msg.Validate(); err != nil {
		return ValidationError(err, "invalid verification resend request")
	}

	var rec OTPRecord
	account, err := s.mutateByEmail(ctx, msg.Email, func(ctx context.Context, account *Account) error {
		if account.IsVerified() {
			return ErrAlreadyVerified
		}
		var err error
		if rec, err = s.issueOTP(account, OTPPurposeVerification); err != nil {
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
