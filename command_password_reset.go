package identity

import (
	"context"
)

// ResetPasswordHandler consumes reset codes and stores the new password
type ResetPasswordHandler struct {
	svc *Service
}

func (h *ResetPasswordHandler) Execute(ctx context.Context, msg ResetPasswordMessage) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx, "password reset")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *ResetPasswordHandler) execute(ctx context.Context, msg ResetPasswordMessage) error {
	s := h.svc
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	msg.Email = NormalizeEmail(msg.Email)
	if err := msg.Validate(); err != nil {
		return ValidationError(err, "invalid password reset request")
	}

	hash, err := s.hasher.Hash(msg.NewPassword)
	if err != nil {
		return publicResult(err)
	}

	account, err := s.mutateByEmail(ctx, msg.Email, func(ctx context.Context, account *Account) error {
		if err := s.consumeOTP(account, OTPPurposePasswordReset, msg.Code); err != nil {
			return err
		}
		now := s.now().UTC()
		account.PasswordHash = hash
		account.PasswordChangedAt = &now
		account.UpdatedAt = now
		return s.store.Save(ctx, account)
	})
	if err != nil {
		return publicResult(err)
	}

	s.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		Actor:     AccountActor(account),
		AccountID: account.ID.String(),
	})
	return nil
}
