package identity

import (
	"context"
)

// VerifyAccountHandler consumes verification codes
type VerifyAccountHandler struct {
	svc *Service
}

func (h *VerifyAccountHandler) Execute(ctx context.Context, msg VerifyAccountMessage) (*AccountResult, error) {
	select {
	case <-ctx.Done():
		return nil, cancelledError(ctx, "account verification")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *VerifyAccountHandler) execute(ctx context.Context, msg VerifyAccountMessage) (*AccountResult, error) {
	s := h.svc
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	msg.Email = NormalizeEmail(msg.Email)
	if err := msg.Validate(); err != nil {
		return nil, ValidationError(err, "invalid verification request")
	}

	account, err := s.mutateByEmail(ctx, msg.Email, func(ctx context.Context, account *Account) error {
		if account.IsVerified() {
			return ErrAlreadyVerified
		}
		// clearing the slot and flipping the flag land in the same Save
		if err := s.consumeOTP(account, OTPPurposeVerification, msg.Code); err != nil {
			return err
		}
		_, err := s.stateMachine.Verify(ctx, AccountActor(account), account,
			WithTransitionReason("verification code accepted"),
		)
		return err
	})
	if err != nil {
		return nil, publicResult(err)
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		s.logger.Error("verification token issue failed", "account_id", account.ID.String(), "error", err)
		return nil, publicResult(err)
	}

	return newAccountResult(account, &token), nil
}
