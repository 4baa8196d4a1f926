package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ChangePasswordHandler rotates passwords of authenticated accounts
type ChangePasswordHandler struct {
	svc *Service
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, msg ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return cancelledError(ctx, "password change")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, msg ChangePasswordMessage) error {
	s := h.svc

	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return ErrUnauthenticated
	}
	// callers may only change their own password
	if msg.AccountID != uuid.Nil && msg.AccountID != accountID {
		return ErrUnauthenticated
	}
	msg.AccountID = accountID

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	if err := msg.Validate(); err != nil {
		return ValidationError(err, "invalid password change request")
	}

	hash, err := s.hasher.Hash(msg.NewPassword)
	if err != nil {
		return publicResult(err)
	}

	account, err := s.mutateByID(ctx, accountID, func(ctx context.Context, account *Account) error {
		// tokens outlive deactivation
		if err := s.stateMachine.EnsureCanLogin(account); err != nil {
			return err
		}
		if err := s.hasher.Verify(msg.CurrentPassword, account.PasswordHash); err != nil {
			return ErrIncorrectCurrentPassword
		}
		now := s.now().UTC()
		account.PasswordHash = hash
		account.PasswordChangedAt = &now
		account.UpdatedAt = now
		return s.store.Save(ctx, account)
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrUnauthenticated
		}
		return publicResult(err)
	}

	s.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     AccountActor(account),
		AccountID: account.ID.String(),
	})
	return nil
}
