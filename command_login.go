package identity

import (
	"context"
	"errors"
)

// LoginHandler authenticates accounts
type LoginHandler struct {
	svc *Service
}

func (h *LoginHandler) Execute(ctx context.Context, msg LoginMessage) (*AccountResult, error) {
	select {
	case <-ctx.Done():
		return nil, cancelledError(ctx, "login")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *LoginHandler) execute(ctx context.Context, msg LoginMessage) (*AccountResult, error) {
	s := h.svc
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	msg.Email = NormalizeEmail(msg.Email)
	if err := msg.Validate(); err != nil {
		return nil, ValidationError(err, "invalid login request")
	}

	account, err := s.mutateByEmail(ctx, msg.Email, func(ctx context.Context, account *Account) error {
		// deactivation is only revealed to callers holding the password
		if err := s.hasher.Verify(msg.Password, account.PasswordHash); err != nil {
			return ErrInvalidCredentials
		}
		if err := s.stateMachine.EnsureCanLogin(account); err != nil {
			return err
		}
		now := s.now().UTC()
		account.LastLoginAt = &now
		account.UpdatedAt = now
		return s.store.Save(ctx, account)
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.equalizeTiming(msg.Password)
			err = ErrInvalidCredentials
		}
		s.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{Type: "unknown"},
			Metadata: map[string]any{
				"identifier": msg.Email,
				"error":      KindOf(err),
			},
		})
		return nil, publicResult(err)
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		s.logger.Error("login token issue failed", "account_id", account.ID.String(), "error", err)
		return nil, publicResult(err)
	}

	s.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     AccountActor(account),
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"verified": account.IsVerified(),
		},
	})

	return newAccountResult(account, &token), nil
}
