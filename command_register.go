package identity

import (
	"context"
	"errors"
	"strings"
)

// RegisterHandler creates accounts
type RegisterHandler struct {
	svc *Service
}

func (h *RegisterHandler) Execute(ctx context.Context, msg RegisterMessage) (*AccountResult, error) {
	select {
	case <-ctx.Done():
		return nil, cancelledError(ctx, "account registration")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *RegisterHandler) execute(ctx context.Context, msg RegisterMessage) (*AccountResult, error) {
	s := h.svc
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	msg.Email = NormalizeEmail(msg.Email)
	msg.FirstName = strings.TrimSpace(msg.FirstName)
	msg.LastName = strings.TrimSpace(msg.LastName)
	if msg.Role == "" {
		msg.Role = RoleCustomer
	}

	if err := msg.Validate(); err != nil {
		return nil, ValidationError(err, "invalid registration request")
	}

	phone, err := NormalizePhone(msg.Phone, s.phoneRegion)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(msg.Password)
	if err != nil {
		return nil, publicResult(err)
	}

	unlock, err := s.locker.Lock(ctx, registrationLockKey(msg.Email))
	if err != nil {
		return nil, DependencyError(err, "could not acquire registration lock")
	}
	defer unlock()

	now := s.now().UTC()
	account := &Account{
		ID:           s.newAccountID(msg.Email),
		Email:        msg.Email,
		Phone:        phone,
		FirstName:    msg.FirstName,
		LastName:     msg.LastName,
		PasswordHash: hash,
		Role:         msg.Role,
		Verification: VerificationUnverified,
		Activation:   ActivationActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	rec, err := s.issueOTP(account, OTPPurposeVerification)
	if err != nil {
		return nil, publicResult(err)
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx AccountStore) error {
		if _, err := tx.FindByEmail(ctx, account.Email); err == nil {
			return ErrDuplicateEmail
		} else if !errors.Is(err, ErrAccountNotFound) {
			return DependencyError(err, "could not look up account")
		}

		created, err := tx.Create(ctx, account)
		if err != nil {
			return err
		}
		account = created

		if _, err := tx.CreateProfile(ctx, account.Role, account.ID); err != nil {
			return DependencyError(err, "could not create role profile")
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateEmail) {
			s.logger.Error("account registration failed", "email", msg.Email, "error", err)
		}
		return nil, publicResult(err)
	}

	s.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor:     AccountActor(account),
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"role": string(account.Role),
		},
	})
	s.dispatchOTP(ctx, account, rec)

	return newAccountResult(account, nil), nil
}

func registrationLockKey(email string) string {
	return "identity:register:" + email
}
