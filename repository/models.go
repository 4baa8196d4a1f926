package repository

import (
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountModel is the Bun model for accounts. OTP slots are flattened into
// nullable columns; a slot is present when its code column is not null.
type AccountModel struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID                       uuid.UUID  `bun:"id,pk,nullzero,type:uuid"`
	Email                    string     `bun:"email,notnull"`
	Phone                    string     `bun:"phone,nullzero"`
	FirstName                string     `bun:"first_name,notnull"`
	LastName                 string     `bun:"last_name,notnull"`
	PasswordHash             string     `bun:"password_hash,notnull"`
	Role                     string     `bun:"role,notnull"`
	Verification             string     `bun:"verification,notnull"`
	Activation               string     `bun:"activation,notnull"`
	VerificationOTPCode      string     `bun:"verification_otp_code,nullzero"`
	VerificationOTPIssuedAt  *time.Time `bun:"verification_otp_issued_at"`
	VerificationOTPExpiresAt *time.Time `bun:"verification_otp_expires_at"`
	ResetOTPCode             string     `bun:"reset_otp_code,nullzero"`
	ResetOTPIssuedAt         *time.Time `bun:"reset_otp_issued_at"`
	ResetOTPExpiresAt        *time.Time `bun:"reset_otp_expires_at"`
	LastLoginAt              *time.Time `bun:"last_login_at"`
	VerifiedAt               *time.Time `bun:"verified_at"`
	DeactivatedAt            *time.Time `bun:"deactivated_at"`
	PasswordChangedAt        *time.Time `bun:"password_changed_at"`
	CreatedAt                time.Time  `bun:"created_at,notnull"`
	UpdatedAt                time.Time  `bun:"updated_at,notnull"`
	Version                  int64      `bun:"version,notnull"`
}

// ProfileModel is the Bun model for role profiles.
type ProfileModel struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`

	ID        uuid.UUID `bun:"id,pk,nullzero,type:uuid"`
	AccountID uuid.UUID `bun:"account_id,notnull,type:uuid"`
	Role      string    `bun:"role,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func toAccount(m *AccountModel) *identity.Account {
	acc := &identity.Account{
		ID:                m.ID,
		Email:             m.Email,
		Phone:             m.Phone,
		FirstName:         m.FirstName,
		LastName:          m.LastName,
		PasswordHash:      m.PasswordHash,
		Role:              identity.Role(m.Role),
		Verification:      identity.VerificationState(m.Verification),
		Activation:        identity.ActivationState(m.Activation),
		LastLoginAt:       utcPtr(m.LastLoginAt),
		VerifiedAt:        utcPtr(m.VerifiedAt),
		DeactivatedAt:     utcPtr(m.DeactivatedAt),
		PasswordChangedAt: utcPtr(m.PasswordChangedAt),
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
		Version:           m.Version,
	}

	if slot, ok := toSlot(identity.OTPPurposeVerification, m.VerificationOTPCode, m.VerificationOTPIssuedAt, m.VerificationOTPExpiresAt); ok {
		acc.PendingVerification = slot
	}
	if slot, ok := toSlot(identity.OTPPurposePasswordReset, m.ResetOTPCode, m.ResetOTPIssuedAt, m.ResetOTPExpiresAt); ok {
		acc.PendingReset = slot
	}

	acc.EnsureStates()
	return acc
}

func fromAccount(a *identity.Account) *AccountModel {
	m := &AccountModel{
		ID:                a.ID,
		Email:             a.Email,
		Phone:             a.Phone,
		FirstName:         a.FirstName,
		LastName:          a.LastName,
		PasswordHash:      a.PasswordHash,
		Role:              string(a.Role),
		Verification:      string(a.Verification),
		Activation:        string(a.Activation),
		LastLoginAt:       a.LastLoginAt,
		VerifiedAt:        a.VerifiedAt,
		DeactivatedAt:     a.DeactivatedAt,
		PasswordChangedAt: a.PasswordChangedAt,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
		Version:           a.Version,
	}

	if rec, ok := a.PendingVerification.Record(); ok {
		m.VerificationOTPCode = rec.Code
		m.VerificationOTPIssuedAt = timePtr(rec.IssuedAt)
		m.VerificationOTPExpiresAt = timePtr(rec.ExpiresAt)
	}
	if rec, ok := a.PendingReset.Record(); ok {
		m.ResetOTPCode = rec.Code
		m.ResetOTPIssuedAt = timePtr(rec.IssuedAt)
		m.ResetOTPExpiresAt = timePtr(rec.ExpiresAt)
	}

	return m
}

func toSlot(purpose identity.OTPPurpose, code string, issuedAt, expiresAt *time.Time) (identity.OTPSlot, bool) {
	if code == "" || expiresAt == nil {
		return identity.OTPSlot{}, false
	}
	rec := identity.OTPRecord{
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: expiresAt.UTC(),
	}
	if issuedAt != nil {
		rec.IssuedAt = issuedAt.UTC()
	}
	return identity.NewOTPSlot(rec), true
}

func toProfile(m *ProfileModel) *identity.Profile {
	return &identity.Profile{
		ID:        m.ID,
		AccountID: m.AccountID,
		Role:      identity.Role(m.Role),
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
