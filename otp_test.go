package identity_test

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTPEngineIssue(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	engine := identity.NewOTPEngine(
		identity.WithOTPClock(func() time.Time { return now }),
		identity.WithOTPCodeSource(identity.StaticCode("123456")),
	)

	rec, err := engine.Issue(identity.OTPPurposeVerification)
	require.NoError(t, err)
	assert.Equal(t, "123456", rec.Code)
	assert.Equal(t, identity.OTPPurposeVerification, rec.Purpose)
	assert.Equal(t, now, rec.IssuedAt)
	assert.Equal(t, now.Add(identity.DefaultOTPTTL), rec.ExpiresAt)
	assert.Equal(t, identity.DefaultOTPTTL, engine.TTL())

	_, err = engine.Issue(identity.OTPPurpose("login"))
	assert.Equal(t, identity.TextCodeValidation, identity.KindOf(err))
}

func TestOTPEngineCustomTTL(t *testing.T) {
	engine := identity.NewOTPEngine(identity.WithOTPTTL(2 * time.Minute))
	rec, err := engine.Issue(identity.OTPPurposePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, rec.ExpiresAt.Sub(rec.IssuedAt))
}

func TestOTPEngineCodeSourceFailure(t *testing.T) {
	engine := identity.NewOTPEngine(identity.WithOTPCodeSource(func() (string, error) {
		return "", errors.New("entropy exhausted")
	}))
	_, err := engine.Issue(identity.OTPPurposeVerification)
	assert.Equal(t, identity.TextCodeDependencyFailure, identity.KindOf(err))
}

func TestOTPEngineValidate(t *testing.T) {
	issued := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := identity.OTPRecord{
		Code:      "123456",
		Purpose:   identity.OTPPurposeVerification,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(10 * time.Minute),
	}
	engine := identity.NewOTPEngine()

	tests := []struct {
		name    string
		code    string
		purpose identity.OTPPurpose
		slot    identity.OTPSlot
		now     time.Time
		err     error
	}{
		{"valid", "123456", identity.OTPPurposeVerification, identity.NewOTPSlot(rec), issued.Add(time.Minute), nil},
		{"valid at expiry", "123456", identity.OTPPurposeVerification, identity.NewOTPSlot(rec), rec.ExpiresAt, nil},
		{"empty slot", "123456", identity.OTPPurposeVerification, identity.OTPSlot{}, issued, identity.ErrOTPNotIssued},
		{"wrong purpose", "123456", identity.OTPPurposePasswordReset, identity.NewOTPSlot(rec), issued, identity.ErrOTPMismatch},
		{"wrong code", "654321", identity.OTPPurposeVerification, identity.NewOTPSlot(rec), issued, identity.ErrOTPMismatch},
		{"expired", "123456", identity.OTPPurposeVerification, identity.NewOTPSlot(rec), rec.ExpiresAt.Add(time.Second), identity.ErrOTPExpired},
		{"wrong and expired", "654321", identity.OTPPurposeVerification, identity.NewOTPSlot(rec), rec.ExpiresAt.Add(time.Hour), identity.ErrOTPMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Validate(tt.code, tt.purpose, tt.slot, tt.now)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, rec, got)
		})
	}
}

func TestRandomCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9]{6}$`)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := identity.RandomCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 150)
}
