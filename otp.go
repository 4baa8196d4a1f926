package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"
)

const (
	// OTPDigits is the length of issued codes
	OTPDigits = 6
	// DefaultOTPTTL is how long an issued code stays valid
	DefaultOTPTTL = 10 * time.Minute
)

// CodeSource produces a fresh numeric code of OTPDigits length
type CodeSource func() (string, error)

// OTPEngine issues and validates one time codes. It holds no state; records
// live on the account.
type OTPEngine struct {
	ttl   time.Duration
	now   func() time.Time
	codes CodeSource
}

// OTPOption customizes the engine
type OTPOption func(*OTPEngine)

// WithOTPTTL overrides the code lifetime
func WithOTPTTL(ttl time.Duration) OTPOption {
	return func(e *OTPEngine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithOTPClock injects a custom clock (useful for tests).
func WithOTPClock(clock func() time.Time) OTPOption {
	return func(e *OTPEngine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithOTPCodeSource replaces the random code generator
func WithOTPCodeSource(src CodeSource) OTPOption {
	return func(e *OTPEngine) {
		if src != nil {
			e.codes = src
		}
	}
}

// NewOTPEngine returns an engine issuing 6 digit codes valid for 10 minutes
func NewOTPEngine(opts ...OTPOption) *OTPEngine {
	e := &OTPEngine{
		ttl:   DefaultOTPTTL,
		now:   time.Now,
		codes: RandomCode,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// TTL returns the configured code lifetime
func (e *OTPEngine) TTL() time.Duration {
	return e.ttl
}

// Issue creates a new record for purpose. Nothing is persisted.
func (e *OTPEngine) Issue(purpose OTPPurpose) (OTPRecord, error) {
	if !purpose.IsValid() {
		return OTPRecord{}, ValidationError(fmt.Errorf("unknown otp purpose %q", purpose), "invalid otp purpose")
	}

	code, err := e.codes()
	if err != nil {
		return OTPRecord{}, DependencyError(err, "failed to generate otp")
	}

	issuedAt := e.now().UTC()
	return OTPRecord{
		Code:      code,
		Purpose:   purpose,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(e.ttl),
	}, nil
}

// Validate checks submitted against the record held in slot for purpose.
// Mismatch is checked before expiry so a wrong code never reveals whether
// the stored one expired. On success the consumed record is returned and the
// caller must clear the slot in the same write.
//
// Codes are compared in constant time. A six digit code is still far weaker
// than a password and relies on short expiry.
func (e *OTPEngine) Validate(submitted string, purpose OTPPurpose, slot OTPSlot, now time.Time) (OTPRecord, error) {
	rec, ok := slot.Record()
	if !ok {
		return OTPRecord{}, ErrOTPNotIssued
	}

	if rec.Purpose != purpose {
		return OTPRecord{}, ErrOTPMismatch
	}

	if subtle.ConstantTimeCompare([]byte(submitted), []byte(rec.Code)) != 1 {
		return OTPRecord{}, ErrOTPMismatch
	}

	if rec.Expired(now) {
		return OTPRecord{}, ErrOTPExpired
	}

	return rec, nil
}

// Now returns the engine clock
func (e *OTPEngine) Now() time.Time {
	return e.now()
}

var otpUpperBound = big.NewInt(1_000_000)

// RandomCode returns a uniformly random zero padded 6 digit code
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpUpperBound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", OTPDigits, n.Int64()), nil
}

// StaticCode returns a CodeSource that always yields code
func StaticCode(code string) CodeSource {
	return func() (string, error) {
		return code, nil
	}
}
