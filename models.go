package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// VerificationState is the verification axis of an account
type VerificationState string

const (
	// VerificationUnverified is the state every account is created in
	VerificationUnverified VerificationState = "unverified"
	// VerificationVerified is terminal, there is no way back
	VerificationVerified VerificationState = "verified"
)

// ActivationState is the activation axis of an account
type ActivationState string

const (
	// ActivationActive accounts may log in
	ActivationActive ActivationState = "active"
	// ActivationDeactivated accounts are rejected at login
	ActivationDeactivated ActivationState = "deactivated"
)

// OTPPurpose binds a code to the flow it was issued for
type OTPPurpose string

const (
	// OTPPurposeVerification is used by register and resend verification
	OTPPurposeVerification OTPPurpose = "verification"
	// OTPPurposePasswordReset is used by forgot and reset password
	OTPPurposePasswordReset OTPPurpose = "password_reset"
)

// IsValid reports whether p is a known purpose
func (p OTPPurpose) IsValid() bool {
	switch p {
	case OTPPurposeVerification, OTPPurposePasswordReset:
		return true
	default:
		return false
	}
}

// OTPRecord is an issued one time code
type OTPRecord struct {
	Code      string     `json:"-"`
	Purpose   OTPPurpose `json:"purpose"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at now
func (r OTPRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// OTPSlot holds at most one unconsumed OTP record. The zero value is empty.
type OTPSlot struct {
	record  OTPRecord
	present bool
}

// NewOTPSlot returns a slot holding rec
func NewOTPSlot(rec OTPRecord) OTPSlot {
	return OTPSlot{record: rec, present: true}
}

// Present reports whether the slot holds a record
func (s OTPSlot) Present() bool {
	return s.present
}

// Record returns the held record and whether one is present
func (s OTPSlot) Record() (OTPRecord, bool) {
	return s.record, s.present
}

// Fill overwrites any previous record
func (s *OTPSlot) Fill(rec OTPRecord) {
	s.record = rec
	s.present = true
}

// Clear empties the slot
func (s *OTPSlot) Clear() {
	s.record = OTPRecord{}
	s.present = false
}

// Account is the identity aggregate root
type Account struct {
	ID                  uuid.UUID         `json:"id"`
	Email               string            `json:"email"`
	Phone               string            `json:"phone,omitempty"`
	FirstName           string            `json:"first_name"`
	LastName            string            `json:"last_name"`
	PasswordHash        string            `json:"-"`
	Role                Role              `json:"role"`
	Verification        VerificationState `json:"verification"`
	Activation          ActivationState   `json:"activation"`
	PendingVerification OTPSlot           `json:"-"`
	PendingReset        OTPSlot           `json:"-"`
	LastLoginAt         *time.Time        `json:"last_login_at,omitempty"`
	VerifiedAt          *time.Time        `json:"verified_at,omitempty"`
	DeactivatedAt       *time.Time        `json:"deactivated_at,omitempty"`
	PasswordChangedAt   *time.Time        `json:"password_changed_at,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	Version             int64             `json:"-"`
}

// IsVerified reports whether the account completed verification
func (a *Account) IsVerified() bool {
	return a != nil && a.Verification == VerificationVerified
}

// IsActive reports whether the account may log in
func (a *Account) IsActive() bool {
	return a != nil && a.Activation != ActivationDeactivated
}

// EnsureStates fills empty lifecycle fields with their initial values
func (a *Account) EnsureStates() {
	if a.Verification == "" {
		a.Verification = VerificationUnverified
	}
	if a.Activation == "" {
		a.Activation = ActivationActive
	}
}

// Slot returns the OTP slot for purpose
func (a *Account) Slot(purpose OTPPurpose) *OTPSlot {
	if purpose == OTPPurposePasswordReset {
		return &a.PendingReset
	}
	return &a.PendingVerification
}

// Clone returns a deep copy so stores never share pointers with callers
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.LastLoginAt = cloneTime(a.LastLoginAt)
	c.VerifiedAt = cloneTime(a.VerifiedAt)
	c.DeactivatedAt = cloneTime(a.DeactivatedAt)
	c.PasswordChangedAt = cloneTime(a.PasswordChangedAt)
	return &c
}

// Profile is the role specific side record created at registration
type Profile struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountResult is the narrow, role agnostic view returned by operations
type AccountResult struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Role           Role       `json:"role"`
	Verified       bool       `json:"verified"`
	Token          string     `json:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

func newAccountResult(a *Account, token *SessionToken) *AccountResult {
	res := &AccountResult{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Role:      a.Role,
		Verified:  a.IsVerified(),
	}
	if token != nil {
		exp := token.ExpiresAt
		res.Token = token.Token
		res.TokenExpiresAt = &exp
	}
	return res
}

// NormalizeEmail trims and lower cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
