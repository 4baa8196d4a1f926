package identity

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
)

const (
	passwordMinLength = 8
	// bcrypt ignores input past 72 bytes
	passwordMaxLength = 72
	otpFieldLength    = OTPDigits
)

var otpDigitsRule = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	for _, r := range s {
		if r < '0' || r > '9' {
			return errors.New("must contain digits only")
		}
	}
	return nil
})

var selfServiceRoleRule = validation.By(func(value interface{}) error {
	role, _ := value.(Role)
	if role == "" {
		return nil
	}
	if !role.IsSelfService() {
		return errors.New("must be one of customer, vendor or rider")
	}
	return nil
})

// RegisterMessage creates a new account
type RegisterMessage struct {
	Email     string `json:"email" form:"email"`
	Password  string `json:"password" form:"password"`
	FirstName string `json:"first_name" form:"first_name"`
	LastName  string `json:"last_name" form:"last_name"`
	Phone     string `json:"phone" form:"phone"`
	Role      Role   `json:"role" form:"role"`
}

// Type returns the message type
func (m RegisterMessage) Type() string {
	return "identity.register"
}

// Validate checks the message before any store access
func (m RegisterMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&m.Password, validation.Required, validation.Length(passwordMinLength, passwordMaxLength)),
		validation.Field(&m.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.Role, validation.Required, selfServiceRoleRule),
	)
}

// LoginMessage authenticates with email and password
type LoginMessage struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Type returns the message type
func (m LoginMessage) Type() string {
	return "identity.login"
}

// Validate checks the message
func (m LoginMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required),
	)
}

// VerifyAccountMessage consumes a verification code
type VerifyAccountMessage struct {
	Email string `json:"email" form:"email"`
	Code  string `json:"code" form:"code"`
}

// Type returns the message type
func (m VerifyAccountMessage) Type() string {
	return "identity.account.verify"
}

// Validate checks the message
func (m VerifyAccountMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Code, validation.Required, validation.Length(otpFieldLength, otpFieldLength), otpDigitsRule),
	)
}

// ResendVerificationMessage reissues a verification code
type ResendVerificationMessage struct {
	Email string `json:"email" form:"email"`
}

// Type returns the message type
func (m ResendVerificationMessage) Type() string {
	return "identity.account.verification.resend"
}

// Validate checks the message
func (m ResendVerificationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
	)
}

// ForgotPasswordMessage issues a password reset code
type ForgotPasswordMessage struct {
	Email string `json:"email" form:"email"`
}

// Type returns the message type
func (m ForgotPasswordMessage) Type() string {
	return "identity.password.forgot"
}

// Validate checks the message
func (m ForgotPasswordMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
	)
}

// ResetPasswordMessage sets a new password with a reset code
type ResetPasswordMessage struct {
	Email       string `json:"email" form:"email"`
	Code        string `json:"code" form:"code"`
	NewPassword string `json:"new_password" form:"new_password"`
}

// Type returns the message type
func (m ResetPasswordMessage) Type() string {
	return "identity.password.reset"
}

// Validate checks the message
func (m ResetPasswordMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Code, validation.Required, validation.Length(otpFieldLength, otpFieldLength), otpDigitsRule),
		validation.Field(&m.NewPassword, validation.Required, validation.Length(passwordMinLength, passwordMaxLength)),
	)
}

// ChangePasswordMessage rotates the password of an authenticated account
type ChangePasswordMessage struct {
	AccountID       uuid.UUID `json:"-"`
	CurrentPassword string    `json:"current_password" form:"current_password"`
	NewPassword     string    `json:"new_password" form:"new_password"`
}

// Type returns the message type
func (m ChangePasswordMessage) Type() string {
	return "identity.password.change"
}

// Validate checks the message
func (m ChangePasswordMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.CurrentPassword, validation.Required),
		validation.Field(&m.NewPassword, validation.Required, validation.Length(passwordMinLength, passwordMaxLength)),
	)
}

// AccountStatusMessage deactivates or reactivates an account
type AccountStatusMessage struct {
	AccountID uuid.UUID `json:"account_id"`
	Reason    string    `json:"reason,omitempty"`
}

// Type returns the message type
func (m AccountStatusMessage) Type() string {
	return "identity.account.status"
}

// Validate checks the message
func (m AccountStatusMessage) Validate() error {
	if m.AccountID == uuid.Nil {
		return validation.Errors{"account_id": errors.New("cannot be blank")}
	}
	return nil
}
