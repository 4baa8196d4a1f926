package identity

import (
	goerrors "github.com/goliatone/go-errors"
)

// Stable error kinds. Callers and transports switch on these, never on messages.
const (
	TextCodeValidation           = "VALIDATION_ERROR"
	TextCodeEmptyPassword        = "EMPTY_PASSWORD"
	TextCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	TextCodeNotFound             = "ACCOUNT_NOT_FOUND"
	TextCodeInvalidCreds         = "INVALID_CREDENTIALS"
	TextCodeAccountDeactivated   = "ACCOUNT_DEACTIVATED"
	TextCodeAlreadyVerified      = "ALREADY_VERIFIED"
	TextCodeInvalidOTP           = "INVALID_OTP"
	TextCodeExpiredOTP           = "EXPIRED_OTP"
	TextCodeOTPNotIssued         = "OTP_NOT_ISSUED"
	TextCodeIncorrectPassword    = "INCORRECT_CURRENT_PASSWORD"
	TextCodeUnauthenticated      = "UNAUTHENTICATED"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeTokenSignature       = "TOKEN_INVALID_SIGNATURE"
	TextCodeTokenMalformed       = "TOKEN_MALFORMED"
	TextCodeInvalidTransition    = "INVALID_ACCOUNT_STATE_TRANSITION"
	TextCodeConcurrentUpdate     = "CONCURRENT_UPDATE"
	TextCodeDependencyFailure    = "DEPENDENCY_FAILURE"
	TextCodeInternal             = "INTERNAL_ERROR"
	TextCodeInvalidRole          = "INVALID_ROLE"
	TextCodeInvalidPhone         = "INVALID_PHONE"
	TextCodeSigningKeyMissing    = "SIGNING_KEY_MISSING"
	TextCodeNotificationDisabled = "NOTIFICATION_DISABLED"
)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the hasher level mismatch error
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCredentials is returned by login for both unknown accounts and
// wrong passwords.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrDuplicateEmail is returned when registering an email that already exists
var ErrDuplicateEmail = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrAccountNotFound is returned when the target account does not exist
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAccountDeactivated blocks login on deactivated accounts
var ErrAccountDeactivated = goerrors.New("account is deactivated", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountDeactivated).
	WithCode(goerrors.CodeForbidden)

// ErrAlreadyVerified is returned when verifying an already verified account
var ErrAlreadyVerified = goerrors.New("account is already verified", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(goerrors.CodeConflict)

// ErrInvalidOTP is the caller facing error for a wrong, consumed or missing code
var ErrInvalidOTP = goerrors.New("the code provided is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidOTP).
	WithCode(goerrors.CodeBadRequest)

// ErrExpiredOTP is the caller facing error for a code past its expiry
var ErrExpiredOTP = goerrors.New("the code provided has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeExpiredOTP).
	WithCode(goerrors.CodeBadRequest)

// ErrOTPNotIssued is the engine level error when no record exists
var ErrOTPNotIssued = goerrors.New("no code has been issued", goerrors.CategoryAuth).
	WithTextCode(TextCodeOTPNotIssued).
	WithCode(goerrors.CodeBadRequest)

// ErrOTPMismatch is the engine level error when codes or purposes differ
var ErrOTPMismatch = goerrors.New("code does not match", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidOTP).
	WithCode(goerrors.CodeBadRequest)

// ErrOTPExpired is the engine level error when the record is past expiry
var ErrOTPExpired = goerrors.New("code has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeExpiredOTP).
	WithCode(goerrors.CodeBadRequest)

// ErrIncorrectCurrentPassword is returned by change password
var ErrIncorrectCurrentPassword = goerrors.New("current password is incorrect", goerrors.CategoryAuth).
	WithTextCode(TextCodeIncorrectPassword).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthenticated is returned when an operation requires a session
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when a session token is past its expiry
var ErrTokenExpired = goerrors.New("session token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalidSignature is returned when a token was not signed by us
var ErrTokenInvalidSignature = goerrors.New("session token signature is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenSignature).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for unparseable tokens or bad claims
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidTransition is returned when a requested state change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrConcurrentUpdate is returned by stores when the account version moved
// between read and write.
var ErrConcurrentUpdate = goerrors.New("account was modified concurrently", goerrors.CategoryConflict).
	WithTextCode(TextCodeConcurrentUpdate).
	WithCode(goerrors.CodeConflict)

// ErrInvalidRole is returned for roles outside the supported set
var ErrInvalidRole = goerrors.New("role is not supported", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidRole).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidPhone is returned when a phone number cannot be normalized
var ErrInvalidPhone = goerrors.New("phone number is invalid", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidPhone).
	WithCode(goerrors.CodeBadRequest)

// ErrSigningKeyMissing is returned when the token service has no key material
var ErrSigningKeyMissing = goerrors.New("signing key is not configured", goerrors.CategoryInternal).
	WithTextCode(TextCodeSigningKeyMissing).
	WithCode(goerrors.CodeInternal)

// ErrInternal is the generic error surfaced for anything not in the taxonomy
var ErrInternal = goerrors.New("an unexpected error occurred", goerrors.CategoryInternal).
	WithTextCode(TextCodeInternal).
	WithCode(goerrors.CodeInternal)

// DependencyError wraps a store or collaborator failure
func DependencyError(err error, message string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(TextCodeDependencyFailure).
		WithCode(goerrors.CodeInternal)
}

// ValidationError wraps an input validation failure
func ValidationError(err error, message string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, message).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
}

// publicKinds lists the kinds that may reach a caller verbatim.
var publicKinds = map[string]bool{
	TextCodeValidation:         true,
	TextCodeEmptyPassword:      true,
	TextCodeDuplicateEmail:     true,
	TextCodeNotFound:           true,
	TextCodeInvalidCreds:       true,
	TextCodeAccountDeactivated: true,
	TextCodeAlreadyVerified:    true,
	TextCodeInvalidOTP:         true,
	TextCodeExpiredOTP:         true,
	TextCodeIncorrectPassword:  true,
	TextCodeUnauthenticated:    true,
	TextCodeTokenExpired:       true,
	TextCodeTokenSignature:     true,
	TextCodeTokenMalformed:     true,
	TextCodeInvalidTransition:  true,
	TextCodeInvalidRole:        true,
	TextCodeInvalidPhone:       true,
}

// KindOf returns the stable kind of err, or TextCodeInternal when err is not
// part of the taxonomy.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr.TextCode
	}
	return TextCodeInternal
}

// PublicError returns an error safe to hand to a caller. Dependency failures,
// concurrency conflicts and unknown errors collapse into ErrInternal so no
// internal detail leaks.
func PublicError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && publicKinds[richErr.TextCode] {
		return richErr
	}
	return ErrInternal
}
