package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logger used across the package. Args are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds identity options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetOTPTTL() time.Duration
	GetBcryptCost() int
	GetNotificationTimeout() time.Duration
	GetDeterministicIDs() bool
	GetDefaultRegion() string
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
}

// SigningKeyProvider supplies the token signing secret
type SigningKeyProvider interface {
	SigningKey() ([]byte, error)
}

// StaticSigningKey is a SigningKeyProvider backed by a fixed secret
type StaticSigningKey []byte

// SigningKey implements SigningKeyProvider
func (k StaticSigningKey) SigningKey() ([]byte, error) {
	if len(k) == 0 {
		return nil, ErrSigningKeyMissing
	}
	return []byte(k), nil
}

// AccountStore is the record store the service persists accounts through.
// Save must be atomic and compare-and-swap on Account.Version, returning
// ErrConcurrentUpdate when the stored version moved.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	Create(ctx context.Context, account *Account) (*Account, error)
	Save(ctx context.Context, account *Account) error
	CreateProfile(ctx context.Context, role Role, accountID uuid.UUID) (*Profile, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, store AccountStore) error) error
}

// Notifier delivers OTP codes out of band
type Notifier interface {
	SendOTP(ctx context.Context, dest Destination, code string, purpose OTPPurpose) error
}

// Locker serializes read-modify-write cycles per account
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY %s %v\n", format, args)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY %s %v\n", format, args)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY %s %v\n", format, args)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY %s %v\n", format, args)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger discards everything
func NopLogger() Logger {
	return nopLogger{}
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
