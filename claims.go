package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the JWT payload of a session token
type SessionClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	UserRole Role   `json:"role,omitempty"`
}

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the account ID
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// AccountID parses the account ID carried by the token
func (c *SessionClaims) AccountID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.UserID())
	if err != nil {
		return uuid.Nil, ErrTokenMalformed
	}
	return id, nil
}

// Role returns the role the account was registered with
func (c *SessionClaims) Role() Role {
	return c.UserRole
}

// HasRole checks if the token carries role
func (c *SessionClaims) HasRole(role Role) bool {
	return c.UserRole == role
}

// Expires returns the expiration time in UTC
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time.UTC()
	}
	return time.Time{}
}

// IssuedAt returns the issued at time in UTC
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time.UTC()
	}
	return time.Time{}
}

// TokenID returns the jti claim
func (c *SessionClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// SessionToken is a signed token and its expiry
type SessionToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
