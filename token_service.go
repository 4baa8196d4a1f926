package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultTokenExpiration is the session window when none is configured
const DefaultTokenExpiration = 72 * time.Hour

// TokenService mints and validates session tokens
type TokenService struct {
	keys       SigningKeyProvider
	expiration time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

// TokenOption customizes the token service
type TokenOption func(*TokenService)

// WithTokenExpiration overrides the session lifetime
func WithTokenExpiration(d time.Duration) TokenOption {
	return func(ts *TokenService) {
		if d > 0 {
			ts.expiration = d
		}
	}
}

// WithTokenIssuer sets the iss claim and requires it on validation
func WithTokenIssuer(issuer string) TokenOption {
	return func(ts *TokenService) {
		ts.issuer = issuer
	}
}

// WithTokenAudience sets the aud claim and requires it on validation
func WithTokenAudience(audience ...string) TokenOption {
	return func(ts *TokenService) {
		ts.audience = jwt.ClaimStrings(audience)
	}
}

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(keys SigningKeyProvider, opts ...TokenOption) *TokenService {
	ts := &TokenService{
		keys:       keys,
		expiration: DefaultTokenExpiration,
		now:        time.Now,
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

// Expiration returns the session lifetime
func (ts *TokenService) Expiration() time.Duration {
	return ts.expiration
}

// Issue mints a token bound to the account id and role
func (ts *TokenService) Issue(account *Account) (SessionToken, error) {
	if account == nil || account.ID == uuid.Nil {
		return SessionToken{}, goerrors.New("account must not be empty", goerrors.CategoryInternal).
			WithTextCode(TextCodeInternal)
	}

	key, err := ts.signingKey()
	if err != nil {
		return SessionToken{}, err
	}

	now := ts.now().UTC()
	expiresAt := now.Add(ts.expiration)
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   account.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:      account.ID.String(),
		UserRole: account.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return SessionToken{}, DependencyError(err, "failed to sign session token")
	}

	return SessionToken{
		Token:     signed,
		// numeric dates are second precision
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Validate parses and verifies a token string
func (ts *TokenService) Validate(tokenString string) (*SessionClaims, error) {
	key, err := ts.signingKey()
	if err != nil {
		return nil, err
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		// tokens carry every configured audience, the primary one is required
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("token validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrTokenInvalidSignature
		default:
			return nil, ErrTokenMalformed
		}
	}

	if !token.Valid {
		return nil, ErrTokenMalformed
	}

	if _, err := claims.AccountID(); err != nil {
		return nil, err
	}

	return claims, nil
}

func (ts *TokenService) signingKey() ([]byte, error) {
	if ts.keys == nil {
		return nil, ErrSigningKeyMissing
	}
	key, err := ts.keys.SigningKey()
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, ErrSigningKeyMissing
	}
	return key, nil
}
