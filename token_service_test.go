package identity_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenAccount() *identity.Account {
	return &identity.Account{ID: uuid.New(), Email: aliceEmail, Role: identity.RoleVendor}
}

func TestTokenServiceIssueAndValidate(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ts := identity.NewTokenService(identity.StaticSigningKey(testSecret),
		identity.WithTokenClock(func() time.Time { return now }),
		identity.WithTokenIssuer("identity"),
		identity.WithTokenAudience("web"),
	)
	account := newTokenAccount()

	token, err := ts.Issue(account)
	require.NoError(t, err)
	assert.Equal(t, now.Add(72*time.Hour), token.ExpiresAt)
	assert.Equal(t, 72*time.Hour, ts.Expiration())

	claims, err := ts.Validate(token.Token)
	require.NoError(t, err)

	id, err := claims.AccountID()
	require.NoError(t, err)
	assert.Equal(t, account.ID, id)
	assert.Equal(t, account.ID.String(), claims.Subject())
	assert.Equal(t, identity.RoleVendor, claims.Role())
	assert.True(t, claims.HasRole(identity.RoleVendor))
	assert.False(t, claims.HasRole(identity.RoleAdmin))
	assert.Equal(t, now, claims.IssuedAt())
	assert.Equal(t, token.ExpiresAt, claims.Expires())
	assert.NotEmpty(t, claims.TokenID())
}

func TestTokenServiceUniqueTokenIDs(t *testing.T) {
	ts := identity.NewTokenService(identity.StaticSigningKey(testSecret))
	account := newTokenAccount()

	a, err := ts.Issue(account)
	require.NoError(t, err)
	b, err := ts.Issue(account)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestTokenServiceValidateErrors(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ts := identity.NewTokenService(identity.StaticSigningKey(testSecret),
		identity.WithTokenClock(clock),
		identity.WithTokenExpiration(time.Hour),
	)
	account := newTokenAccount()

	t.Run("expired", func(t *testing.T) {
		token, err := ts.Issue(account)
		require.NoError(t, err)

		later := identity.NewTokenService(identity.StaticSigningKey(testSecret),
			identity.WithTokenClock(func() time.Time { return now.Add(2 * time.Hour) }),
		)
		_, err = later.Validate(token.Token)
		assert.ErrorIs(t, err, identity.ErrTokenExpired)
	})

	t.Run("other key", func(t *testing.T) {
		other := identity.NewTokenService(identity.StaticSigningKey("another-secret-another-secret-123"),
			identity.WithTokenClock(clock),
		)
		token, err := other.Issue(account)
		require.NoError(t, err)

		_, err = ts.Validate(token.Token)
		assert.ErrorIs(t, err, identity.ErrTokenInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		token, err := ts.Issue(account)
		require.NoError(t, err)

		parts := strings.Split(token.Token, ".")
		require.Len(t, parts, 3)
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  uuid.NewString(),
			"role": "admin",
			"exp":  now.Add(time.Hour).Unix(),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)
		forgedParts := strings.Split(forged, ".")

		_, err = ts.Validate(parts[0] + "." + forgedParts[1] + "." + parts[2])
		assert.ErrorIs(t, err, identity.ErrTokenInvalidSignature)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ts.Validate("not.a.token")
		assert.ErrorIs(t, err, identity.ErrTokenMalformed)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": account.ID.String(),
			"exp": now.Add(time.Hour).Unix(),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = ts.Validate(unsigned)
		assert.Error(t, err)
	})

	t.Run("missing expiry", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": account.ID.String(),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = ts.Validate(raw)
		assert.ErrorIs(t, err, identity.ErrTokenMalformed)
	})

	t.Run("subject is not an account id", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "alice",
			"exp": now.Add(time.Hour).Unix(),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = ts.Validate(raw)
		assert.ErrorIs(t, err, identity.ErrTokenMalformed)
	})
}

func TestTokenServiceIssuerAndAudience(t *testing.T) {
	issuer := identity.NewTokenService(identity.StaticSigningKey(testSecret),
		identity.WithTokenIssuer("billing"),
		identity.WithTokenAudience("admin-ui"),
	)
	verifier := identity.NewTokenService(identity.StaticSigningKey(testSecret),
		identity.WithTokenIssuer("identity"),
		identity.WithTokenAudience("web"),
	)

	token, err := issuer.Issue(newTokenAccount())
	require.NoError(t, err)

	_, err = verifier.Validate(token.Token)
	assert.ErrorIs(t, err, identity.ErrTokenMalformed)
}

func TestTokenServiceMultipleAudiences(t *testing.T) {
	ts := identity.NewTokenService(identity.StaticSigningKey(testSecret),
		identity.WithTokenAudience("web", "mobile"),
	)

	token, err := ts.Issue(newTokenAccount())
	require.NoError(t, err)

	claims, err := ts.Validate(token.Token)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"web", "mobile"}, []string(claims.Audience))

	other := identity.NewTokenService(identity.StaticSigningKey(testSecret),
		identity.WithTokenAudience("mobile"),
	)
	_, err = other.Validate(token.Token)
	assert.NoError(t, err)

	foreign := identity.NewTokenService(identity.StaticSigningKey(testSecret),
		identity.WithTokenAudience("admin-ui"),
	)
	_, err = foreign.Validate(token.Token)
	assert.ErrorIs(t, err, identity.ErrTokenMalformed)
}

func TestTokenServiceMissingKey(t *testing.T) {
	ts := identity.NewTokenService(identity.StaticSigningKey(nil))

	_, err := ts.Issue(newTokenAccount())
	assert.ErrorIs(t, err, identity.ErrSigningKeyMissing)

	_, err = ts.Validate("a.b.c")
	assert.ErrorIs(t, err, identity.ErrSigningKeyMissing)

	_, err = identity.NewTokenService(identity.StaticSigningKey(testSecret)).Issue(&identity.Account{})
	assert.Error(t, err)
}
