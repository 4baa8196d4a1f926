package identity_test

import (
	"strings"
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := identity.NewBcryptHasher(bcrypt.MinCost)

	for _, password := range []string{"CorrectHorse1", "pässwörd-ünïcode", strings.Repeat("z", 72)} {
		hash, err := hasher.Hash(password)
		require.NoError(t, err)
		assert.NotContains(t, hash, password)
		assert.NoError(t, hasher.Verify(password, hash))
	}
}

func TestBcryptHasherRejectsEmptyPassword(t *testing.T) {
	_, err := identity.NewBcryptHasher(bcrypt.MinCost).Hash("")
	assert.ErrorIs(t, err, identity.ErrNoEmptyString)
	assert.Equal(t, identity.TextCodeEmptyPassword, identity.KindOf(err))
}

func TestBcryptHasherVerifyFailures(t *testing.T) {
	hasher := identity.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("CorrectHorse1")
	require.NoError(t, err)

	cases := map[string]struct{ password, hash string }{
		"wrong password": {"correcthorse1", hash},
		"garbage hash":   {"CorrectHorse1", "invalidhash"},
		"empty hash":     {"CorrectHorse1", ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := hasher.Verify(tc.password, tc.hash)
			assert.ErrorIs(t, err, identity.ErrMismatchedHashAndPassword)
			assert.Equal(t, identity.TextCodeInvalidCreds, identity.KindOf(err))
		})
	}
}

func TestBcryptHasherSaltsEveryHash(t *testing.T) {
	hasher := identity.NewBcryptHasher(bcrypt.MinCost)
	assert.Equal(t, bcrypt.MinCost, hasher.Cost())

	first, err := hasher.Hash("pass1234")
	require.NoError(t, err)
	second, err := hasher.Hash("pass1234")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestBcryptHasherOutOfRangeCostFallsBack(t *testing.T) {
	hasher := identity.NewBcryptHasher(99)
	assert.NotEqual(t, 99, hasher.Cost())
	assert.GreaterOrEqual(t, hasher.Cost(), bcrypt.MinCost)
}

func TestPackageLevelHelpers(t *testing.T) {
	hash, err := identity.HashPassword("CorrectHorse1")
	require.NoError(t, err)
	assert.NoError(t, identity.ComparePasswordAndHash("CorrectHorse1", hash))
	assert.Error(t, identity.ComparePasswordAndHash("nope", hash))
}
