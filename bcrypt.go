package identity

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher hashes passwords with bcrypt
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, or the build default when
// cost is out of bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the work factor in use
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash will generate a password hash
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", DependencyError(err, "failed to hash password")
	}
	return string(out), nil
}

// Verify will validate the given cleartext password matches the hashed password
func (h *BcryptHasher) Verify(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatchedHashAndPassword
	default:
		// malformed or truncated hashes never match
		return ErrMismatchedHashAndPassword
	}
}

var defaultHasher = NewBcryptHasher(0)

// HashPassword will generate a password hash with the default hasher
func HashPassword(password string) (string, error) {
	return defaultHasher.Hash(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	return defaultHasher.Verify(password, hash)
}
