package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor. bcrypt salts every hash individually and
// compares in constant time, so equal passwords never produce equal hashes
// and verification timing does not depend on how much of a guess matches.
const Cost = bcrypt.DefaultCost

// ErrEmptyPassword is returned when an empty password is hashed.
var ErrEmptyPassword = errors.New("password must not be empty")

// Guard hashes and verifies share passwords.
type Guard struct {
	cost int
}

// NewGuard constructs a Guard with the default cost.
func NewGuard() *Guard {
	return &Guard{cost: Cost}
}

// Hash derives an irreversible salted hash of the given password.
func (g *Guard) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), g.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plain matches the stored hash.
func (g *Guard) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
