package staff

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	dErrors "leadtriage/pkg/domain-errors"
)

// dummyHash is compared against when the email is unknown so the response
// time does not reveal which staff accounts exist.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("leadtriage-unknown-account"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return hash
})

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "Invalid email or password")

// Credentials checks staff passwords against bcrypt hashes keyed by email.
type Credentials struct {
	hashes map[string][]byte
}

// NewCredentials builds a credential set. Emails are matched case-insensitively.
func NewCredentials(accounts map[string]string) *Credentials {
	hashes := make(map[string][]byte, len(accounts))
	for email, hash := range accounts {
		hashes[normalizeEmail(email)] = []byte(hash)
	}
	return &Credentials{hashes: hashes}
}

// Authenticate returns the canonical email on success.
func (c *Credentials) Authenticate(_ context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	hash, ok := c.hashes[email]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return "", errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return "", errInvalidCredentials
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to check password")
	}
	return email, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
