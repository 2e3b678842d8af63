package local

import (
	"errors"

	"github.com/goliatone/go-identity"
	"golang.org/x/crypto/bcrypt"
)

// HashSecret will generate a bcrypt hash for the given secret.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", identity.ErrInvalidCredentials
	}

	h, err := bcrypt.GenerateFromPassword([]byte(secret), 14)
	return string(h), err
}

// CompareSecretAndHash will validate the given cleartext secret matches
// the stored hash.
func CompareSecretAndHash(secret, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return identity.ErrInvalidCredentials
		}
		return err
	}
	return nil
}
