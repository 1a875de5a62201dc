// internal/auth/credential.go
package auth

import (
	"fmt"

	"github.com/stockwise/forecaster/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// Verify checks the ingestion shared secret against the configured bcrypt
// hash. It runs before any batch data is touched.
func Verify(serverPass, hash string) error {
	if hash == "" {
		return fmt.Errorf("%w: no ingestion credential configured", domain.ErrAuth)
	}
	if serverPass == "" {
		return fmt.Errorf("%w: missing server_pass", domain.ErrAuth)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(serverPass)); err != nil {
		return fmt.Errorf("%w: bad server_pass", domain.ErrAuth)
	}
	return nil
}

// Hash derives the bcrypt hash to store for a shared secret.
func Hash(serverPass string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(serverPass), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
