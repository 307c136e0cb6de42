// Package auth provides credential verification and session management for
// the web console.
package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid session")
)

// Authenticator verifies the shared console credential. The credential is
// configured once at startup, either as a plaintext password or as a bcrypt
// hash; the hash takes precedence when both are set.
type Authenticator struct {
	password     []byte
	passwordHash []byte
}

// NewAuthenticator builds an authenticator from the configured credential.
func NewAuthenticator(password, passwordHash string) *Authenticator {
	a := &Authenticator{}
	if password != "" {
		a.password = []byte(password)
	}
	if passwordHash != "" {
		a.passwordHash = []byte(passwordHash)
	}
	return a
}

// Required reports whether a credential is configured at all. When it is
// not, the console runs open and no authentication is enforced.
func (a *Authenticator) Required() bool {
	return len(a.password) > 0 || len(a.passwordHash) > 0
}

// Verify checks a supplied password against the configured credential.
// The comparison runs regardless of whether the input is empty, so a
// missing password costs the same as a wrong one.
func (a *Authenticator) Verify(password string) error {
	if !a.Required() {
		return nil
	}

	if len(a.passwordHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
			return ErrInvalidCredentials
		}
		return nil
	}

	if subtle.ConstantTimeCompare(a.password, []byte(password)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}
