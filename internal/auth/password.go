// Package auth holds credential helpers for charityd operators and tokens.
package auth

import (
	"crypto/subtle"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 10
	maxPasswordLength = 72 // bcrypt input limit
	maxUsernameLength = 32
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._-]*[a-z0-9])?$`)

var (
	decoyOnce sync.Once
	decoyHash []byte
)

// NormalizeUsername returns the canonical lowercase operator name.
func NormalizeUsername(raw string) (string, error) {
	username := strings.TrimSpace(strings.ToLower(raw))
	if username == "" {
		return "", fmt.Errorf("username is required")
	}
	if len(username) > maxUsernameLength {
		return "", fmt.Errorf("username too long")
	}
	if !usernamePattern.MatchString(username) {
		return "", fmt.Errorf("invalid username")
	}
	return username, nil
}

// ValidatePassword checks minimal password requirements.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("password must be at most %d bytes", maxPasswordLength)
	}
	return nil
}

// HashPassword hashes one plaintext password for the operators table.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword verifies plaintext password against a bcrypt hash.
// An empty hash still pays one bcrypt comparison so unknown operators
// take as long to reject as wrong passwords.
func VerifyPassword(passwordHash, candidate string) bool {
	if strings.TrimSpace(passwordHash) == "" {
		_ = bcrypt.CompareHashAndPassword(decoy(), []byte(candidate))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(candidate)) == nil
}

// TokensEqual compares a presented secret to the configured one in constant time.
func TokensEqual(configured, presented string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

func decoy() []byte {
	decoyOnce.Do(func() {
		hashed, err := bcrypt.GenerateFromPassword([]byte("charityd-decoy-password"), bcrypt.DefaultCost)
		if err == nil {
			decoyHash = hashed
		}
	})
	return decoyHash
}
