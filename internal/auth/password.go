package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword compares a bcrypt hashed password with its plaintext version.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// burnCompare spends one bcrypt comparison so unknown usernames take as long as wrong passwords.
func burnCompare(password string) {
	dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("parley-dummy-password"), bcryptCost)
		if err == nil {
			dummyHash = string(h)
		}
	})
	if dummyHash != "" {
		_ = ComparePassword(dummyHash, password)
	}
}
