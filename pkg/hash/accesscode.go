package hash

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost    = 12
	minCodeLength = 6
)

// Hash bcrypt-hashes a store access code.
func Hash(code string) (string, error) {
	if len(code) < minCodeLength {
		return "", fmt.Errorf("access code must be at least %d characters", minCodeLength)
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(code), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash access code: %w", err)
	}

	return string(hashedBytes), nil
}

// Compare checks a plaintext access code against its stored hash.
func Compare(hashedCode, code string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedCode), []byte(code))
}
