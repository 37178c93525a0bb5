package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost stays above bcrypt.DefaultCost on purpose: the hash is the
// dominant latency contributor on login and must remain expensive.
const bcryptCost = 12

// HashPassword hashes a plaintext password with bcrypt. The plaintext is
// never stored or logged anywhere.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
