package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength counts characters, not bytes.
	MinPasswordLength = 12
	// MaxPasswordBytes is the most input bcrypt will look at.
	MaxPasswordBytes = 72

	// TokenPrefix marks staff API tokens so they are recognisable in logs
	// and secret scanners.
	TokenPrefix = "lib_"
)

var (
	ErrInvalidPassword  = errors.New("invalid password")
	ErrPasswordTooShort = errors.New("password must be at least 12 characters")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length of 72 bytes")
)

func clampCost(cost int) int {
	switch {
	case cost < bcrypt.MinCost:
		return bcrypt.DefaultCost
	case cost > bcrypt.MaxCost:
		return bcrypt.MaxCost
	}
	return cost
}

// HashPassword creates a bcrypt hash of a staff password. Out of range
// costs fall back to bcrypt's default or maximum.
func HashPassword(password string, cost int) (string, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), clampCost(cost))
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a password with its hash.
func CheckPassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidPassword
	}
	return err
}

// NeedsRehash reports whether hash was made with a cost other than the
// configured one, e.g. after AUTH_BCRYPT_COST was raised.
func NeedsRehash(hash string, cost int) bool {
	current, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return current != clampCost(cost)
}

// GenerateAPIToken returns a new bearer token, shown to the user once, and
// the hash that is stored in its place.
func GenerateAPIToken() (plaintext string, hash string, err error) {
	secret, err := randomHex(32)
	if err != nil {
		return "", "", err
	}
	plaintext = TokenPrefix + secret
	return plaintext, HashToken(plaintext), nil
}

// HashToken creates a SHA-256 hash of an API token for storage.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(h[:])
}

// GenerateSessionSecret creates a random 32-byte secret, hex encoded, for
// session and CSRF signing.
func GenerateSessionSecret() (string, error) {
	return randomHex(32)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
