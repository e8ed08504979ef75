package storage

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost defines the computational cost for bcrypt hashing.
	// Cost 10 = ~60ms per hash; can be raised to 12 for hardening.
	bcryptCost  = 10
	bcryptLimit = 72
)

// ErrKeyEmpty is returned when an empty API key is offered for hashing.
var ErrKeyEmpty = errors.New("api key cannot be empty")

// HashAPIKey generates a bcrypt hash of an API key for the issuance log.
// Plaintext tokens are never stored; only the hash is persisted.
//
// Bcrypt has a 72-byte input limit and the encrypted tokens always exceed
// it, so keys longer than the limit are pre-hashed with SHA-256 before
// bcrypt.
func HashAPIKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrKeyEmpty
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(apiKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	return string(hash), nil
}

// CompareAPIKeyHash performs constant-time comparison of an API key against
// a stored bcrypt hash. Returns false for any error condition (empty inputs,
// invalid hash format).
func CompareAPIKeyHash(hash, apiKey string) bool {
	if hash == "" || apiKey == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(apiKey)) == nil
}

// bcryptInput prepares a key for bcrypt, pre-hashing with SHA-256 when it
// exceeds bcrypt's input limit. Hashing and comparison must share this.
func bcryptInput(apiKey string) []byte {
	if len(apiKey) <= bcryptLimit {
		return []byte(apiKey)
	}

	sum := sha256.Sum256([]byte(apiKey))

	return sum[:]
}
