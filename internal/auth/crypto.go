// Package auth provides API key issuance and validation for tenant authentication.
//
// API keys are opaque tokens minted by authenticated-encrypting the plaintext
// "app_id:server_id" with AES-256-GCM. The package owns the Cipher, the
// Authenticator, and the TenantRegistry interface the Authenticator reads from;
// the concrete registry lives in internal/storage.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
)

const (
	// keySize is the required secret key length for AES-256.
	keySize = 32

	// nonceSize is the GCM nonce length in bytes (96 bits).
	nonceSize = 12

	// secretKeyEnv is the environment variable holding the AES-256 secret key.
	secretKeyEnv = "AES_SECRET_KEY" // pragma: allowlist secret
)

var (
	// ErrMissingSecretKey is returned when AES_SECRET_KEY is not set.
	ErrMissingSecretKey = errors.New("AES_SECRET_KEY environment variable is not set")

	// ErrInvalidKeySize is returned when the secret key is not exactly 32 bytes.
	ErrInvalidKeySize = errors.New("AES_SECRET_KEY must be exactly 32 bytes for AES-256")

	// ErrMalformedToken is returned for tokens that are not valid base64 or are
	// too short to hold a nonce and an authentication tag.
	ErrMalformedToken = errors.New("malformed API key token")

	// ErrDecryptFailed is returned when the authentication tag does not verify,
	// which includes every token minted under a different key.
	ErrDecryptFailed = errors.New("API key decryption failed")
)

// Cipher provides authenticated symmetric encryption for API key tokens.
//
// A Cipher is constructed once at process start and is read-only afterwards,
// so it is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32-byte secret.
func NewCipher(secret string) (*Cipher, error) {
	if len(secret) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(secret))
	}

	block, err := aes.NewCipher([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// NewCipherFromEnv creates a Cipher from the AES_SECRET_KEY environment variable.
// Missing or wrong-length keys are startup errors; the caller should exit.
func NewCipherFromEnv() (*Cipher, error) {
	secret := os.Getenv(secretKeyEnv)
	if secret == "" {
		return nil, ErrMissingSecretKey
	}

	return NewCipher(secret)
}

// Encrypt seals plaintext under a fresh 96-bit nonce and returns
// base64(nonce || ciphertext || tag). No associated data is used.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends ciphertext||tag to the nonce so the token is self-contained.
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. The GCM open performs a constant-time tag check;
// any tampering or foreign-key token fails with ErrDecryptFailed.
func (c *Cipher) Decrypt(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64", ErrMalformedToken)
	}

	if len(raw) < nonceSize+c.aead.Overhead() {
		return "", fmt.Errorf("%w: token too short", ErrMalformedToken)
	}

	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plaintext), nil
}
