// Package crypto implements the env-var encryption scheme: AES-256-GCM
// with a 12-byte random nonce, stored as hex(nonce):hex(tag):hex(ct).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// KeySize is the required encryption key length in bytes.
const KeySize = 32

const (
	nonceSize = 12
	tagSize   = 16
)

// Cipher encrypts and decrypts environment variable values.
type Cipher struct {
	aead cipher.AEAD
}

// New creates a Cipher from raw key material. The key must be exactly
// 32 bytes.
func New(key string) (*Cipher, error) {
	raw := []byte(key)
	if len(raw) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(raw))
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext into the storage form hex(nonce):hex(tag):hex(ct).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	// Seal appends the 16-byte tag after the ciphertext.
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens a stored value. Values that do not parse as the storage
// form, or whose tag fails verification, are returned verbatim: earlier
// deployments stored plaintext values.
func (c *Cipher) Decrypt(stored string) string {
	parts := strings.Split(stored, ":")
	if len(parts) != 3 {
		return stored
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return stored
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return stored
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return stored
	}

	plain, err := c.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return stored
	}

	return string(plain)
}
