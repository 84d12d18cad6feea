// Package crypto encrypts profile secrets at rest using AES-256-GCM.
// Secrets are stored as hex(nonce || ciphertext) so the profile file
// stays plain JSON.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Cipher seals and opens profile secrets with a fixed key.
type Cipher struct {
	key []byte
}

// NewCipher derives a Cipher from the given passphrase. The passphrase is
// zero-padded or truncated to KeySize bytes.
func NewCipher(passphrase string) *Cipher {
	key := make([]byte, KeySize)
	copy(key, passphrase)
	return &Cipher{key: key}
}

// Encrypt seals plaintext and returns hex(nonce || ciphertext).
// An empty plaintext encrypts to an empty string, so profiles without a
// stored password round-trip unchanged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %v", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %v", err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %v", err)
	}

	sealed := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt opens a hex(nonce || ciphertext) string produced by Encrypt.
func (c *Cipher) Decrypt(encryptedHex string) (string, error) {
	if encryptedHex == "" {
		return "", nil
	}

	combined, err := hex.DecodeString(encryptedHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %v", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %v", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %v", err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(combined) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := aesGCM.Open(nil, combined[:nonceSize], combined[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %v", err)
	}

	return string(plaintext), nil
}
