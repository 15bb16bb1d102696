package cipher

import (
	"crypto/aes"
	aescipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// SecretCodec converts a credential secret between its API form and its
// stored form. The store never knows which codec produced a value; switching
// codecs is an operational decision, not a schema change.
type SecretCodec interface {
	Encode(plaintext string) (string, error)
	Decode(stored string) (string, error)
}

// PlaintextCodec stores secrets verbatim. This is the default, matching the
// behavior this service replaces.
type PlaintextCodec struct{}

func (PlaintextCodec) Encode(plaintext string) (string, error) { return plaintext, nil }
func (PlaintextCodec) Decode(stored string) (string, error)    { return stored, nil }

// AESGCMCodec encrypts secrets at rest with AES-256-GCM. The stored form is
// base64(nonce || ciphertext).
type AESGCMCodec struct {
	aead aescipher.AEAD
}

// NewAESGCMCodec creates a codec from a 32-byte key.
func NewAESGCMCodec(key []byte) (*AESGCMCodec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	aead, err := aescipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init gcm: %w", err)
	}
	return &AESGCMCodec{aead: aead}, nil
}

func (c *AESGCMCodec) Encode(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *AESGCMCodec) Decode(stored string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("invalid stored secret: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("invalid stored secret: too short")
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plaintext), nil
}
