// Package secrets decrypts the identifier ciphertext stored on a case. The
// case-management service encrypts with AES-256-GCM and stores
// base64(nonce || ciphertext); this side only ever decrypts.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Box decrypts values sealed with the shared 32-byte key.
type Box struct {
	aead cipher.AEAD
}

// New builds a Box from a hex-encoded 32-byte key.
func New(hexKey string) (*Box, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("secrets: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: gcm: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Decrypt opens base64(nonce || ciphertext) and returns the plaintext.
func (b *Box) Decrypt(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("secrets: decode ciphertext: %w", err)
	}
	ns := b.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("secrets: ciphertext too short")
	}
	plain, err := b.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("secrets: open: %w", err)
	}
	return string(plain), nil
}

// Seal encrypts plaintext with a caller-provided nonce layout matching
// Decrypt. Exposed for tests and for seeding development data.
func (b *Box) Seal(plain string, nonce []byte) (string, error) {
	if len(nonce) != b.aead.NonceSize() {
		return "", fmt.Errorf("secrets: nonce must be %d bytes", b.aead.NonceSize())
	}
	out := b.aead.Seal(nil, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(append(append([]byte{}, nonce...), out...)), nil
}
