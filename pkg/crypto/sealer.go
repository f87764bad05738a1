package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrMalformedCiphertext is returned when a sealed payload is too short or fails authentication.
var ErrMalformedCiphertext = errors.New("malformed sealed payload")

// Sealer encrypts small records at rest using XChaCha20-Poly1305.
type Sealer struct {
	key []byte
}

// NewSealer accepts a 32 byte key given raw or hex encoded.
func NewSealer(key string) (*Sealer, error) {
	raw := []byte(key)
	if len(key) == hex.EncodedLen(chacha20poly1305.KeySize) {
		decoded, err := hex.DecodeString(key)
		if err == nil {
			raw = decoded
		}
	}
	if len(raw) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("session key must be %d bytes, got %d", chacha20poly1305.KeySize, len(raw))
	}
	return &Sealer{key: raw}, nil
}

// Seal encrypts plaintext and prefixes the random nonce. additional is authenticated but not encrypted.
func (s *Sealer) Seal(plaintext, additional []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, additional), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed, additional []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformedCiphertext
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, additional)
	if err != nil {
		return nil, ErrMalformedCiphertext
	}
	return plaintext, nil
}
