package security

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrCiphertext = errors.New("ciphertext invalid")

// TokenCipher seals provider tokens at rest with XChaCha20-Poly1305.
// Output layout is nonce || ciphertext.
type TokenCipher struct {
	key [chacha20poly1305.KeySize]byte
}

func NewTokenCipher(secret string) (*TokenCipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("token encryption key is required")
	}
	return &TokenCipher{key: sha256.Sum256([]byte(secret))}, nil
}

func (c *TokenCipher) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(aead.NonceSize())
	if err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *TokenCipher) Open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertext
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	out, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, ErrCiphertext
	}
	return out, nil
}
