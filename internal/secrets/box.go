// Package secrets seals per-owner provider credentials at rest.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

var ErrDecrypt = errors.New("secrets: decryption failed")

// scrypt parameters; the salt is fixed because the input key material is
// already a high-entropy configured secret, not a user password.
var keySalt = []byte("outreach.credentials.v1")

// Box encrypts and decrypts short secrets with a key derived from the
// configured secret string.
type Box struct {
	key [32]byte
}

func NewBox(secret string) (*Box, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("secrets: key must be at least 32 characters")
	}
	derived, err := scrypt.Key([]byte(secret), keySalt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("secrets: key derivation failed: %w", err)
	}
	b := &Box{}
	copy(b.key[:], derived)
	return b, nil
}

// Encrypt seals plaintext and returns a base64 token (nonce || ciphertext).
func (b *Box) Encrypt(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("secrets: nonce generation failed: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt.
func (b *Box) Decrypt(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(raw) < 24 {
		return "", ErrDecrypt
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plaintext, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
