// Package crypto seals gateway credentials before they reach MySQL.
// Stolen database rows must not be usable against the payment gateway,
// so access and refresh tokens are stored AES-GCM encrypted under a
// key supplied through the environment.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Sealer encrypts and decrypts short strings with AES-GCM.  The nonce
// is prepended to the ciphertext and the result is base64 encoded so
// it fits a TEXT column.
type Sealer struct {
	aead cipher.AEAD
}

// New builds a Sealer from a hex-encoded key.  The key must decode to
// 16, 24 or 32 bytes.
func New(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode credential key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext and returns a base64 string.  Sealing the
// empty string returns the empty string so optional columns stay empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ct := s.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(append(nonce, ct...)), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	buf, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	ns := s.aead.NonceSize()
	if len(buf) < ns {
		return "", errors.New("ciphertext too short")
	}
	pt, err := s.aead.Open(nil, buf[:ns], buf[ns:], nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
