package sessions

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errInvalidCiphertext = errors.New("invalid session ciphertext")

// Sealer encrypts session snapshots before they leave the process; they carry
// the download token.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer accepts a key of 32 raw bytes or its base64 encoding.
func NewSealer(rawKey string) (*Sealer, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, errors.New("session seal key not set")
	}
	key, err := decodeKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("decode seal key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func decodeKey(raw string) ([]byte, error) {
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length %d, want 32", len(key))
	}
	return key, nil
}

// Seal encrypts plain; the id is bound as additional data so a sealed
// snapshot cannot be replayed under another session key.
func (s *Sealer) Seal(id string, plain []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plain, []byte(id))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Sealer) Open(id, input string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		return nil, errInvalidCiphertext
	}
	ns := s.aead.NonceSize()
	if len(data) < ns {
		return nil, errInvalidCiphertext
	}
	plain, err := s.aead.Open(nil, data[:ns], data[ns:], []byte(id))
	if err != nil {
		return nil, errInvalidCiphertext
	}
	return plain, nil
}
