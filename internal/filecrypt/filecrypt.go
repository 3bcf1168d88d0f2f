// Package filecrypt encrypts stored files with AES-256-GCM.
//
// The at-rest representation of a file is a single blob:
//
//	[16-byte nonce][16-byte authentication tag][ciphertext]
//
// The ciphertext has the same length as the plaintext. A fresh random nonce is
// generated for every encryption; callers can never supply one.
package filecrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	KeySize    = 32
	NonceSize  = 16
	TagSize    = 16
	HeaderSize = NonceSize + TagSize
)

var (
	ErrInvalidKey = errors.New("filecrypt: key must be 32 bytes")
	// ErrIntegrity is returned when a blob fails authentication. No plaintext
	// is ever returned alongside it.
	ErrIntegrity = errors.New("filecrypt: integrity check failed")
)

type Sealed struct {
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// Blob returns nonce || tag || ciphertext.
func (s *Sealed) Blob() []byte {
	blob := make([]byte, 0, HeaderSize+len(s.Ciphertext))
	blob = append(blob, s.Nonce...)
	blob = append(blob, s.Tag...)
	return append(blob, s.Ciphertext...)
}

type Cipher struct {
	aead cipher.AEAD
}

func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plaintext []byte) (*Sealed, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("filecrypt: nonce generation failed: %w", err)
	}

	// Seal appends the tag after the ciphertext.
	out := c.aead.Seal(nil, nonce, plaintext, nil)
	split := len(out) - TagSize

	return &Sealed{
		Nonce:      nonce,
		Tag:        out[split:],
		Ciphertext: out[:split],
	}, nil
}

func (c *Cipher) Decrypt(nonce, tag, ciphertext []byte) ([]byte, error) {
	if len(nonce) != NonceSize || len(tag) != TagSize {
		return nil, ErrIntegrity
	}

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

// Split cuts a stored blob at the fixed header offsets.
func Split(blob []byte) (nonce, tag, ciphertext []byte, err error) {
	if len(blob) < HeaderSize {
		return nil, nil, nil, ErrIntegrity
	}
	return blob[:NonceSize], blob[NonceSize:HeaderSize], blob[HeaderSize:], nil
}

// Open splits and decrypts a stored blob.
func (c *Cipher) Open(blob []byte) ([]byte, error) {
	nonce, tag, ciphertext, err := Split(blob)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(nonce, tag, ciphertext)
}

func Encrypt(plaintext, key []byte) (*Sealed, error) {
	c, err := New(key)
	if err != nil {
		return nil, err
	}
	return c.Encrypt(plaintext)
}

func Decrypt(nonce, tag, ciphertext, key []byte) ([]byte, error) {
	c, err := New(key)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(nonce, tag, ciphertext)
}
