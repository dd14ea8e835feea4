package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Box seals small secrets (carrier credentials) for storage at rest.
//
// Wire format: "v1." + base64url(nonce || tag || ciphertext), AES-256-GCM.
// The version prefix exists so the key or construction can change without a
// data migration scanning for format by shape.

const (
	versionPrefix = "v1."
	tagSize       = 16
)

var (
	ErrBadKey        = errors.New("secrets: key must be 32 bytes")
	ErrUnsupported   = errors.New("secrets: unsupported sealed format")
	ErrCannotDecrypt = errors.New("secrets: cannot decrypt")
)

type Box struct {
	aead cipher.AEAD
}

func NewBox(key []byte) (*Box, error) {
	if len(key) != 32 {
		return nil, ErrBadKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext and returns the versioned, base64url-encoded blob.
func (b *Box) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := b.aead.Seal(nil, nonce, plaintext, nil)
	if len(sealed) < tagSize {
		return "", fmt.Errorf("secrets: sealed output too short")
	}
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, len(nonce)+len(tag)+len(ct))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)

	return versionPrefix + base64.RawURLEncoding.EncodeToString(blob), nil
}

// Open decrypts a blob produced by Seal.
// A failure here usually means the key rotated underneath stored data.
func (b *Box) Open(sealed string) ([]byte, error) {
	if !strings.HasPrefix(sealed, versionPrefix) {
		return nil, ErrUnsupported
	}
	blob, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, versionPrefix))
	if err != nil {
		return nil, ErrUnsupported
	}
	ns := b.aead.NonceSize()
	if len(blob) < ns+tagSize {
		return nil, ErrUnsupported
	}
	nonce := blob[:ns]
	tag := blob[ns : ns+tagSize]
	ct := blob[ns+tagSize:]

	// GCM wants ciphertext||tag.
	joined := make([]byte, 0, len(ct)+len(tag))
	joined = append(joined, ct...)
	joined = append(joined, tag...)

	plain, err := b.aead.Open(nil, nonce, joined, nil)
	if err != nil {
		return nil, ErrCannotDecrypt
	}
	return plain, nil
}

// Fingerprint returns a one-way digest of a carrier-qualified credential
// string, usable in logs and audit rows without exposing the secret.
func Fingerprint(carrier, credential string) string {
	sum := sha256.Sum256([]byte(carrier + ":" + credential))
	return hex.EncodeToString(sum[:])
}
