// Package cryptoname encrypts the path component of an object key so a
// destination bucket never holds plaintext file or folder names, while
// leaving file contents untouched.
package cryptoname

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// encryptedSuffix marks a key segment as produced by Encrypt, so Decrypt
// can reject a segment that was never encrypted.
const encryptedSuffix = ".enc"

// ErrNotEncrypted is returned by Decrypt when name does not end in the
// encrypted suffix.
var ErrNotEncrypted = errors.New("cryptoname: name is not an encrypted segment")

// Cipher encrypts and decrypts path segments with a single fixed key.
// A Cipher is safe for concurrent use.
type Cipher struct {
	aead     cipher.AEAD
	nonceKey []byte
}

// New returns a Cipher using key, which must be exactly
// chacha20poly1305.KeySize (32) bytes — see GenerateKey.
func New(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoname: constructing cipher: %w", err)
	}

	return &Cipher{aead: aead, nonceKey: key}, nil
}

// GenerateKey returns a new random key suitable for New, base64-encoded
// for storage in configuration.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("cryptoname: generating key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(key), nil
}

// DecodeKey reverses GenerateKey's encoding.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("cryptoname: decoding key: %w", err)
	}

	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("cryptoname: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}

	return key, nil
}

// Encrypt seals name (a single path segment, e.g. a filename) and returns
// a base64url-encoded ciphertext safe for use as an object-key segment,
// suffixed with ".enc". The nonce is derived from name rather than drawn
// at random: the resulting object key must be stable across runs so the
// skip-if-unchanged check can find a file it already uploaded, and a
// name-derived nonce never repeats for two different plaintexts under a
// fixed key without also repeating the plaintext itself.
func (c *Cipher) Encrypt(name string) (string, error) {
	nonce := c.deriveNonce(name)

	sealed := c.aead.Seal(nil, nonce, []byte(name), nil)
	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(append(nonce, sealed...))

	return encoded + encryptedSuffix, nil
}

// deriveNonce computes an AEAD nonce from name via HMAC-SHA256, keyed with
// the sealing key and prefixed with a fixed domain-separation label,
// truncated to the cipher's nonce size.
func (c *Cipher) deriveNonce(name string) []byte {
	mac := hmac.New(sha256.New, c.nonceKey)
	mac.Write([]byte("cryptoname-nonce"))
	mac.Write([]byte(name))

	return mac.Sum(nil)[:c.aead.NonceSize()]
}

// Decrypt reverses Encrypt. Returns ErrNotEncrypted if encrypted lacks
// the expected suffix.
func (c *Cipher) Decrypt(encrypted string) (string, error) {
	trimmed, ok := cutSuffix(encrypted, encryptedSuffix)
	if !ok {
		return "", ErrNotEncrypted
	}

	sealed, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(trimmed)
	if err != nil {
		return "", fmt.Errorf("cryptoname: decoding segment: %w", err)
	}

	if len(sealed) < c.aead.NonceSize() {
		return "", errors.New("cryptoname: ciphertext shorter than nonce")
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("cryptoname: decrypting segment: %w", err)
	}

	return string(plaintext), nil
}

func cutSuffix(s, suffix string) (string, bool) {
	if len(s) < len(suffix) || s[len(s)-len(suffix):] != suffix {
		return s, false
	}

	return s[:len(s)-len(suffix)], true
}
