package jwe

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	josecipher "github.com/go-jose/go-jose/v3/cipher"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/exp/slices"

	"github.com/picatz/joseloader/pkg/jwa"
)

// ContentCipher is a content encryption algorithm capability.
type ContentCipher interface {
	// Algorithm returns the "enc" value.
	Algorithm() jwa.Algorithm

	// KeySize returns the content encryption key length in bytes.
	KeySize() int

	// Encrypt encrypts and authenticates plaintext and aad with a fresh
	// initialization vector.
	Encrypt(cek, plaintext, aad []byte) (iv, ciphertext, tag []byte, err error)

	// Decrypt authenticates and decrypts. A tag mismatch is reported as
	// ErrAuthenticationFailed and no plaintext is returned.
	Decrypt(cek, iv, ciphertext, tag, aad []byte) ([]byte, error)
}

var contentCiphers = map[jwa.Algorithm]ContentCipher{}

func init() {
	for _, c := range []ContentCipher{
		aeadCipher{jwa.A128GCM, 16, 16, newGCM},
		aeadCipher{jwa.A192GCM, 24, 16, newGCM},
		aeadCipher{jwa.A256GCM, 32, 16, newGCM},
		aeadCipher{jwa.A128CBCHS256, 32, 16, newCBCHMAC},
		aeadCipher{jwa.A192CBCHS384, 48, 24, newCBCHMAC},
		aeadCipher{jwa.A256CBCHS512, 64, 32, newCBCHMAC},
		aeadCipher{jwa.XC20P, chacha20poly1305.KeySize, chacha20poly1305.Overhead, chacha20poly1305.NewX},
	} {
		contentCiphers[c.Algorithm()] = c
	}
}

// LookupContentCipher returns the content cipher for the "enc" value.
func LookupContentCipher(enc jwa.Algorithm) (ContentCipher, bool) {
	c, ok := contentCiphers[enc]
	return c, ok
}

// SupportedContentAlgorithm reports whether the "enc" value is
// implemented.
func SupportedContentAlgorithm(enc jwa.Algorithm) bool {
	_, ok := contentCiphers[enc]
	return ok
}

// ContentAlgorithms returns the implemented "enc" values, sorted.
func ContentAlgorithms() []jwa.Algorithm {
	names := make([]jwa.Algorithm, 0, len(contentCiphers))
	for name := range contentCiphers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// https://datatracker.ietf.org/doc/html/rfc7518#section-5.3
func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// https://datatracker.ietf.org/doc/html/rfc7518#section-5.2
func newCBCHMAC(key []byte) (cipher.AEAD, error) {
	return josecipher.NewCBCHMAC(key, aes.NewCipher)
}

// aeadCipher adapts an AEAD construction whose sealed output is the
// ciphertext followed by the tag. The tag size is kept separately since
// Overhead for CBC-HMAC also counts the worst-case padding block.
type aeadCipher struct {
	name    jwa.Algorithm
	keySize int
	tagSize int
	newAEAD func(key []byte) (cipher.AEAD, error)
}

func (c aeadCipher) Algorithm() jwa.Algorithm { return c.name }

func (c aeadCipher) KeySize() int { return c.keySize }

func (c aeadCipher) aead(cek []byte) (cipher.AEAD, error) {
	if len(cek) != c.keySize {
		return nil, fmt.Errorf("invalid content encryption key length %d for %s, need %d", len(cek), c.name, c.keySize)
	}
	aead, err := c.newAEAD(cek)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s cipher: %w", c.name, err)
	}
	return aead, nil
}

func (c aeadCipher) Encrypt(cek, plaintext, aad []byte) (iv, ciphertext, tag []byte, err error) {
	aead, err := c.aead(cek)
	if err != nil {
		return nil, nil, nil, err
	}

	iv = make([]byte, aead.NonceSize())
	_, err = rand.Read(iv)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate initialization vector: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, aad)
	split := len(sealed) - c.tagSize

	return iv, sealed[:split], sealed[split:], nil
}

func (c aeadCipher) Decrypt(cek, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	aead, err := c.aead(cek)
	if err != nil {
		return nil, err
	}

	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("invalid initialization vector length %d for %s", len(iv), c.name)
	}
	if len(tag) != c.tagSize {
		return nil, fmt.Errorf("%w: invalid tag length %d for %s", ErrAuthenticationFailed, len(tag), c.name)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
