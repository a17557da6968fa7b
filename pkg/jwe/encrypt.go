package jwe

import (
	"errors"
	"fmt"

	"github.com/picatz/joseloader/pkg/base64"
	"github.com/picatz/joseloader/pkg/compression"
	"github.com/picatz/joseloader/pkg/header"
	"github.com/picatz/joseloader/pkg/jwa"
	"github.com/picatz/joseloader/pkg/jwk"
	"github.com/picatz/joseloader/pkg/keyutil"
)

// Compressor deflates plaintext before encryption. *compression.Registry
// implements it.
type Compressor interface {
	Compress(name string, data []byte, level compression.Level) ([]byte, error)
}

// RecipientKey describes one recipient to encrypt to.
type RecipientKey struct {
	// Algorithm is the key management "alg".
	Algorithm jwa.Algorithm

	// Key is the recipient's public or symmetric key.
	Key jwk.Value

	// Header holds additional recipient parameters, such as "kid",
	// "apu", "apv", "p2s" or "p2c".
	Header Header
}

// EncryptConfig holds the encryption options.
type EncryptConfig struct {
	protected   Header
	unprotected Header
	aad         []byte
	compressor  Compressor
	zip         jwa.Algorithm
	level       compression.Level
}

// EncryptOption configures Encrypt.
type EncryptOption func(*EncryptConfig) error

// WithProtectedHeader adds parameters to the protected header.
func WithProtectedHeader(h Header) EncryptOption {
	return func(ec *EncryptConfig) error {
		ec.protected = h.Clone()
		return nil
	}
}

// WithUnprotectedHeader sets the shared unprotected header.
func WithUnprotectedHeader(h Header) EncryptOption {
	return func(ec *EncryptConfig) error {
		ec.unprotected = h.Clone()
		return nil
	}
}

// WithAAD sets the additional authenticated data. Tokens carrying it
// have no compact serialization.
func WithAAD(aad []byte) EncryptOption {
	return func(ec *EncryptConfig) error {
		ec.aad = aad
		return nil
	}
}

// WithCompression compresses the plaintext with the named method and
// declares it in the protected "zip" header.
func WithCompression(c Compressor, method jwa.Algorithm, level compression.Level) EncryptOption {
	return func(ec *EncryptConfig) error {
		if c == nil {
			return errors.New("nil compressor")
		}
		if err := level.Validate(); err != nil {
			return err
		}
		ec.compressor = c
		ec.zip = method
		ec.level = level
		return nil
	}
}

// Encrypt encrypts the plaintext with the "enc" content algorithm for
// each recipient. A single recipient has all of its parameters in the
// protected header, so the result has a compact serialization. Direct
// algorithms ("dir", "ECDH-ES") only work with a single recipient.
func Encrypt(plaintext []byte, enc jwa.Algorithm, recipients []RecipientKey, opts ...EncryptOption) (*General, error) {
	config := &EncryptConfig{level: compression.DefaultLevel}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply encrypt option: %w", err)
		}
	}

	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	cipher, ok := LookupContentCipher(enc)
	if !ok {
		return nil, fmt.Errorf("%w: %q", jwa.ErrUnsupportedAlgorithm, enc)
	}

	managers := make([]KeyManager, len(recipients))
	for i, r := range recipients {
		m, ok := LookupKeyManager(r.Algorithm)
		if !ok {
			return nil, fmt.Errorf("recipient %d: %w: %q", i, jwa.ErrUnsupportedAlgorithm, r.Algorithm)
		}
		if m.Direct() && len(recipients) > 1 {
			return nil, fmt.Errorf("recipient %d: %s cannot be used with other recipients", i, r.Algorithm)
		}
		managers[i] = m
	}

	var cek []byte
	if !managers[0].Direct() {
		var err error
		cek, err = keyutil.NewSymmetricKey(cipher.KeySize())
		if err != nil {
			return nil, err
		}
	}

	token := &General{
		Unprotected: config.unprotected,
		Recipients:  make([]Recipient, len(recipients)),
	}

	protected := union(config.protected, Header{header.Encryption: enc})
	if config.compressor != nil {
		protected[header.Zip] = config.zip
	}

	for i, r := range recipients {
		wrapped, err := managers[i].Wrap(cek, cipher, r.Key, r.Header)
		if err != nil {
			return nil, fmt.Errorf("recipient %d: failed to wrap key: %w", i, err)
		}
		cek = wrapped.CEK

		params := union(Header{header.Algorithm: r.Algorithm}, r.Header, wrapped.Header)
		if len(recipients) == 1 {
			protected = union(protected, params)
		} else {
			token.Recipients[i].Header = params
		}
		token.Recipients[i].EncryptedKey = base64.Encode(wrapped.EncryptedKey)
	}

	for i, r := range token.Recipients {
		_, err := header.Merge(protected, token.Unprotected, r.Header)
		if err != nil {
			return nil, fmt.Errorf("recipient %d: %w", i, err)
		}
	}

	var err error
	token.Protected, err = protected.Base64URLString()
	if err != nil {
		return nil, err
	}
	if len(config.aad) > 0 {
		token.AAD = base64.Encode(config.aad)
	}

	content := plaintext
	if config.compressor != nil {
		content, err = config.compressor.Compress(config.zip, plaintext, config.level)
		if err != nil {
			return nil, err
		}
	}

	iv, ciphertext, tag, err := cipher.Encrypt(cek, content, token.AdditionalData())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt content: %w", err)
	}

	token.IV = base64.Encode(iv)
	token.Ciphertext = base64.Encode(ciphertext)
	token.Tag = base64.Encode(tag)

	return token, nil
}

// union returns a new header with the parameters of every set, later
// sets taking precedence.
func union(sets ...Header) Header {
	out := Header{}
	for _, set := range sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}
