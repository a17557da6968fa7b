// Package loader turns serialized JOSE input into canonical tokens and
// dispatches them to the verification or decryption pipeline.
package loader

import (
	"fmt"

	"github.com/picatz/joseloader/pkg/compression"
	"github.com/picatz/joseloader/pkg/jwa"
	"github.com/picatz/joseloader/pkg/jwe"
	"github.com/picatz/joseloader/pkg/jwk"
	"github.com/picatz/joseloader/pkg/jws"
	"github.com/picatz/joseloader/pkg/logging"
)

// Loader loads, verifies and decrypts tokens. A Loader holds no per-call
// state and is safe for concurrent use.
type Loader struct {
	logger      logging.Logger
	compression *compression.Registry
}

// Option configures a Loader.
type Option func(*Loader) error

// WithLogger sets the logger used by the loader and the pipelines it
// calls.
func WithLogger(logger logging.Logger) Option {
	return func(l *Loader) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		l.logger = logger
		return nil
	}
}

// WithCompression sets the registry resolving the JWE "zip" header.
func WithCompression(registry *compression.Registry) Option {
	return func(l *Loader) error {
		if registry == nil {
			return fmt.Errorf("nil compression registry")
		}
		l.compression = registry
		return nil
	}
}

// New returns a Loader. Without options it discards logs and supports
// the "DEF", "ZLIB" and "GZ" compression methods.
func New(opts ...Option) (*Loader, error) {
	l := &Loader{
		logger:      logging.NewNoOpLogger(),
		compression: compression.Default(),
	}
	for _, opt := range opts {
		err := opt(l)
		if err != nil {
			return nil, fmt.Errorf("failed to apply loader option: %w", err)
		}
	}
	return l, nil
}

// Load normalizes the input into a *jws.General or *jwe.General.
func (l *Loader) Load(input []byte) (Token, error) {
	token, form, err := normalize(input)
	if err != nil {
		l.logger.Debug("Input could not be loaded: %v", err)
		return nil, err
	}

	l.logger.WithFields(map[string]any{
		"kind": token.Kind(),
		"form": string(form),
	}).Debug("Input loaded.")

	return token, nil
}

// LoadAndVerify loads a JWS and verifies it. Input that is not a JWS
// fails with ErrUnsupportedInput.
func (l *Loader) LoadAndVerify(input []byte, keys jwk.KeySet, allowed jwa.AllowedAlgorithms, opts ...jws.VerifyOption) (*jws.General, *jws.Result, error) {
	token, err := l.Load(input)
	if err != nil {
		return nil, nil, err
	}

	signed, ok := token.(*jws.General)
	if !ok {
		return nil, nil, fmt.Errorf("%w: input is a %s, not a JWS", ErrUnsupportedInput, token.Kind())
	}

	opts = append([]jws.VerifyOption{jws.WithLogger(l.logger)}, opts...)

	result, err := jws.Verify(signed, keys, allowed, opts...)
	if err != nil {
		return nil, nil, err
	}
	return signed, result, nil
}

// LoadAndDecrypt loads a JWE and decrypts it. Input that is not a JWE
// fails with ErrUnsupportedInput.
func (l *Loader) LoadAndDecrypt(input []byte, keys jwk.KeySet, keyAlgs, encAlgs jwa.AllowedAlgorithms, opts ...jwe.DecryptOption) (*jwe.General, *jwe.Result, error) {
	token, err := l.Load(input)
	if err != nil {
		return nil, nil, err
	}

	encrypted, ok := token.(*jwe.General)
	if !ok {
		return nil, nil, fmt.Errorf("%w: input is a %s, not a JWE", ErrUnsupportedInput, token.Kind())
	}

	opts = append([]jwe.DecryptOption{jwe.WithLogger(l.logger)}, opts...)

	result, err := jwe.Decrypt(encrypted, keys, keyAlgs, encAlgs, l.compression, opts...)
	if err != nil {
		return nil, nil, err
	}
	return encrypted, result, nil
}
