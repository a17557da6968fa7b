package jwe

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/picatz/joseloader/pkg/base64"
	"github.com/picatz/joseloader/pkg/compression"
	"github.com/picatz/joseloader/pkg/header"
	"github.com/picatz/joseloader/pkg/jwa"
	"github.com/picatz/joseloader/pkg/jwk"
	"github.com/picatz/joseloader/pkg/logging"
)

// Decompressor inflates authenticated plaintext named by the "zip"
// header. *compression.Registry implements it.
type Decompressor interface {
	Uncompress(name string, data []byte) ([]byte, error)
}

// DecryptConfig holds the decryption options.
type DecryptConfig struct {
	critical []string
	logger   logging.Logger
}

// DecryptOption configures Decrypt.
type DecryptOption func(*DecryptConfig) error

// WithCriticalParameters declares the "crit" extensions understood by
// the caller.
func WithCriticalParameters(names ...string) DecryptOption {
	return func(dc *DecryptConfig) error {
		dc.critical = append(dc.critical, names...)
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger logging.Logger) DecryptOption {
	return func(dc *DecryptConfig) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		dc.logger = logger
		return nil
	}
}

// Result describes the recipient that decrypted.
type Result struct {
	// Index is the position of the recipient in the token.
	Index int

	// Header is the merged protected, shared and per-recipient header of
	// the matching recipient.
	Header Header

	// Plaintext is the authenticated, decompressed content.
	Plaintext []byte
}

// decoded are the token members shared by every recipient.
type decoded struct {
	iv, ciphertext, tag, aad []byte
}

func decodeShared(token *General) (*decoded, error) {
	var (
		d   decoded
		err error
	)
	for _, m := range []struct {
		name  string
		value string
		dst   *[]byte
	}{
		{"iv", token.IV, &d.iv},
		{"ciphertext", token.Ciphertext, &d.ciphertext},
		{"tag", token.Tag, &d.tag},
		{"aad", token.AAD, &d.aad},
	} {
		*m.dst, err = base64.Decode(m.value)
		if err != nil {
			return nil, fmt.Errorf("jwe: invalid %s: %w", m.name, err)
		}
	}
	return &d, nil
}

// Decrypt tries every recipient of the token, in order, against the
// candidate keys of the key set, and returns the plaintext of the first
// one whose content authenticates.
//
// A recipient is skipped when its "alg" is outside keyAlgs or its "enc"
// outside encAlgs. If every recipient is skipped the error wraps
// jwa.ErrUnsupportedAlgorithm, otherwise exhaustion is reported as
// ErrNoMatchingRecipient. Authentication failures only end the current
// (recipient, key) attempt.
//
// The content is authenticated before a "zip" header is honoured, so
// decompression never sees unauthenticated bytes. Once authenticated,
// an unknown method or a decompression error is returned as is.
func Decrypt(token *General, keys jwk.KeySet, keyAlgs, encAlgs jwa.AllowedAlgorithms, zip Decompressor, opts ...DecryptOption) (*Result, error) {
	config := &DecryptConfig{
		logger: logging.NewNoOpLogger(),
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply decrypt option: %w", err)
		}
	}

	if token == nil || len(token.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	protected, shared, err := token.SharedHeader()
	if err != nil {
		return nil, err
	}

	d, err := decodeShared(token)
	if err != nil {
		return nil, err
	}
	aad := token.AdditionalData()

	var (
		failures *multierror.Error
		skipped  int
	)

	for i, recipient := range token.Recipients {
		merged, err := header.Merge(shared, recipient.Header)
		if err != nil {
			return nil, fmt.Errorf("recipient %d: %w", i, err)
		}

		encryptedKey, err := base64.Decode(recipient.EncryptedKey)
		if err != nil {
			return nil, fmt.Errorf("recipient %d: invalid encrypted key: %w", i, err)
		}

		logger := config.logger.WithFields(map[string]any{"recipient": i})

		manager, enc, err := recipientAlgorithms(merged, keyAlgs, encAlgs)
		if err != nil {
			skipped++
			failures = multierror.Append(failures, fmt.Errorf("recipient %d: %w", i, err))
			logger.Debug("Skipping recipient, algorithm is not allowed.")
			continue
		}

		err = header.CheckCritical(protected, merged, config.critical...)
		if err != nil {
			failures = multierror.Append(failures, fmt.Errorf("recipient %d: %w", i, err))
			logger.Debug("Skipping recipient with unsupported critical parameters.")
			continue
		}

		if _, ok := merged[header.Zip]; ok {
			if _, ok := protected[header.Zip]; !ok {
				failures = multierror.Append(failures, fmt.Errorf("recipient %d: %q must be integrity protected", i, header.Zip))
				logger.Debug("Skipping recipient with an unprotected compression parameter.")
				continue
			}
		}

		plaintext, err := tryKeys(manager, enc, encryptedKey, keys, merged, d, aad)
		if err != nil {
			failures = multierror.Append(failures, fmt.Errorf("recipient %d: %w", i, err))
			continue
		}

		logger.Info("Recipient decrypted with %q and %q.", manager.Algorithm(), enc.Algorithm())

		plaintext, err = decompress(zip, merged, plaintext)
		if err != nil {
			return nil, err
		}

		return &Result{Index: i, Header: merged, Plaintext: plaintext}, nil
	}

	config.logger.WithFields(map[string]any{
		"recipients": len(token.Recipients),
		"skipped":    skipped,
	}).Debug("No recipient decrypted: %v", failures.ErrorOrNil())

	if skipped == len(token.Recipients) {
		return nil, fmt.Errorf("%w: no recipient uses allowed algorithms", jwa.ErrUnsupportedAlgorithm)
	}

	return nil, ErrNoMatchingRecipient
}

// recipientAlgorithms resolves "alg" and "enc" against the allow-lists
// and the registries.
func recipientAlgorithms(hdr Header, keyAlgs, encAlgs jwa.AllowedAlgorithms) (KeyManager, ContentCipher, error) {
	alg, err := hdr.Algorithm()
	if err != nil {
		return nil, nil, err
	}
	encName, err := hdr.Encryption()
	if err != nil {
		return nil, nil, err
	}

	manager, ok := LookupKeyManager(alg)
	if !ok || !keyAlgs.Allowed(alg) {
		return nil, nil, fmt.Errorf("%w: %q", jwa.ErrUnsupportedAlgorithm, alg)
	}
	enc, ok := LookupContentCipher(encName)
	if !ok || !encAlgs.Allowed(encName) {
		return nil, nil, fmt.Errorf("%w: %q", jwa.ErrUnsupportedAlgorithm, encName)
	}
	return manager, enc, nil
}

// tryKeys unwraps the content encryption key with each candidate key and
// decrypts the content with it, returning the first authenticated
// plaintext.
func tryKeys(manager KeyManager, enc ContentCipher, encryptedKey []byte, keys jwk.KeySet, hdr Header, d *decoded, aad []byte) ([]byte, error) {
	if keys == nil {
		return nil, errors.New("no key set")
	}

	kid, _ := hdr.KeyID()
	hint := jwk.Hint{
		Use:        jwk.UseEncryption,
		Operations: []string{"decrypt", "unwrapKey", "deriveKey", "deriveBits"},
		Algorithm:  manager.Algorithm(),
		KeyID:      kid,
	}

	var (
		attempts int
		errs     *multierror.Error
	)
	for key := range keys.Candidates(hint) {
		attempts++

		cek, err := manager.Unwrap(encryptedKey, enc, key, hdr)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to unwrap key: %w", err))
			continue
		}

		plaintext, err := enc.Decrypt(cek, d.iv, d.ciphertext, d.tag, aad)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to decrypt content: %w", err))
			continue
		}
		return plaintext, nil
	}

	if attempts == 0 {
		return nil, errors.New("no candidate key")
	}
	return nil, fmt.Errorf("%d candidate keys failed: %w", attempts, errs.ErrorOrNil())
}

// decompress applies the "zip" header to authenticated plaintext.
func decompress(zip Decompressor, hdr Header, plaintext []byte) ([]byte, error) {
	method, err := hdr.Compression()
	if errors.Is(err, header.ErrParameterNotFound) {
		return plaintext, nil
	}
	if err != nil {
		return nil, err
	}
	if zip == nil {
		return nil, &compression.UnknownMethodError{Method: method}
	}
	return zip.Uncompress(method, plaintext)
}
