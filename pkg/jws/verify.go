package jws

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/picatz/joseloader/pkg/base64"
	"github.com/picatz/joseloader/pkg/header"
	"github.com/picatz/joseloader/pkg/jwa"
	"github.com/picatz/joseloader/pkg/jwk"
	"github.com/picatz/joseloader/pkg/logging"
)

// ErrNoMatchingSignature is returned when no (signature, key) pair
// validates. It deliberately says nothing about which candidate came
// closest.
var ErrNoMatchingSignature = errors.New("jws: no matching signature")

// VerifyConfig holds the verification options.
type VerifyConfig struct {
	detached          []byte
	hasDetached       bool
	allowInsecureNone bool
	critical          []string
	logger            logging.Logger
}

// VerifyOption configures Verify.
type VerifyOption func(*VerifyConfig) error

// WithDetachedPayload verifies the signatures over the given payload
// instead of one carried by the token.
//
// https://datatracker.ietf.org/doc/html/rfc7515#appendix-F
func WithDetachedPayload(payload []byte) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.detached = payload
		vc.hasDetached = true
		return nil
	}
}

// WithInsecureAllowNone lets a signature using the "none" algorithm
// match, provided "none" is also in the allow-list.
func WithInsecureAllowNone() VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.allowInsecureNone = true
		return nil
	}
}

// WithCriticalParameters declares the "crit" extensions understood by
// the caller.
func WithCriticalParameters(names ...string) VerifyOption {
	return func(vc *VerifyConfig) error {
		vc.critical = append(vc.critical, names...)
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger logging.Logger) VerifyOption {
	return func(vc *VerifyConfig) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		vc.logger = logger
		return nil
	}
}

// Result describes the signature that verified.
type Result struct {
	// Index is the position of the signature in the token.
	Index int

	// Header is the merged protected and unprotected header of the
	// matching signature.
	Header Header

	// Payload is the decoded payload (or the detached payload).
	Payload []byte
}

// Verify tries every signature of the token, in order, against the
// candidate keys of the key set, and returns the first one that
// validates.
//
// Signatures whose algorithm is outside the allow-list are skipped. If
// every signature is skipped that way the error wraps
// jwa.ErrUnsupportedAlgorithm, otherwise exhaustion is reported as
// ErrNoMatchingSignature. Structural problems (a protected header that
// is not base64url JSON, overlapping headers, an invalid payload) are
// returned immediately.
func Verify(token *General, keys jwk.KeySet, allowed jwa.AllowedAlgorithms, opts ...VerifyOption) (*Result, error) {
	config := &VerifyConfig{
		logger: logging.NewNoOpLogger(),
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply verify option: %w", err)
		}
	}

	if token == nil || len(token.Signatures) == 0 {
		return nil, ErrNoSignatures
	}

	encodedPayload := token.Payload
	if config.hasDetached {
		if token.Payload != "" {
			return nil, fmt.Errorf("%w: token carries a payload and a detached payload was given", ErrInvalidPayload)
		}
		encodedPayload = base64.Encode(config.detached)
	}

	payload, err := base64.Decode(encodedPayload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var (
		failures *multierror.Error
		skipped  int
	)

	for i, sig := range token.Signatures {
		protected, merged, err := sig.MergedHeader()
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}

		logger := config.logger.WithFields(map[string]any{"signature": i})

		alg, err := merged.Algorithm()
		if err != nil {
			skipped++
			failures = multierror.Append(failures, fmt.Errorf("signature %d: %w", i, err))
			logger.Debug("Skipping signature without a usable algorithm.")
			continue
		}

		algorithm, ok := Lookup(alg)
		if !ok || !allowed.Allowed(alg) || (alg == jwa.None && !config.allowInsecureNone) {
			skipped++
			failures = multierror.Append(failures, fmt.Errorf("signature %d: %w: %q", i, jwa.ErrUnsupportedAlgorithm, alg))
			logger.Debug("Skipping signature, algorithm %q is not allowed.", alg)
			continue
		}

		err = header.CheckCritical(protected, merged, config.critical...)
		if err != nil {
			failures = multierror.Append(failures, fmt.Errorf("signature %d: %w", i, err))
			logger.Debug("Skipping signature with unsupported critical parameters.")
			continue
		}

		value, err := sig.Value()
		if err != nil {
			failures = multierror.Append(failures, fmt.Errorf("signature %d: %w", i, err))
			logger.Debug("Skipping signature with an undecodable value.")
			continue
		}

		input := sig.SigningInput(encodedPayload)

		if alg == jwa.None {
			err = algorithm.Verify(input, value, nil)
			if err == nil {
				logger.Info("Unsecured signature accepted.")
				return &Result{Index: i, Header: merged, Payload: payload}, nil
			}
			failures = multierror.Append(failures, fmt.Errorf("signature %d: %w", i, err))
			continue
		}

		match, err := tryKeys(algorithm, input, value, keys, merged)
		if match {
			logger.Info("Signature verified with algorithm %q.", alg)
			return &Result{Index: i, Header: merged, Payload: payload}, nil
		}
		failures = multierror.Append(failures, fmt.Errorf("signature %d: %w", i, err))
	}

	config.logger.WithFields(map[string]any{
		"signatures": len(token.Signatures),
		"skipped":    skipped,
	}).Debug("No signature verified: %v", failures.ErrorOrNil())

	if skipped == len(token.Signatures) {
		return nil, fmt.Errorf("%w: no signature uses an allowed algorithm", jwa.ErrUnsupportedAlgorithm)
	}

	return nil, ErrNoMatchingSignature
}

// tryKeys reports whether one of the candidate keys validates the
// signature. When none does, the returned error summarizes the attempts.
func tryKeys(algorithm Algorithm, input, value []byte, keys jwk.KeySet, hdr Header) (bool, error) {
	if keys == nil {
		return false, errors.New("no key set")
	}

	kid, _ := hdr.KeyID()
	hint := jwk.Hint{
		Use:        jwk.UseSignature,
		Operations: []string{"verify"},
		Algorithm:  algorithm.Name(),
		KeyID:      kid,
	}

	var (
		attempts int
		errs     *multierror.Error
	)
	for key := range keys.Candidates(hint) {
		attempts++
		err := algorithm.Verify(input, value, key)
		if err == nil {
			return true, nil
		}
		errs = multierror.Append(errs, err)
	}

	if attempts == 0 {
		return false, errors.New("no candidate key")
	}
	return false, fmt.Errorf("%d candidate keys failed: %w", attempts, errs.ErrorOrNil())
}
