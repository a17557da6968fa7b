package jws

import (
	"errors"
	"fmt"

	"github.com/picatz/joseloader/pkg/base64"
	"github.com/picatz/joseloader/pkg/header"
	"github.com/picatz/joseloader/pkg/jwa"
	"github.com/picatz/joseloader/pkg/jwk"
)

// Signer describes one signature to produce.
type Signer struct {
	// Protected is the protected header. It must contain "alg" unless
	// the unprotected header does.
	Protected Header

	// Unprotected is the optional per-signature unprotected header.
	Unprotected Header

	// Key is the signing key.
	Key jwk.Value
}

// Sign signs the payload once per signer and returns the token in the
// general shape.
func Sign(payload []byte, signers ...Signer) (*General, error) {
	if len(signers) == 0 {
		return nil, errors.New("jws: at least one signer is required")
	}

	token := &General{
		Payload:    base64.Encode(payload),
		Signatures: make([]Signature, 0, len(signers)),
	}

	for i, signer := range signers {
		merged, err := header.Merge(signer.Protected, signer.Unprotected)
		if err != nil {
			return nil, fmt.Errorf("signer %d: %w", i, err)
		}

		alg, err := merged.Algorithm()
		if err != nil {
			return nil, fmt.Errorf("signer %d: %w", i, err)
		}

		algorithm, ok := Lookup(alg)
		if !ok {
			return nil, fmt.Errorf("signer %d: %w: %q", i, jwa.ErrUnsupportedAlgorithm, alg)
		}

		var protected string
		if len(signer.Protected) > 0 {
			protected, err = signer.Protected.Base64URLString()
			if err != nil {
				return nil, fmt.Errorf("signer %d: failed to encode protected header: %w", i, err)
			}
		}

		sig := Signature{
			Protected: protected,
			Header:    signer.Unprotected.Clone(),
		}

		value, err := algorithm.Sign(sig.SigningInput(token.Payload), signer.Key)
		if err != nil {
			return nil, fmt.Errorf("signer %d: failed to sign: %w", i, err)
		}
		sig.Signature = base64.Encode(value)

		token.Signatures = append(token.Signatures, sig)
	}

	return token, nil
}
