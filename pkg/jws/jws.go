// Package jws implements JSON Web Signatures: the canonical signed token
// model, the signature algorithm registry, signing, and the verification
// pipeline.
//
// https://datatracker.ietf.org/doc/html/rfc7515
package jws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/picatz/joseloader/pkg/base64"
	"github.com/picatz/joseloader/pkg/header"
)

// Header is a JSON object containing the parameters describing
// the cryptographic operations and parameters employed.
//
// The JOSE (JSON Object Signing and Encryption) Header is comprised
// of a set of Header Parameters.
type Header = header.Parameters

// Kind is the value returned by General.Kind.
const Kind = "JWS"

var (
	// ErrNoSignatures is returned for a token without signature entries.
	ErrNoSignatures = errors.New("jws: token has no signatures")

	// ErrInvalidPayload is returned when the payload is not valid
	// base64url, or when a detached payload is given for a token that
	// already carries one.
	ErrInvalidPayload = errors.New("jws: invalid payload")

	// ErrNotRepresentable is returned when a token cannot be written in
	// the requested serialization.
	ErrNotRepresentable = errors.New("jws: token cannot be represented in this serialization")
)

// General is a signed token in the canonical general JSON shape. Every
// serialization is normalized into this form before verification.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.1
type General struct {
	// Payload is the base64url encoded payload. It is empty for detached
	// content.
	Payload string `json:"payload,omitempty"`

	// Signatures are kept in their original order.
	Signatures []Signature `json:"signatures"`
}

// Signature is one signature over the payload.
type Signature struct {
	// Protected is the base64url encoded protected header, exactly as
	// it appeared on the wire.
	Protected string `json:"protected,omitempty"`

	// Header is the unprotected header.
	Header Header `json:"header,omitempty"`

	// Signature is the base64url encoded signature value.
	Signature string `json:"signature"`
}

// Kind returns "JWS".
func (g *General) Kind() string {
	return Kind
}

// DecodedPayload returns the decoded payload.
func (g *General) DecodedPayload() ([]byte, error) {
	b, err := base64.Decode(g.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return b, nil
}

// Validate checks the structural invariants of the token: at least one
// signature, and base64url members.
func (g *General) Validate() error {
	if len(g.Signatures) == 0 {
		return ErrNoSignatures
	}
	if !base64.Valid(g.Payload) {
		return fmt.Errorf("%w: not base64url", ErrInvalidPayload)
	}
	for i, sig := range g.Signatures {
		if !base64.Valid(sig.Protected) {
			return fmt.Errorf("signature %d: %w: protected header is not base64url", i, header.ErrMalformed)
		}
		if !base64.Valid(sig.Signature) {
			return fmt.Errorf("signature %d: signature value is not base64url", i)
		}
	}
	return nil
}

// Value returns the decoded signature value.
func (s Signature) Value() ([]byte, error) {
	return base64.Decode(s.Signature)
}

// ProtectedHeader returns the decoded protected header.
func (s Signature) ProtectedHeader() (Header, error) {
	return header.Decode(s.Protected)
}

// MergedHeader returns the union of the protected and unprotected
// headers, which must be disjoint.
func (s Signature) MergedHeader() (protected, merged Header, err error) {
	protected, err = s.ProtectedHeader()
	if err != nil {
		return nil, nil, err
	}
	merged, err = header.Merge(protected, s.Header)
	if err != nil {
		return nil, nil, err
	}
	return protected, merged, nil
}

// SigningInput returns the JWS Signing Input for this signature over the
// given base64url encoded payload.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-5.2
func (s Signature) SigningInput(encodedPayload string) []byte {
	b := make([]byte, 0, len(s.Protected)+1+len(encodedPayload))
	b = append(b, s.Protected...)
	b = append(b, '.')
	b = append(b, encodedPayload...)
	return b
}

// Detached returns a copy of the token without its payload.
func (g *General) Detached() *General {
	cp := *g
	cp.Payload = ""
	return &cp
}

// flattened is the flattened JSON serialization.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.2
type flattened struct {
	Payload   string `json:"payload,omitempty"`
	Protected string `json:"protected,omitempty"`
	Header    Header `json:"header,omitempty"`
	Signature string `json:"signature"`
}

// Flattened returns the flattened JSON serialization. The token must
// have exactly one signature.
func (g *General) Flattened() ([]byte, error) {
	if len(g.Signatures) != 1 {
		return nil, fmt.Errorf("%w: flattened form needs exactly one signature, have %d", ErrNotRepresentable, len(g.Signatures))
	}
	sig := g.Signatures[0]
	return json.Marshal(flattened{
		Payload:   g.Payload,
		Protected: sig.Protected,
		Header:    sig.Header,
		Signature: sig.Signature,
	})
}

// Compact returns the compact serialization. The token must have exactly
// one signature without an unprotected header.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.1
func (g *General) Compact() (string, error) {
	if len(g.Signatures) != 1 {
		return "", fmt.Errorf("%w: compact form needs exactly one signature, have %d", ErrNotRepresentable, len(g.Signatures))
	}
	sig := g.Signatures[0]
	if len(sig.Header) > 0 {
		return "", fmt.Errorf("%w: compact form has no unprotected header", ErrNotRepresentable)
	}
	return sig.Protected + "." + g.Payload + "." + sig.Signature, nil
}
