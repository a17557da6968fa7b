package header

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/picatz/joseloader/pkg/base64"
	"github.com/picatz/joseloader/pkg/jwa"
	"golang.org/x/exp/slices"
)

// There are three classes of Header Parameter names: Registered Header
// Parameter names, Public Header Parameter names, and Private Header
// Parameter names.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4
type (
	ParamaterName = string

	Registered = ParamaterName
	Public     = ParamaterName
	Private    = ParamaterName
)

// Registered Header Paramater Names
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1
const (
	Type                            Registered = "typ"
	Algorithm                       Registered = "alg"
	JWKSetURL                       Registered = "jku"
	JSONWebKey                      Registered = "jwk"
	X509URL                         Registered = "x5u"
	X509CertificateChain            Registered = "x5c"
	X509CertificateSHA1Thumbprint   Registered = "x5t"
	X509CertificateSHA256Thumbprint Registered = "x5t#S256"
	ContentType                     Registered = "cty"
	Critical                        Registered = "crit"
	KeyID                           Registered = "kid"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.2
	Encryption Registered = "enc"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.3
	Zip Registered = "zip"
)

// Header Parameters used by the key management algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.6.1
const (
	EphemeralPublicKey Registered = "epk"
	AgreementPartyU    Registered = "apu"
	AgreementPartyV    Registered = "apv"

	// https://datatracker.ietf.org/doc/html/rfc7518#section-4.7.1
	InitializationVector Registered = "iv"
	AuthenticationTag    Registered = "tag"

	// https://datatracker.ietf.org/doc/html/rfc7518#section-4.8.1
	PBES2Salt  Registered = "p2s"
	PBES2Count Registered = "p2c"
)

var (
	// ErrParameterNotFound is returned by accessors when the parameter
	// is absent from the header.
	ErrParameterNotFound = errors.New("header parameter not found")

	// ErrMalformed is returned when header bytes are not a valid
	// base64url encoded JSON object, or when header sets overlap.
	ErrMalformed = errors.New("malformed header")
)

// Parameters is a JSON object containing the parameters describing
// the cryptographic operations and parameters employed.
//
// The JOSE (JSON Object Signing and Encryption) Header is comprised
// of a set of Header Parameters.
type Parameters map[ParamaterName]any

// Decode decodes a base64url encoded protected header. An empty input
// yields an empty set of parameters.
func Decode(encoded string) (Parameters, error) {
	params := Parameters{}
	if encoded == "" {
		return params, nil
	}

	b, err := base64.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	err = json.Unmarshal(b, &params)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode JSON object: %w", ErrMalformed, err)
	}
	if params == nil {
		return nil, fmt.Errorf("%w: header is not a JSON object", ErrMalformed)
	}

	return params, nil
}

// Merge returns the union of the given header sets. The sets must be
// disjoint, a parameter name appearing in more than one of them is an
// error (RFC 7515 section 7.2.1).
func Merge(sets ...Parameters) (Parameters, error) {
	merged := Parameters{}
	for _, set := range sets {
		for name, value := range set {
			if _, dup := merged[name]; dup {
				return nil, fmt.Errorf("%w: duplicate parameter %q", ErrMalformed, name)
			}
			merged[name] = value
		}
	}
	return merged, nil
}

// Base64URLString returns the base64url encoded JSON object, suitable
// for use as a protected header.
func (h Parameters) Base64URLString() (string, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("failed to encode JOSE header base64 URL string: %w", err)
	}
	return base64.Encode(b), nil
}

// Clone returns a shallow copy of the parameters.
func (h Parameters) Clone() Parameters {
	if h == nil {
		return nil
	}
	c := make(Parameters, len(h))
	for k, v := range h {
		c[k] = v
	}
	return c
}

// String returns the string value of the given parameter.
func (h Parameters) String(param ParamaterName) (string, error) {
	value, ok := h[param]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrParameterNotFound, param)
	}
	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("header paramater %q is not a string, is %T", param, value)
	}
	return strValue, nil
}

func (h Parameters) Type() (string, error) {
	return h.String(Type)
}

func (h Parameters) KeyID() (string, error) {
	return h.String(KeyID)
}

// Algorithm returns the "alg" parameter, the signature algorithm of a JWS
// or the key management algorithm of a JWE.
func (h Parameters) Algorithm() (jwa.Algorithm, error) {
	return h.String(Algorithm)
}

// Encryption returns the JWE "enc" parameter.
func (h Parameters) Encryption() (jwa.Algorithm, error) {
	return h.String(Encryption)
}

// Compression returns the JWE "zip" parameter.
func (h Parameters) Compression() (jwa.Algorithm, error) {
	return h.String(Zip)
}

// Bytes returns the base64url decoded value of the given parameter.
func (h Parameters) Bytes(param ParamaterName) ([]byte, error) {
	s, err := h.String(param)
	if err != nil {
		return nil, err
	}
	return base64.Decode(s)
}

// Object returns the JSON object value of the given parameter, such as "epk".
func (h Parameters) Object(param ParamaterName) (map[string]any, error) {
	value, ok := h[param]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrParameterNotFound, param)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("header paramater %q is not an object, is %T", param, value)
	}
	return obj, nil
}

func (h Parameters) Get(param ParamaterName) (any, error) {
	value, ok := h[param]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrParameterNotFound, param)
	}
	return value, nil
}

// registered are the names that may never appear in "crit".
var registered = []ParamaterName{
	Type, Algorithm, JWKSetURL, JSONWebKey, X509URL, X509CertificateChain,
	X509CertificateSHA1Thumbprint, X509CertificateSHA256Thumbprint,
	ContentType, Critical, KeyID, Encryption, Zip,
	EphemeralPublicKey, AgreementPartyU, AgreementPartyV,
	InitializationVector, AuthenticationTag, PBES2Salt, PBES2Count,
}

// CheckCritical validates the "crit" parameter of a merged header whose
// protected part is given separately. Each listed name must be a
// non-registered parameter present in the protected header, and must be
// one of the understood extensions.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1.11
func CheckCritical(protected, merged Parameters, understood ...ParamaterName) error {
	value, ok := merged[Critical]
	if !ok {
		return nil
	}
	if _, ok := protected[Critical]; !ok {
		return fmt.Errorf("%q must be integrity protected", Critical)
	}

	list, ok := value.([]any)
	if !ok || len(list) == 0 {
		return fmt.Errorf("%q must be a non-empty array", Critical)
	}

	for _, item := range list {
		name, ok := item.(string)
		if !ok {
			return fmt.Errorf("%q must only contain strings, found %T", Critical, item)
		}
		if slices.Contains(registered, name) {
			return fmt.Errorf("%q must not list registered parameter %q", Critical, name)
		}
		if _, ok := protected[name]; !ok {
			return fmt.Errorf("critical parameter %q is missing from the protected header", name)
		}
		if !slices.Contains(understood, name) {
			return fmt.Errorf("critical parameter %q is not understood", name)
		}
	}

	return nil
}
