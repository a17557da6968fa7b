package jwa

import (
	"errors"

	"golang.org/x/exp/slices"
)

// https://datatracker.ietf.org/doc/html/rfc7518#section-3.1
type Algorithm = string

// ErrUnsupportedAlgorithm is returned when a declared algorithm is outside
// the caller's allow-list, or is not implemented.
var ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

// HMAC with SHA-2 Functions
//
// These algorithms are used to construct a MAC using a shared secret
// and the Hash-based Message Authentication Code (HMAC) construction
// [RFC2104] employing SHA-2 [SHS] hash functions.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.2
const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

// RSASSA-PKCS1-v1_5
//
// A key of size 2048 bits or larger MUST be used with these algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.3
const (
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
)

// ECDSA
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.4
const (
	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"
	ES512 Algorithm = "ES512"
)

// RSASSA-PSS
//
// A key of size 2048 bits or larger MUST be used with these algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.5
const (
	PS256 Algorithm = "PS256"
	PS384 Algorithm = "PS384"
	PS512 Algorithm = "PS512"
)

// No signature or MAC performed (unprotected JWS).
//
// # Warning
//
// The use of this algorithm is considered dangerous. It is only accepted
// when explicitly allowed by the caller.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.6
const None Algorithm = "none"

// EdDSA signatures with Ed25519.
//
// https://datatracker.ietf.org/doc/html/rfc8037#section-3.1
const EdDSA Algorithm = "EdDSA"

// Key Management Algorithms
//
// These algorithms are used to encrypt or determine the Content
// Encryption Key (CEK) of a JWE.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.1
const (
	RSA1_5           Algorithm = "RSA1_5"
	RSAOAEP          Algorithm = "RSA-OAEP"
	RSAOAEP256       Algorithm = "RSA-OAEP-256"
	A128KW           Algorithm = "A128KW"
	A192KW           Algorithm = "A192KW"
	A256KW           Algorithm = "A256KW"
	Direct           Algorithm = "dir"
	ECDHES           Algorithm = "ECDH-ES"
	ECDHESA128KW     Algorithm = "ECDH-ES+A128KW"
	ECDHESA192KW     Algorithm = "ECDH-ES+A192KW"
	ECDHESA256KW     Algorithm = "ECDH-ES+A256KW"
	A128GCMKW        Algorithm = "A128GCMKW"
	A192GCMKW        Algorithm = "A192GCMKW"
	A256GCMKW        Algorithm = "A256GCMKW"
	PBES2HS256A128KW Algorithm = "PBES2-HS256+A128KW"
	PBES2HS384A192KW Algorithm = "PBES2-HS384+A192KW"
	PBES2HS512A256KW Algorithm = "PBES2-HS512+A256KW"
)

// Content Encryption Algorithms
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5.1
const (
	A128CBCHS256 Algorithm = "A128CBC-HS256"
	A192CBCHS384 Algorithm = "A192CBC-HS384"
	A256CBCHS512 Algorithm = "A256CBC-HS512"
	A128GCM      Algorithm = "A128GCM"
	A192GCM      Algorithm = "A192GCM"
	A256GCM      Algorithm = "A256GCM"

	// XC20P is XChaCha20-Poly1305, registered by draft-amringer-jose-chacha.
	XC20P Algorithm = "XC20P"
)

// Compression Algorithms
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-7.3
const (
	// DEF is raw DEFLATE (RFC 1951), the only registered value.
	DEF Algorithm = "DEF"

	// ZLIB and GZ are accepted by several JOSE libraries beyond the registry.
	ZLIB Algorithm = "ZLIB"
	GZ   Algorithm = "GZ"
)

// DefaultAllowedAlgorithms returns a list of signature algorithms that are
// allowed to be used when a caller has no policy of its own.
func DefaultAllowedAlgorithms() AllowedAlgorithms {
	return NewAllowedAlgorithms(RS256, ES256)
}

// AllowedAlgorithms is an allow-list of algorithm identifiers.
type AllowedAlgorithms map[Algorithm]struct{}

// NewAllowedAlgorithms returns an allow-list containing the given algorithms.
func NewAllowedAlgorithms(algs ...Algorithm) AllowedAlgorithms {
	allowed := make(AllowedAlgorithms, len(algs))
	for _, alg := range algs {
		allowed[alg] = struct{}{}
	}
	return allowed
}

// Allowed reports whether every given algorithm is in the allow-list. It
// returns false when no algorithm is given.
func (a AllowedAlgorithms) Allowed(algs ...Algorithm) bool {
	if len(algs) == 0 {
		return false
	}
	for _, alg := range algs {
		if _, ok := a[alg]; !ok {
			return false
		}
	}
	return true
}

// List returns the allowed algorithms in lexical order.
func (a AllowedAlgorithms) List() []Algorithm {
	list := make([]Algorithm, 0, len(a))
	for alg := range a {
		list = append(list, alg)
	}
	slices.Sort(list)
	return list
}
