package jws

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
	"math/big"

	"github.com/picatz/joseloader/pkg/jwa"
	"github.com/picatz/joseloader/pkg/jwk"
	"golang.org/x/exp/slices"
)

// ErrInvalidSignature is returned by Algorithm.Verify when the signature
// does not validate under the key.
var ErrInvalidSignature = errors.New("jws: invalid signature")

// MinimumRSAKeySize is the smallest RSA modulus, in bits, accepted for
// signing and verification.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.3
const MinimumRSAKeySize = 2048

// Algorithm is a signature algorithm capability.
type Algorithm interface {
	// Name returns the "alg" value.
	Name() jwa.Algorithm

	// Sign returns the signature of the signing input.
	Sign(input []byte, key jwk.Value) ([]byte, error)

	// Verify returns nil when sig is a valid signature of the signing
	// input under key.
	Verify(input, sig []byte, key jwk.Value) error
}

var algorithms = map[jwa.Algorithm]Algorithm{}

func register(algs ...Algorithm) {
	for _, alg := range algs {
		algorithms[alg.Name()] = alg
	}
}

func init() {
	register(
		hmacAlgorithm{jwa.HS256, crypto.SHA256},
		hmacAlgorithm{jwa.HS384, crypto.SHA384},
		hmacAlgorithm{jwa.HS512, crypto.SHA512},
		rsaAlgorithm{jwa.RS256, crypto.SHA256, false},
		rsaAlgorithm{jwa.RS384, crypto.SHA384, false},
		rsaAlgorithm{jwa.RS512, crypto.SHA512, false},
		rsaAlgorithm{jwa.PS256, crypto.SHA256, true},
		rsaAlgorithm{jwa.PS384, crypto.SHA384, true},
		rsaAlgorithm{jwa.PS512, crypto.SHA512, true},
		ecdsaAlgorithm{jwa.ES256, crypto.SHA256, elliptic.P256()},
		ecdsaAlgorithm{jwa.ES384, crypto.SHA384, elliptic.P384()},
		ecdsaAlgorithm{jwa.ES512, crypto.SHA512, elliptic.P521()},
		eddsaAlgorithm{},
		noneAlgorithm{},
	)
}

// Lookup returns the registered algorithm for the given "alg" value.
func Lookup(alg jwa.Algorithm) (Algorithm, bool) {
	a, ok := algorithms[alg]
	return a, ok
}

// Supported reports whether the "alg" value is implemented.
func Supported(alg jwa.Algorithm) bool {
	_, ok := algorithms[alg]
	return ok
}

// Algorithms returns the implemented "alg" values in lexical order.
func Algorithms() []jwa.Algorithm {
	names := make([]jwa.Algorithm, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func digest(hash crypto.Hash, input []byte) []byte {
	h := hash.New()
	h.Write(input)
	return h.Sum(nil)
}

// HMAC with SHA-2. The key must be at least as long as the hash output.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.2
type hmacAlgorithm struct {
	name jwa.Algorithm
	hash crypto.Hash
}

func (a hmacAlgorithm) Name() jwa.Algorithm { return a.name }

func (a hmacAlgorithm) mac(input []byte, key jwk.Value) ([]byte, error) {
	secretKey, err := jwk.HMACSecretKey(key)
	if err != nil {
		return nil, err
	}
	if len(secretKey) < a.hash.Size() {
		return nil, fmt.Errorf("HMAC key of %d bytes is shorter than %d bytes required by %s", len(secretKey), a.hash.Size(), a.name)
	}
	h := hmac.New(a.hash.New, secretKey)
	h.Write(input)
	return h.Sum(nil), nil
}

func (a hmacAlgorithm) Sign(input []byte, key jwk.Value) ([]byte, error) {
	return a.mac(input, key)
}

func (a hmacAlgorithm) Verify(input, sig []byte, key jwk.Value) error {
	expected, err := a.mac(input, key)
	if err != nil {
		return fmt.Errorf("failed to compute HMAC signature: %w", err)
	}
	if !hmac.Equal(expected, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// RSASSA-PKCS1-v1_5 and RSASSA-PSS.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.3
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.5
type rsaAlgorithm struct {
	name jwa.Algorithm
	hash crypto.Hash
	pss  bool
}

func (a rsaAlgorithm) Name() jwa.Algorithm { return a.name }

func (a rsaAlgorithm) Sign(input []byte, key jwk.Value) ([]byte, error) {
	privateKey, err := jwk.RSAPrivateKey(key)
	if err != nil {
		return nil, err
	}
	if privateKey.N.BitLen() < MinimumRSAKeySize {
		return nil, fmt.Errorf("RSA key size %d is smaller than %d bits", privateKey.N.BitLen(), MinimumRSAKeySize)
	}

	if a.pss {
		return rsa.SignPSS(rand.Reader, privateKey, a.hash, digest(a.hash, input), &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	}
	return rsa.SignPKCS1v15(rand.Reader, privateKey, a.hash, digest(a.hash, input))
}

func (a rsaAlgorithm) Verify(input, sig []byte, key jwk.Value) error {
	publicKey, err := jwk.RSAPublicKey(key)
	if err != nil {
		return err
	}
	if publicKey.N.BitLen() < MinimumRSAKeySize {
		return fmt.Errorf("RSA key size %d is smaller than %d bits", publicKey.N.BitLen(), MinimumRSAKeySize)
	}

	if a.pss {
		err = rsa.VerifyPSS(publicKey, a.hash, digest(a.hash, input), sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	} else {
		err = rsa.VerifyPKCS1v15(publicKey, a.hash, digest(a.hash, input), sig)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return nil
}

// ECDSA with the signature encoded as the fixed size R || S.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.4
type ecdsaAlgorithm struct {
	name  jwa.Algorithm
	hash  crypto.Hash
	curve elliptic.Curve
}

func (a ecdsaAlgorithm) Name() jwa.Algorithm { return a.name }

func (a ecdsaAlgorithm) keySize() int {
	return (a.curve.Params().BitSize + 7) / 8
}

func (a ecdsaAlgorithm) Sign(input []byte, key jwk.Value) ([]byte, error) {
	privateKey, err := jwk.ECDSAPrivateKey(key)
	if err != nil {
		return nil, err
	}
	if privateKey.Curve != a.curve {
		return nil, fmt.Errorf("invalid ECDSA key, curve %s does not match %s", privateKey.Curve.Params().Name, a.name)
	}

	r, s, err := ecdsa.Sign(rand.Reader, privateKey, digest(a.hash, input))
	if err != nil {
		return nil, fmt.Errorf("failed to sign with ECDSA private key: %w", err)
	}

	size := a.keySize()
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])

	return out, nil
}

func (a ecdsaAlgorithm) Verify(input, sig []byte, key jwk.Value) error {
	publicKey, err := jwk.ECDSAPublicKey(key)
	if err != nil {
		return err
	}
	if publicKey.Curve != a.curve {
		return fmt.Errorf("invalid ECDSA key, curve %s does not match %s", publicKey.Curve.Params().Name, a.name)
	}

	size := a.keySize()
	if len(sig) != 2*size {
		return fmt.Errorf("%w: invalid signature length for key size", ErrInvalidSignature)
	}

	r := new(big.Int).SetBytes(sig[:size])
	s := new(big.Int).SetBytes(sig[size:])

	if !ecdsa.Verify(publicKey, digest(a.hash, input), r, s) {
		return ErrInvalidSignature
	}
	return nil
}

// EdDSA with Ed25519.
//
// https://datatracker.ietf.org/doc/html/rfc8037#section-3.1
type eddsaAlgorithm struct{}

func (eddsaAlgorithm) Name() jwa.Algorithm { return jwa.EdDSA }

func (eddsaAlgorithm) Sign(input []byte, key jwk.Value) ([]byte, error) {
	privateKey, err := jwk.Ed25519PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(privateKey, input), nil
}

func (eddsaAlgorithm) Verify(input, sig []byte, key jwk.Value) error {
	publicKey, err := jwk.Ed25519PublicKey(key)
	if err != nil {
		return err
	}
	if !ed25519.Verify(publicKey, input, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// The "none" algorithm only accepts an empty signature and ignores the
// key. The verification pipeline refuses it unless explicitly allowed.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.6
type noneAlgorithm struct{}

func (noneAlgorithm) Name() jwa.Algorithm { return jwa.None }

func (noneAlgorithm) Sign([]byte, jwk.Value) ([]byte, error) {
	return []byte{}, nil
}

func (noneAlgorithm) Verify(_, sig []byte, _ jwk.Value) error {
	if len(sig) != 0 {
		return ErrInvalidSignature
	}
	return nil
}
