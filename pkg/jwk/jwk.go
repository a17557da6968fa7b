package jwk

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/picatz/joseloader/pkg/base64"
)

// https://datatracker.ietf.org/doc/html/rfc7517#section-4
type (
	ParamaterName = string

	RSA       = ParamaterName
	ECDSA     = ParamaterName
	Symmetric = ParamaterName
)

const (
	KeyType              ParamaterName = "kty"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.1
	PublicKeyUse         ParamaterName = "use"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.2
	KeyOperations        ParamaterName = "key_ops"  // https://datatracker.ietf.org/doc/html/rfc7517#section-4.3
	Algorithm            ParamaterName = "alg"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.4
	KeyID                ParamaterName = "kid"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.5
	X509URL              ParamaterName = "x5u"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.6
	X509CertificateChain ParamaterName = "x5c"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.7
	X509SHA1Thumbprint   ParamaterName = "x5t"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.8
	X509SHA256Thumbprint ParamaterName = "x5t#S256" // https://datatracker.ietf.org/doc/html/rfc7517#section-4.9

	// K is the symmetric key value within a JWK.
	// https://datatracker.ietf.org/doc/html/rfc7518#section-6.4.1
	K Symmetric = "k"

	// Curve is the curve value within an EC or OKP JWK, such as "P-256".
	// https://datatracker.ietf.org/doc/html/rfc7518#section-6.2.1.1
	Curve ECDSA = "crv"
	X     ECDSA = "x" // X is the x-coordinate for the elliptic curve point.
	Y     ECDSA = "y" // Y is the y-coordinate for the elliptic curve point.

	N  RSA = "n"  // N is the RSA public modulus value.
	E  RSA = "e"  // E is the RSA public exponent value.
	D  RSA = "d"  // D is the private exponent (RSA) or private scalar (EC, OKP).
	P  RSA = "p"  // P is the first RSA prime factor.
	Q  RSA = "q"  // Q is the second RSA prime factor.
	DP RSA = "dp" // DP is the first RSA factor CRT exponent.
	DQ RSA = "dq" // DQ is the second RSA factor CRT exponent.
	QI RSA = "qi" // QI is the first RSA CRT coefficient.
)

// Key types.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-6.1
const (
	KeyTypeEC  = "EC"
	KeyTypeRSA = "RSA"
	KeyTypeOct = "oct"
	KeyTypeOKP = "OKP" // https://datatracker.ietf.org/doc/html/rfc8037#section-2
)

// Curve names.
const (
	CurveP256    = "P-256"
	CurveP384    = "P-384"
	CurveP521    = "P-521"
	CurveEd25519 = "Ed25519"
	CurveX25519  = "X25519"
)

// Values is a JSON object containing the parameters describing
// the cryptographic operations and parameters employed.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-4
type Value = map[ParamaterName]any

// param returns the string value of the given parameter, or an error
// if it is missing or not a string.
func param(v Value, name ParamaterName) (string, error) {
	value, ok := v[name]
	if !ok {
		return "", fmt.Errorf("missing required paramater %q", name)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("invalid type %T for %q", value, name)
	}
	return s, nil
}

// bytesParam returns the base64url decoded value of the given parameter.
func bytesParam(v Value, name ParamaterName) ([]byte, error) {
	s, err := param(v, name)
	if err != nil {
		return nil, err
	}
	b, err := base64.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding for %q: %w", name, err)
	}
	return b, nil
}

func intParam(v Value, name ParamaterName) (*big.Int, error) {
	b, err := bytesParam(v, name)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

// Validate checks that the required parameters are present for
// the given key type, and that the values are valid.
func Validate(v Value) error {
	kty, err := param(v, KeyType)
	if err != nil {
		return err
	}

	var required []ParamaterName

	switch kty {
	case KeyTypeEC:
		crv, err := param(v, Curve)
		if err != nil {
			return err
		}
		if _, err := ellipticCurve(crv); err != nil {
			return err
		}
		required = []ParamaterName{X, Y}
	case KeyTypeRSA:
		required = []ParamaterName{N, E}
	case KeyTypeOct:
		required = []ParamaterName{K}
	case KeyTypeOKP:
		crv, err := param(v, Curve)
		if err != nil {
			return err
		}
		if crv != CurveEd25519 && crv != CurveX25519 {
			return fmt.Errorf("invalid curve %q", crv)
		}
		required = []ParamaterName{X}
	default:
		return fmt.Errorf("unknown key type %q", kty)
	}

	for _, name := range required {
		if _, err := bytesParam(v, name); err != nil {
			return err
		}
	}

	// Private members are optional, but must be well formed.
	for _, name := range []ParamaterName{D, P, Q, DP, DQ, QI} {
		if _, ok := v[name]; !ok {
			continue
		}
		if _, err := bytesParam(v, name); err != nil {
			return err
		}
	}

	return nil
}

// KeyTypeOf returns the "kty" of the value, or an empty string.
func KeyTypeOf(v Value) string {
	kty, _ := v[KeyType].(string)
	return kty
}

// CurveOf returns the "crv" of the value, or an empty string.
func CurveOf(v Value) string {
	crv, _ := v[Curve].(string)
	return crv
}

func ellipticCurve(crv string) (elliptic.Curve, error) {
	switch crv {
	case CurveP256:
		return elliptic.P256(), nil
	case CurveP384:
		return elliptic.P384(), nil
	case CurveP521:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("invalid curve %q", crv)
	}
}

func curveName(c elliptic.Curve) (string, error) {
	switch c {
	case elliptic.P256():
		return CurveP256, nil
	case elliptic.P384():
		return CurveP384, nil
	case elliptic.P521():
		return CurveP521, nil
	default:
		return "", fmt.Errorf("invalid curve %q used for JWK value", c.Params().Name)
	}
}

// SymmetricKey returns the decoded "k" of an "oct" key.
func SymmetricKey(v Value) ([]byte, error) {
	if kty := KeyTypeOf(v); kty != KeyTypeOct {
		return nil, fmt.Errorf("JWK value is not a symmetric key, is %q", kty)
	}
	k, err := bytesParam(v, K)
	if err != nil {
		return nil, fmt.Errorf("failed to get symmetric key: %w", err)
	}
	if len(k) == 0 {
		return nil, fmt.Errorf("empty symmetric key")
	}
	return k, nil
}

// HMACSecretKey returns the HMAC secret key (symmetric key).
func HMACSecretKey(v Value) ([]byte, error) {
	return SymmetricKey(v)
}

// RSAPublicKey returns the RSA public key, or an error if the value is
// not an RSA key.
func RSAPublicKey(v Value) (*rsa.PublicKey, error) {
	if kty := KeyTypeOf(v); kty != KeyTypeRSA {
		return nil, fmt.Errorf("JWK value is not RSA, is %q", kty)
	}

	n, err := intParam(v, N)
	if err != nil {
		return nil, fmt.Errorf("failed to get RSA public key: %w", err)
	}

	e, err := intParam(v, E)
	if err != nil {
		return nil, fmt.Errorf("failed to get RSA public key: %w", err)
	}
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("invalid RSA public exponent")
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// RSAPrivateKey returns the RSA private key. The prime factors "p" and
// "q" are required.
func RSAPrivateKey(v Value) (*rsa.PrivateKey, error) {
	pub, err := RSAPublicKey(v)
	if err != nil {
		return nil, err
	}

	var ints [3]*big.Int
	for i, name := range []ParamaterName{D, P, Q} {
		ints[i], err = intParam(v, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get RSA private key: %w", err)
		}
	}

	key := &rsa.PrivateKey{
		PublicKey: *pub,
		D:         ints[0],
		Primes:    []*big.Int{ints[1], ints[2]},
	}

	err = key.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid RSA private key: %w", err)
	}
	key.Precompute()

	return key, nil
}

// ECDSAPublicKey returns the ECDSA public key, or an error if the value
// is not an EC key with a point on its curve.
func ECDSAPublicKey(v Value) (*ecdsa.PublicKey, error) {
	if kty := KeyTypeOf(v); kty != KeyTypeEC {
		return nil, fmt.Errorf("JWK value is not EC, is %q", kty)
	}

	curve, err := ellipticCurve(CurveOf(v))
	if err != nil {
		return nil, fmt.Errorf("failed to get ECDSA public key: %w", err)
	}

	x, err := intParam(v, X)
	if err != nil {
		return nil, fmt.Errorf("failed to get ECDSA public key: %w", err)
	}

	y, err := intParam(v, Y)
	if err != nil {
		return nil, fmt.Errorf("failed to get ECDSA public key: %w", err)
	}

	if !curve.IsOnCurve(x, y) {
		return nil, fmt.Errorf("ECDSA public key is not on curve %q", CurveOf(v))
	}

	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// ECDSAPrivateKey returns the ECDSA private key.
func ECDSAPrivateKey(v Value) (*ecdsa.PrivateKey, error) {
	pub, err := ECDSAPublicKey(v)
	if err != nil {
		return nil, err
	}

	d, err := intParam(v, D)
	if err != nil {
		return nil, fmt.Errorf("failed to get ECDSA private key: %w", err)
	}

	return &ecdsa.PrivateKey{PublicKey: *pub, D: d}, nil
}

// Ed25519PublicKey returns the Ed25519 public key, or an error if the
// key is not an Ed25519 public key.
func Ed25519PublicKey(v Value) (ed25519.PublicKey, error) {
	x, err := okp(v, CurveEd25519, X)
	if err != nil {
		return nil, fmt.Errorf("failed to get Ed25519 public key: %w", err)
	}
	if len(x) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid Ed25519 public key X length: %d", len(x))
	}
	return x, nil
}

// Ed25519PrivateKey returns the Ed25519 private key from its seed "d".
func Ed25519PrivateKey(v Value) (ed25519.PrivateKey, error) {
	d, err := okp(v, CurveEd25519, D)
	if err != nil {
		return nil, fmt.Errorf("failed to get Ed25519 private key: %w", err)
	}
	if len(d) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid Ed25519 private key length: %d", len(d))
	}
	return ed25519.NewKeyFromSeed(d), nil
}

// X25519PublicKey returns the X25519 public u-coordinate.
func X25519PublicKey(v Value) ([]byte, error) {
	return okp(v, CurveX25519, X)
}

// X25519PrivateKey returns the X25519 private scalar.
func X25519PrivateKey(v Value) ([]byte, error) {
	return okp(v, CurveX25519, D)
}

func okp(v Value, crv string, name ParamaterName) ([]byte, error) {
	if kty := KeyTypeOf(v); kty != KeyTypeOKP {
		return nil, fmt.Errorf("JWK value is not OKP, is %q", kty)
	}
	if got := CurveOf(v); got != crv {
		return nil, fmt.Errorf("JWK value is not %s, is %q", crv, got)
	}
	return bytesParam(v, name)
}

// ValueFromPublicKey returns a JWK value from the given public key.
func ValueFromPublicKey(pubKey any) (Value, error) {
	switch pubKey := pubKey.(type) {
	case *rsa.PublicKey:
		return Value{
			KeyType: KeyTypeRSA,
			N:       base64.Encode(pubKey.N.Bytes()),
			E:       base64.Encode(big.NewInt(int64(pubKey.E)).Bytes()),
		}, nil
	case *ecdsa.PublicKey:
		crv, err := curveName(pubKey.Curve)
		if err != nil {
			return nil, err
		}
		size := (pubKey.Curve.Params().BitSize + 7) / 8
		return Value{
			KeyType: KeyTypeEC,
			Curve:   crv,
			X:       base64.Encode(pubKey.X.FillBytes(make([]byte, size))),
			Y:       base64.Encode(pubKey.Y.FillBytes(make([]byte, size))),
		}, nil
	case ed25519.PublicKey:
		return Value{
			KeyType: KeyTypeOKP,
			Curve:   CurveEd25519,
			X:       base64.Encode(pubKey),
		}, nil
	default:
		return nil, fmt.Errorf("invalid type %T used for JWK value", pubKey)
	}
}

// ValueFromPrivateKey returns a JWK value holding both the public and
// private members of the given private key.
func ValueFromPrivateKey(privKey any) (Value, error) {
	switch privKey := privKey.(type) {
	case *rsa.PrivateKey:
		if len(privKey.Primes) != 2 {
			return nil, fmt.Errorf("multi-prime RSA keys are not supported")
		}
		v, err := ValueFromPublicKey(&privKey.PublicKey)
		if err != nil {
			return nil, err
		}
		privKey.Precompute()
		v[D] = base64.Encode(privKey.D.Bytes())
		v[P] = base64.Encode(privKey.Primes[0].Bytes())
		v[Q] = base64.Encode(privKey.Primes[1].Bytes())
		v[DP] = base64.Encode(privKey.Precomputed.Dp.Bytes())
		v[DQ] = base64.Encode(privKey.Precomputed.Dq.Bytes())
		v[QI] = base64.Encode(privKey.Precomputed.Qinv.Bytes())
		return v, nil
	case *ecdsa.PrivateKey:
		v, err := ValueFromPublicKey(&privKey.PublicKey)
		if err != nil {
			return nil, err
		}
		size := (privKey.Curve.Params().BitSize + 7) / 8
		v[D] = base64.Encode(privKey.D.FillBytes(make([]byte, size)))
		return v, nil
	case ed25519.PrivateKey:
		v, err := ValueFromPublicKey(privKey.Public())
		if err != nil {
			return nil, err
		}
		v[D] = base64.Encode(privKey.Seed())
		return v, nil
	default:
		return nil, fmt.Errorf("invalid type %T used for JWK value", privKey)
	}
}

// ValueFromSymmetricKey returns an "oct" JWK value for the given key.
func ValueFromSymmetricKey(key []byte) Value {
	return Value{
		KeyType: KeyTypeOct,
		K:       base64.Encode(key),
	}
}

// ValueFromX25519 returns an X25519 OKP JWK value. The private scalar
// is optional.
func ValueFromX25519(public, private []byte) Value {
	v := Value{
		KeyType: KeyTypeOKP,
		Curve:   CurveX25519,
		X:       base64.Encode(public),
	}
	if len(private) > 0 {
		v[D] = base64.Encode(private)
	}
	return v
}

// Public returns a copy of the value without its private members.
func Public(v Value) Value {
	pub := make(Value, len(v))
	for name, value := range v {
		switch name {
		case D, P, Q, DP, DQ, QI, K:
			continue
		}
		pub[name] = value
	}
	return pub
}
