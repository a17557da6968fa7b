package jwe

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	josecipher "github.com/go-jose/go-jose/v3/cipher"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/exp/slices"

	"github.com/picatz/joseloader/pkg/base64"
	"github.com/picatz/joseloader/pkg/ecdh"
	"github.com/picatz/joseloader/pkg/header"
	"github.com/picatz/joseloader/pkg/jwa"
	"github.com/picatz/joseloader/pkg/jwk"
	"github.com/picatz/joseloader/pkg/keyutil"
)

const (
	// MinimumRSAKeySize is the smallest RSA modulus, in bits, accepted
	// for key encryption.
	MinimumRSAKeySize = 2048

	// MaxPBES2Count bounds the "p2c" iteration count accepted when
	// decrypting, so a token cannot make key derivation arbitrarily
	// expensive.
	MaxPBES2Count = 1_000_000

	// DefaultPBES2Count is the "p2c" used when encrypting without an
	// explicit count.
	DefaultPBES2Count = 100_000

	// MinimumPBES2SaltSize is the smallest accepted "p2s" in bytes.
	//
	// https://datatracker.ietf.org/doc/html/rfc7518#section-4.8.1.1
	MinimumPBES2SaltSize = 8
)

// WrappedKey is the output of KeyManager.Wrap.
type WrappedKey struct {
	// CEK is the content encryption key. Direct algorithms determine it,
	// the others echo the one given to Wrap.
	CEK []byte

	// EncryptedKey is empty for direct algorithms.
	EncryptedKey []byte

	// Header holds the parameters the algorithm adds to the recipient,
	// such as "epk", "iv" and "tag", or "p2s" and "p2c".
	Header Header
}

// KeyManager is a key management algorithm capability.
type KeyManager interface {
	// Algorithm returns the "alg" value.
	Algorithm() jwa.Algorithm

	// Direct reports whether the key itself determines the content
	// encryption key, which rules out sharing a token with other
	// recipients.
	Direct() bool

	// Wrap produces the encrypted key for the recipient key. The cek is
	// ignored by direct algorithms. Params are the caller's recipient
	// parameters, such as "apu", "apv", "p2s" or "p2c".
	Wrap(cek []byte, enc ContentCipher, key jwk.Value, params Header) (*WrappedKey, error)

	// Unwrap recovers the content encryption key of a recipient given its
	// merged header.
	Unwrap(encryptedKey []byte, enc ContentCipher, key jwk.Value, hdr Header) ([]byte, error)
}

var keyManagers = map[jwa.Algorithm]KeyManager{}

func init() {
	for _, m := range []KeyManager{
		directKeyManager{},
		aesKeyWrap{jwa.A128KW, 16},
		aesKeyWrap{jwa.A192KW, 24},
		aesKeyWrap{jwa.A256KW, 32},
		aesGCMKeyWrap{jwa.A128GCMKW, 16},
		aesGCMKeyWrap{jwa.A192GCMKW, 24},
		aesGCMKeyWrap{jwa.A256GCMKW, 32},
		rsaKeyManager{jwa.RSA1_5, 0},
		rsaKeyManager{jwa.RSAOAEP, crypto.SHA1},
		rsaKeyManager{jwa.RSAOAEP256, crypto.SHA256},
		ecdhKeyManager{jwa.ECDHES, 0},
		ecdhKeyManager{jwa.ECDHESA128KW, 16},
		ecdhKeyManager{jwa.ECDHESA192KW, 24},
		ecdhKeyManager{jwa.ECDHESA256KW, 32},
		pbes2KeyManager{jwa.PBES2HS256A128KW, crypto.SHA256, 16},
		pbes2KeyManager{jwa.PBES2HS384A192KW, crypto.SHA384, 24},
		pbes2KeyManager{jwa.PBES2HS512A256KW, crypto.SHA512, 32},
	} {
		keyManagers[m.Algorithm()] = m
	}
}

// LookupKeyManager returns the key manager for the "alg" value.
func LookupKeyManager(alg jwa.Algorithm) (KeyManager, bool) {
	m, ok := keyManagers[alg]
	return m, ok
}

// SupportedKeyAlgorithm reports whether the "alg" value is implemented.
func SupportedKeyAlgorithm(alg jwa.Algorithm) bool {
	_, ok := keyManagers[alg]
	return ok
}

// KeyAlgorithms returns the implemented "alg" values, sorted.
func KeyAlgorithms() []jwa.Algorithm {
	names := make([]jwa.Algorithm, 0, len(keyManagers))
	for name := range keyManagers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func checkCEK(cek []byte, enc ContentCipher) error {
	if len(cek) != enc.KeySize() {
		return fmt.Errorf("%w: content encryption key is %d bytes, %s needs %d", ErrAuthenticationFailed, len(cek), enc.Algorithm(), enc.KeySize())
	}
	return nil
}

func symmetricKey(key jwk.Value, size int) ([]byte, error) {
	k, err := jwk.SymmetricKey(key)
	if err != nil {
		return nil, err
	}
	if size > 0 && len(k) != size {
		return nil, fmt.Errorf("invalid key length %d, need %d", len(k), size)
	}
	return k, nil
}

// https://datatracker.ietf.org/doc/html/rfc7518#section-4.4
func keyWrap(kek, cek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create key wrap cipher: %w", err)
	}
	return josecipher.KeyWrap(block, cek)
}

// keyUnwrap reverses RFC 3394 key wrap. A wrapped key is at least two
// 64-bit blocks plus the integrity block.
func keyUnwrap(kek, encryptedKey []byte, enc ContentCipher) ([]byte, error) {
	if len(encryptedKey) < 24 || len(encryptedKey)%8 != 0 {
		return nil, fmt.Errorf("%w: invalid wrapped key length %d", ErrAuthenticationFailed, len(encryptedKey))
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create key wrap cipher: %w", err)
	}
	cek, err := josecipher.KeyUnwrap(block, encryptedKey)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	if err := checkCEK(cek, enc); err != nil {
		return nil, err
	}
	return cek, nil
}

// Direct use of a shared symmetric key as the CEK.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.5
type directKeyManager struct{}

func (directKeyManager) Algorithm() jwa.Algorithm { return jwa.Direct }

func (directKeyManager) Direct() bool { return true }

func (directKeyManager) Wrap(_ []byte, enc ContentCipher, key jwk.Value, _ Header) (*WrappedKey, error) {
	k, err := symmetricKey(key, enc.KeySize())
	if err != nil {
		return nil, err
	}
	return &WrappedKey{CEK: bytes.Clone(k)}, nil
}

func (directKeyManager) Unwrap(encryptedKey []byte, enc ContentCipher, key jwk.Value, _ Header) ([]byte, error) {
	if len(encryptedKey) != 0 {
		return nil, errors.New("encrypted key must be empty for direct encryption")
	}
	k, err := symmetricKey(key, enc.KeySize())
	if err != nil {
		return nil, err
	}
	return bytes.Clone(k), nil
}

type aesKeyWrap struct {
	name jwa.Algorithm
	size int
}

func (m aesKeyWrap) Algorithm() jwa.Algorithm { return m.name }

func (aesKeyWrap) Direct() bool { return false }

func (m aesKeyWrap) Wrap(cek []byte, _ ContentCipher, key jwk.Value, _ Header) (*WrappedKey, error) {
	kek, err := symmetricKey(key, m.size)
	if err != nil {
		return nil, err
	}
	ek, err := keyWrap(kek, cek)
	if err != nil {
		return nil, err
	}
	return &WrappedKey{CEK: cek, EncryptedKey: ek}, nil
}

func (m aesKeyWrap) Unwrap(encryptedKey []byte, enc ContentCipher, key jwk.Value, _ Header) ([]byte, error) {
	kek, err := symmetricKey(key, m.size)
	if err != nil {
		return nil, err
	}
	return keyUnwrap(kek, encryptedKey, enc)
}

// https://datatracker.ietf.org/doc/html/rfc7518#section-4.7
type aesGCMKeyWrap struct {
	name jwa.Algorithm
	size int
}

func (m aesGCMKeyWrap) Algorithm() jwa.Algorithm { return m.name }

func (aesGCMKeyWrap) Direct() bool { return false }

func (m aesGCMKeyWrap) Wrap(cek []byte, _ ContentCipher, key jwk.Value, _ Header) (*WrappedKey, error) {
	kek, err := symmetricKey(key, m.size)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create key wrap cipher: %w", err)
	}

	iv := make([]byte, gcm.NonceSize())
	_, err = rand.Read(iv)
	if err != nil {
		return nil, fmt.Errorf("failed to generate initialization vector: %w", err)
	}

	sealed := gcm.Seal(nil, iv, cek, nil)
	split := len(sealed) - gcm.Overhead()

	return &WrappedKey{
		CEK:          cek,
		EncryptedKey: sealed[:split],
		Header: Header{
			header.InitializationVector: base64.Encode(iv),
			header.AuthenticationTag:    base64.Encode(sealed[split:]),
		},
	}, nil
}

func (m aesGCMKeyWrap) Unwrap(encryptedKey []byte, enc ContentCipher, key jwk.Value, hdr Header) ([]byte, error) {
	kek, err := symmetricKey(key, m.size)
	if err != nil {
		return nil, err
	}

	iv, err := hdr.Bytes(header.InitializationVector)
	if err != nil {
		return nil, err
	}
	tag, err := hdr.Bytes(header.AuthenticationTag)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create key wrap cipher: %w", err)
	}
	if len(iv) != gcm.NonceSize() || len(tag) != gcm.Overhead() {
		return nil, fmt.Errorf("invalid %q or %q length", header.InitializationVector, header.AuthenticationTag)
	}

	cek, err := gcm.Open(nil, iv, append(bytes.Clone(encryptedKey), tag...), nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	if err := checkCEK(cek, enc); err != nil {
		return nil, err
	}
	return cek, nil
}

// RSAES-PKCS1-v1_5 when hash is zero, RSAES-OAEP otherwise.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.2
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.3
type rsaKeyManager struct {
	name jwa.Algorithm
	hash crypto.Hash
}

func (m rsaKeyManager) Algorithm() jwa.Algorithm { return m.name }

func (rsaKeyManager) Direct() bool { return false }

func (m rsaKeyManager) Wrap(cek []byte, _ ContentCipher, key jwk.Value, _ Header) (*WrappedKey, error) {
	pub, err := jwk.RSAPublicKey(key)
	if err != nil {
		return nil, err
	}
	if pub.N.BitLen() < MinimumRSAKeySize {
		return nil, fmt.Errorf("RSA key size %d is smaller than %d bits", pub.N.BitLen(), MinimumRSAKeySize)
	}

	var ek []byte
	if m.hash == 0 {
		ek, err = rsa.EncryptPKCS1v15(rand.Reader, pub, cek)
	} else {
		ek, err = rsa.EncryptOAEP(m.hash.New(), rand.Reader, pub, cek, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt key with %s: %w", m.name, err)
	}

	return &WrappedKey{CEK: cek, EncryptedKey: ek}, nil
}

func (m rsaKeyManager) Unwrap(encryptedKey []byte, enc ContentCipher, key jwk.Value, _ Header) ([]byte, error) {
	priv, err := jwk.RSAPrivateKey(key)
	if err != nil {
		return nil, err
	}
	if priv.N.BitLen() < MinimumRSAKeySize {
		return nil, fmt.Errorf("RSA key size %d is smaller than %d bits", priv.N.BitLen(), MinimumRSAKeySize)
	}

	if m.hash == 0 {
		// A random key is kept when the padding is invalid, so the
		// failure only shows up as a content authentication failure.
		//
		// https://datatracker.ietf.org/doc/html/rfc3218#section-2.3.2
		cek, err := keyutil.NewSymmetricKey(enc.KeySize())
		if err != nil {
			return nil, err
		}
		err = rsa.DecryptPKCS1v15SessionKey(nil, priv, encryptedKey, cek)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt key with %s: %w", m.name, err)
		}
		return cek, nil
	}

	cek, err := rsa.DecryptOAEP(m.hash.New(), nil, priv, encryptedKey, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	if err := checkCEK(cek, enc); err != nil {
		return nil, err
	}
	return cek, nil
}

// ECDH-ES, used directly when kwSize is zero, or to derive an AES key
// wrapping key otherwise.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.6
type ecdhKeyManager struct {
	name   jwa.Algorithm
	kwSize int
}

func (m ecdhKeyManager) Algorithm() jwa.Algorithm { return m.name }

func (m ecdhKeyManager) Direct() bool { return m.kwSize == 0 }

func (m ecdhKeyManager) kdfInfo(enc ContentCipher, hdr Header) (ecdh.KDFInfo, error) {
	info := ecdh.KDFInfo{
		AlgorithmID: m.name,
		KeyBits:     m.kwSize * 8,
	}
	if m.Direct() {
		info.AlgorithmID = enc.Algorithm()
		info.KeyBits = enc.KeySize() * 8
	}

	var err error
	info.PartyUInfo, err = optionalBytes(hdr, header.AgreementPartyU)
	if err != nil {
		return ecdh.KDFInfo{}, err
	}
	info.PartyVInfo, err = optionalBytes(hdr, header.AgreementPartyV)
	if err != nil {
		return ecdh.KDFInfo{}, err
	}
	return info, nil
}

func (m ecdhKeyManager) Wrap(cek []byte, enc ContentCipher, key jwk.Value, params Header) (*WrappedKey, error) {
	curve, peer, err := agreementPublicKey(key)
	if err != nil {
		return nil, err
	}

	info, err := m.kdfInfo(enc, params)
	if err != nil {
		return nil, err
	}

	scalar, ephemeral, err := ecdh.GenerateKey(curve)
	if err != nil {
		return nil, err
	}
	ctx, err := ecdh.NewContext(curve, scalar)
	if err != nil {
		return nil, err
	}
	secret, err := ctx.WithPeer(peer)
	if err != nil {
		return nil, err
	}
	derived, err := secret.DeriveKey(info)
	if err != nil {
		return nil, err
	}

	wrapped := &WrappedKey{
		Header: Header{header.EphemeralPublicKey: ephemeralKey(curve, ephemeral)},
	}

	if m.Direct() {
		wrapped.CEK = derived
		return wrapped, nil
	}

	wrapped.CEK = cek
	wrapped.EncryptedKey, err = keyWrap(derived, cek)
	if err != nil {
		return nil, err
	}
	return wrapped, nil
}

func (m ecdhKeyManager) Unwrap(encryptedKey []byte, enc ContentCipher, key jwk.Value, hdr Header) ([]byte, error) {
	epk, err := hdr.Object(header.EphemeralPublicKey)
	if err != nil {
		return nil, err
	}
	epkCurve, peer, err := agreementPublicKey(epk)
	if err != nil {
		return nil, fmt.Errorf("invalid %q: %w", header.EphemeralPublicKey, err)
	}

	curve, scalar, err := agreementPrivateKey(key)
	if err != nil {
		return nil, err
	}
	if curve != epkCurve {
		return nil, fmt.Errorf("key curve %s does not match ephemeral key curve %s", curve, epkCurve)
	}

	info, err := m.kdfInfo(enc, hdr)
	if err != nil {
		return nil, err
	}

	ctx, err := ecdh.NewContext(curve, scalar)
	if err != nil {
		return nil, err
	}
	secret, err := ctx.WithPeer(peer)
	if err != nil {
		return nil, err
	}
	derived, err := secret.DeriveKey(info)
	if err != nil {
		return nil, err
	}

	if m.Direct() {
		if len(encryptedKey) != 0 {
			return nil, errors.New("encrypted key must be empty for direct key agreement")
		}
		return derived, nil
	}
	return keyUnwrap(derived, encryptedKey, enc)
}

func optionalBytes(hdr Header, param header.ParamaterName) ([]byte, error) {
	b, err := hdr.Bytes(param)
	if errors.Is(err, header.ErrParameterNotFound) {
		return nil, nil
	}
	return b, err
}

func member(v jwk.Value, name jwk.ParamaterName) ([]byte, error) {
	s, ok := v[name].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid JWK member %q", name)
	}
	return base64.Decode(s)
}

func agreementCurve(v jwk.Value) (ecdh.Curve, error) {
	crv := ecdh.Curve(jwk.CurveOf(v))
	switch kty := jwk.KeyTypeOf(v); {
	case kty == jwk.KeyTypeEC && (crv == ecdh.P256 || crv == ecdh.P384 || crv == ecdh.P521):
		return crv, nil
	case kty == jwk.KeyTypeOKP && crv == ecdh.X25519:
		return crv, nil
	default:
		return "", fmt.Errorf("%w: %q key on curve %q", ecdh.ErrUnsupportedCurve, kty, crv)
	}
}

// agreementPublicKey returns the curve and point of an EC or X25519 key.
func agreementPublicKey(v jwk.Value) (ecdh.Curve, ecdh.Point, error) {
	curve, err := agreementCurve(v)
	if err != nil {
		return "", ecdh.Point{}, err
	}

	var p ecdh.Point
	p.X, err = member(v, jwk.X)
	if err != nil {
		return "", ecdh.Point{}, err
	}
	if curve != ecdh.X25519 {
		p.Y, err = member(v, jwk.Y)
		if err != nil {
			return "", ecdh.Point{}, err
		}
	}
	return curve, p, nil
}

// agreementPrivateKey returns the curve and private scalar of an EC or
// X25519 key.
func agreementPrivateKey(v jwk.Value) (ecdh.Curve, []byte, error) {
	curve, err := agreementCurve(v)
	if err != nil {
		return "", nil, err
	}
	d, err := member(v, jwk.D)
	if err != nil {
		return "", nil, err
	}
	return curve, d, nil
}

func ephemeralKey(curve ecdh.Curve, p ecdh.Point) jwk.Value {
	if curve == ecdh.X25519 {
		return jwk.ValueFromX25519(p.X, nil)
	}
	return jwk.Value{
		jwk.KeyType: jwk.KeyTypeEC,
		jwk.Curve:   string(curve),
		jwk.X:       base64.Encode(p.X),
		jwk.Y:       base64.Encode(p.Y),
	}
}

// PBES2 with HMAC SHA-2 and AES key wrap. The symmetric key value "k"
// holds the password.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.8
type pbes2KeyManager struct {
	name   jwa.Algorithm
	hash   crypto.Hash
	kwSize int
}

func (m pbes2KeyManager) Algorithm() jwa.Algorithm { return m.name }

func (pbes2KeyManager) Direct() bool { return false }

func (m pbes2KeyManager) kek(password, salt []byte, count int) []byte {
	full := make([]byte, 0, len(m.name)+1+len(salt))
	full = append(full, m.name...)
	full = append(full, 0)
	full = append(full, salt...)
	return pbkdf2.Key(password, full, count, m.kwSize, m.hash.New)
}

func (m pbes2KeyManager) Wrap(cek []byte, _ ContentCipher, key jwk.Value, params Header) (*WrappedKey, error) {
	password, err := symmetricKey(key, 0)
	if err != nil {
		return nil, err
	}

	salt, err := optionalBytes(params, header.PBES2Salt)
	if err != nil {
		return nil, err
	}
	if salt == nil {
		salt, err = keyutil.NewSymmetricKey(16)
		if err != nil {
			return nil, err
		}
	}
	if len(salt) < MinimumPBES2SaltSize {
		return nil, fmt.Errorf("%q is shorter than %d bytes", header.PBES2Salt, MinimumPBES2SaltSize)
	}

	count := DefaultPBES2Count
	if _, ok := params[header.PBES2Count]; ok {
		count, err = pbes2Count(params)
		if err != nil {
			return nil, err
		}
	}

	ek, err := keyWrap(m.kek(password, salt, count), cek)
	if err != nil {
		return nil, err
	}

	return &WrappedKey{
		CEK:          cek,
		EncryptedKey: ek,
		Header: Header{
			header.PBES2Salt:  base64.Encode(salt),
			header.PBES2Count: count,
		},
	}, nil
}

func (m pbes2KeyManager) Unwrap(encryptedKey []byte, enc ContentCipher, key jwk.Value, hdr Header) ([]byte, error) {
	password, err := symmetricKey(key, 0)
	if err != nil {
		return nil, err
	}

	salt, err := hdr.Bytes(header.PBES2Salt)
	if err != nil {
		return nil, err
	}
	if len(salt) < MinimumPBES2SaltSize {
		return nil, fmt.Errorf("%q is shorter than %d bytes", header.PBES2Salt, MinimumPBES2SaltSize)
	}

	count, err := pbes2Count(hdr)
	if err != nil {
		return nil, err
	}

	return keyUnwrap(m.kek(password, salt, count), encryptedKey, enc)
}

// pbes2Count returns "p2c", which must be a positive integer no larger
// than MaxPBES2Count.
func pbes2Count(hdr Header) (int, error) {
	value, err := hdr.Get(header.PBES2Count)
	if err != nil {
		return 0, err
	}

	var count float64
	switch v := value.(type) {
	case float64:
		count = v
	case int:
		count = float64(v)
	case int64:
		count = float64(v)
	case json.Number:
		count, err = v.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid %q: %w", header.PBES2Count, err)
		}
	default:
		return 0, fmt.Errorf("%q is not a number, is %T", header.PBES2Count, value)
	}

	if count != math.Trunc(count) || count < 1 || count > MaxPBES2Count {
		return 0, fmt.Errorf("%q must be an integer between 1 and %d", header.PBES2Count, MaxPBES2Count)
	}
	return int(count), nil
}
