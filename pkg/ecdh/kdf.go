package ecdh

import (
	"bytes"
	"crypto"
	_ "crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	josecipher "github.com/go-jose/go-jose/v3/cipher"
)

// Secret is an agreed shared secret Z. It is never printed or
// serialized, use DeriveKey to turn it into key material.
type Secret struct {
	z []byte
}

// Bytes returns a copy of the raw shared secret.
func (s *Secret) Bytes() []byte {
	return bytes.Clone(s.z)
}

// DeriveKey derives a symmetric key from the secret with the Concat KDF.
func (s *Secret) DeriveKey(info KDFInfo) ([]byte, error) {
	return DeriveSymmetricKey(s.z, info)
}

func (s *Secret) String() string {
	return "ecdh.Secret(REDACTED)"
}

func (s *Secret) GoString() string {
	return s.String()
}

// MarshalJSON always fails.
func (s *Secret) MarshalJSON() ([]byte, error) {
	return nil, errors.New("ecdh: shared secrets cannot be serialized")
}

// MarshalText always fails.
func (s *Secret) MarshalText() ([]byte, error) {
	return nil, errors.New("ecdh: shared secrets cannot be serialized")
}

// KDFInfo holds the OtherInfo inputs of the Concat KDF.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.6.2
type KDFInfo struct {
	// AlgorithmID is the "enc" value for direct key agreement, or the
	// "alg" value when the derived key wraps the CEK.
	AlgorithmID string

	// PartyUInfo and PartyVInfo are the decoded "apu" and "apv" values.
	PartyUInfo []byte
	PartyVInfo []byte

	// KeyBits is the length of the derived key in bits.
	KeyBits int
}

// DeriveSymmetricKey runs the Concat KDF (NIST SP 800-56A section 5.8.1)
// with SHA-256 over the shared secret, as used by ECDH-ES.
func DeriveSymmetricKey(secret []byte, info KDFInfo) ([]byte, error) {
	if info.KeyBits <= 0 || info.KeyBits%8 != 0 {
		return nil, fmt.Errorf("invalid derived key length %d bits", info.KeyBits)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty shared secret")
	}

	supPubInfo := make([]byte, 4)
	binary.BigEndian.PutUint32(supPubInfo, uint32(info.KeyBits))

	reader := josecipher.NewConcatKDF(
		crypto.SHA256,
		secret,
		lengthPrefixed([]byte(info.AlgorithmID)),
		lengthPrefixed(info.PartyUInfo),
		lengthPrefixed(info.PartyVInfo),
		supPubInfo,
		[]byte{},
	)

	key := make([]byte, info.KeyBits/8)
	_, err := io.ReadFull(reader, key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return key, nil
}

// lengthPrefixed prepends the 32-bit big-endian length to data.
func lengthPrefixed(data []byte) []byte {
	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(out, uint32(len(data)))
	copy(out[4:], data)
	return out
}
