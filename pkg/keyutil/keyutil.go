package keyutil

import (
	"crypto"
	"crypto/rand"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/picatz/joseloader/pkg/jwk"
	"github.com/picatz/joseloader/pkg/jwk/thumbprint"
)

// SymmetricKeysEqual checks if the given keys are the same.
func SymmetricKeysEqual(key1 []byte, key2 []byte) bool {
	return subtle.ConstantTimeCompare(key1, key2) == 1
}

// NewSymmetricKey generates a new symmetric key of the given size.
func NewSymmetricKey(size int) ([]byte, error) {
	key := make([]byte, size)

	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new symmetic key: %w", err)
	}

	return key, nil
}

// ParsePEM reads every PEM block from r and converts it into a JWK
// value. Private keys keep their private members. Each value gets a
// "kid" set to its RFC 7638 thumbprint, computed from the public part.
//
// Supported blocks are PKCS #1, PKCS #8, SEC 1, PKIX public keys and
// X.509 certificates.
func ParsePEM(r io.Reader) ([]jwk.Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PEM data: %w", err)
	}

	var values []jwk.Value

	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}

		value, err := blockValue(block)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PEM block %q: %w", block.Type, err)
		}

		kid, err := thumbprint.GenerateString(value, crypto.SHA256)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key id: %w", err)
		}
		value[jwk.KeyID] = kid

		values = append(values, value)
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("no PEM blocks found")
	}

	return values, nil
}

func blockValue(block *pem.Block) (jwk.Value, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return jwk.ValueFromPrivateKey(key)
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return jwk.ValueFromPrivateKey(key)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return jwk.ValueFromPrivateKey(key)
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return jwk.ValueFromPublicKey(key)
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return jwk.ValueFromPublicKey(key)
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		return jwk.ValueFromPublicKey(cert.PublicKey)
	default:
		return nil, fmt.Errorf("unsupported PEM block type")
	}
}
