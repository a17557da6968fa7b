package keyutil

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/picatz/joseloader/pkg/jwk"
	"github.com/stretchr/testify/require"
)

func TestNewSymmetricKey(t *testing.T) {
	key, err := NewSymmetricKey(32)
	require.NoError(t, err)
	require.Len(t, key, 32)
}

func TestNewSymmetricKeyEqual(t *testing.T) {
	key1, err := NewSymmetricKey(32)
	require.NoError(t, err)

	key2, err := NewSymmetricKey(32)
	require.NoError(t, err)

	require.True(t, SymmetricKeysEqual(key1, key1))
	require.False(t, SymmetricKeysEqual(key1, key2))
}

func encodePEM(t *testing.T, blockType string, der []byte) []byte {
	t.Helper()
	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
}

func TestParsePEM(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	ecDER, err := x509.MarshalECPrivateKey(ecKey)
	require.NoError(t, err)

	edDER, err := x509.MarshalPKCS8PrivateKey(edKey)
	require.NoError(t, err)

	ecPubDER, err := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input []byte
		check func(t *testing.T, v jwk.Value)
	}{
		{
			name:  "SEC 1 private key",
			input: encodePEM(t, "EC PRIVATE KEY", ecDER),
			check: func(t *testing.T, v jwk.Value) {
				priv, err := jwk.ECDSAPrivateKey(v)
				require.NoError(t, err)
				require.True(t, priv.Equal(ecKey))
			},
		},
		{
			name:  "PKCS #1 private key",
			input: encodePEM(t, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(rsaKey)),
			check: func(t *testing.T, v jwk.Value) {
				priv, err := jwk.RSAPrivateKey(v)
				require.NoError(t, err)
				require.True(t, priv.Equal(rsaKey))
			},
		},
		{
			name:  "PKCS #8 private key",
			input: encodePEM(t, "PRIVATE KEY", edDER),
			check: func(t *testing.T, v jwk.Value) {
				priv, err := jwk.Ed25519PrivateKey(v)
				require.NoError(t, err)
				require.True(t, priv.Equal(edKey))
			},
		},
		{
			name:  "PKIX public key",
			input: encodePEM(t, "PUBLIC KEY", ecPubDER),
			check: func(t *testing.T, v jwk.Value) {
				_, hasD := v[jwk.D]
				require.False(t, hasD)
				pub, err := jwk.ECDSAPublicKey(v)
				require.NoError(t, err)
				require.True(t, pub.Equal(&ecKey.PublicKey))
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			values, err := ParsePEM(bytes.NewReader(test.input))
			require.NoError(t, err)
			require.Len(t, values, 1)
			require.NotEmpty(t, values[0][jwk.KeyID])
			test.check(t, values[0])
		})
	}

	t.Run("private and public halves share a key id", func(t *testing.T) {
		input := append(encodePEM(t, "EC PRIVATE KEY", ecDER), encodePEM(t, "PUBLIC KEY", ecPubDER)...)
		values, err := ParsePEM(bytes.NewReader(input))
		require.NoError(t, err)
		require.Len(t, values, 2)
		require.Equal(t, values[0][jwk.KeyID], values[1][jwk.KeyID])
	})

	t.Run("no blocks", func(t *testing.T) {
		_, err := ParsePEM(bytes.NewReader([]byte("not pem")))
		require.Error(t, err)
	})

	t.Run("unsupported block", func(t *testing.T) {
		_, err := ParsePEM(bytes.NewReader(encodePEM(t, "OPENSSH PRIVATE KEY", []byte{1})))
		require.Error(t, err)
	})
}
