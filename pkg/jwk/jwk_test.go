package jwk

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueECDSA(t *testing.T) {
	input := `
	{
		"kty":"EC",
		"crv":"P-256",
		"x":"MKBCTNIcKUSDii11ySs3526iDZ8AiTo7Tu6KPAqv7D4",
		"y":"4Etl6SRW2YiLUrN5vfvVHuhp7x8PxltmWWlbbM4IFyM",
		"use":"enc",
		"kid":"1"
	}`

	value := Value{}
	err := json.NewDecoder(strings.NewReader(input)).Decode(&value)
	require.NoError(t, err)
	require.NoError(t, Validate(value))

	pkey, err := ECDSAPublicKey(value)
	require.NoError(t, err)
	require.Equal(t, elliptic.P256(), pkey.Curve)

	_, err = ECDSAPrivateKey(value)
	require.Error(t, err)

	value[Y] = value[X]
	_, err = ECDSAPublicKey(value)
	require.Error(t, err)
}

func TestValueRSA(t *testing.T) {
	input := `
	{
		"kty":"RSA",
		"n": "0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw",
		"e":"AQAB",
		"alg":"RS256",
		"kid":"2011-04-29"
	}`

	value := Value{}
	err := json.NewDecoder(strings.NewReader(input)).Decode(&value)
	require.NoError(t, err)
	require.NoError(t, Validate(value))

	pkey, err := RSAPublicKey(value)
	require.NoError(t, err)
	require.Equal(t, 65537, pkey.E)
	require.Equal(t, 256, pkey.Size())
}

func TestPrivateKeyValues(t *testing.T) {
	t.Run("RSA", func(t *testing.T) {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		value, err := ValueFromPrivateKey(key)
		require.NoError(t, err)
		require.NoError(t, Validate(value))

		priv, err := RSAPrivateKey(value)
		require.NoError(t, err)
		require.True(t, priv.Equal(key))

		pub, err := RSAPublicKey(Public(value))
		require.NoError(t, err)
		require.True(t, pub.Equal(&key.PublicKey))
	})

	t.Run("EC", func(t *testing.T) {
		for _, curve := range []elliptic.Curve{elliptic.P256(), elliptic.P384(), elliptic.P521()} {
			key, err := ecdsa.GenerateKey(curve, rand.Reader)
			require.NoError(t, err)

			value, err := ValueFromPrivateKey(key)
			require.NoError(t, err)
			require.NoError(t, Validate(value))

			priv, err := ECDSAPrivateKey(value)
			require.NoError(t, err)
			require.True(t, priv.Equal(key))

			_, hasD := Public(value)[D]
			require.False(t, hasD)
		}
	})

	t.Run("Ed25519", func(t *testing.T) {
		pub, key, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)

		value, err := ValueFromPrivateKey(key)
		require.NoError(t, err)
		require.NoError(t, Validate(value))

		priv, err := Ed25519PrivateKey(value)
		require.NoError(t, err)
		require.True(t, priv.Equal(key))

		pubKey, err := Ed25519PublicKey(value)
		require.NoError(t, err)
		require.True(t, pubKey.Equal(pub))
	})

	t.Run("X25519", func(t *testing.T) {
		value := ValueFromX25519(make([]byte, 32), []byte{1, 2, 3})
		require.NoError(t, Validate(value))

		_, err := X25519PrivateKey(value)
		require.NoError(t, err)

		_, err = Ed25519PublicKey(value)
		require.Error(t, err)
	})

	t.Run("symmetric", func(t *testing.T) {
		value := ValueFromSymmetricKey([]byte("secret"))
		k, err := SymmetricKey(value)
		require.NoError(t, err)
		require.Equal(t, []byte("secret"), k)

		require.Empty(t, Public(value)[K])

		_, err = SymmetricKey(Value{KeyType: KeyTypeOct, K: ""})
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	for name, value := range map[string]Value{
		"missing kty":       {K: "c2VjcmV0"},
		"unknown kty":       {KeyType: "DH"},
		"EC unknown curve":  {KeyType: KeyTypeEC, Curve: "P-224", X: "AA", Y: "AA"},
		"EC missing y":      {KeyType: KeyTypeEC, Curve: CurveP256, X: "AA"},
		"RSA missing e":     {KeyType: KeyTypeRSA, N: "AA"},
		"oct bad encoding":  {KeyType: KeyTypeOct, K: "!!"},
		"OKP unknown curve": {KeyType: KeyTypeOKP, Curve: "X448", X: "AA"},
		"bad private member": {
			KeyType: KeyTypeOct, K: "AA", D: 42,
		},
	} {
		t.Run(name, func(t *testing.T) {
			require.Error(t, Validate(value))
		})
	}
}
