package ecdh

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/picatz/joseloader/pkg/base64"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.Decode(s)
	require.NoError(t, err)
	return b
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// https://datatracker.ietf.org/doc/html/rfc7518#appendix-C
func TestConcatKDFVector(t *testing.T) {
	var (
		aliceD = mustDecode(t, "0_NxaRPUMQoAJt50Gz8YiTr8gRTwyEaCumd-MToTmIo")
		alice  = Point{
			X: mustDecode(t, "gI0GAILBdu7T53akrFmMyGcsF3n5dO7MmwNBHKW5SV0"),
			Y: mustDecode(t, "SLW_xSffzlPWrHEVI30DHM_4egVwt3NQqeUD7nMFpps"),
		}
		bobD = mustDecode(t, "VEmDZpDXXK8p8N0Cndsxs924q6nS1RXFASRl6BfUqdw")
		bob  = Point{
			X: mustDecode(t, "weNJy2HscCSM6AEDTDg04biOvhFhyyWvOHQfeF_PxMQ"),
			Y: mustDecode(t, "e8lnCO-AlStT-NJVX-crhB7QRYhiix03illJOVAOyck"),
		}
		info = KDFInfo{
			AlgorithmID: "A128GCM",
			PartyUInfo:  []byte("Alice"),
			PartyVInfo:  []byte("Bob"),
			KeyBits:     128,
		}
	)

	pub, err := PublicPoint(P256, aliceD)
	require.NoError(t, err)
	require.True(t, pub.Equal(alice))

	receiver, err := NewContext(P256, bobD)
	require.NoError(t, err)

	secret, err := receiver.WithPeer(alice)
	require.NoError(t, err)

	key, err := secret.DeriveKey(info)
	require.NoError(t, err)
	require.Equal(t, "VqqN6vgjbSBcIijNcacQGg", base64.Encode(key))

	sender, err := NewContext(P256, aliceD)
	require.NoError(t, err)

	senderSecret, err := sender.WithPeer(bob)
	require.NoError(t, err)
	require.Equal(t, secret.Bytes(), senderSecret.Bytes())
}

// https://datatracker.ietf.org/doc/html/rfc7748#section-6.1
func TestX25519Vector(t *testing.T) {
	alicePriv := mustHex(t, "77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a")
	alicePub := mustHex(t, "8520f0098930a754748b7ddcb43ef75a0dbf3a0d26381af4eba4a98eaa9b4e6a")
	bobPriv := mustHex(t, "5dab087e624a8a4b79e17f8b83800ee66f3bb1292618b6fd1c2f8b27ff88e0eb")
	bobPub := mustHex(t, "de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f")
	shared := mustHex(t, "4a5d9d5ba4ce2de1728e3bf480350f25e07e21c947d19e3376f09b3c1e161742")

	pub, err := PublicPoint(X25519, alicePriv)
	require.NoError(t, err)
	require.Equal(t, alicePub, pub.X)

	z, err := DeriveSharedSecret(X25519, alicePriv, Point{X: bobPub})
	require.NoError(t, err)
	require.Equal(t, shared, z)

	z, err = DeriveSharedSecret(X25519, bobPriv, Point{X: alicePub})
	require.NoError(t, err)
	require.Equal(t, shared, z)
}

func TestAgreementSymmetry(t *testing.T) {
	for _, curve := range []Curve{P256, P384, P521, X25519} {
		t.Run(string(curve), func(t *testing.T) {
			aPriv, aPub, err := GenerateKey(curve)
			require.NoError(t, err)

			bPriv, bPub, err := GenerateKey(curve)
			require.NoError(t, err)

			ab, err := DeriveSharedSecret(curve, aPriv, bPub)
			require.NoError(t, err)
			require.Len(t, ab, curve.Size())

			ba, err := DeriveSharedSecret(curve, bPriv, aPub)
			require.NoError(t, err)
			require.Equal(t, ab, ba)

			again, err := DeriveSharedSecret(curve, aPriv, bPub)
			require.NoError(t, err)
			require.Equal(t, ab, again)
		})
	}
}

func TestWithPeer(t *testing.T) {
	priv, _, err := GenerateKey(P256)
	require.NoError(t, err)

	_, peer, err := GenerateKey(P256)
	require.NoError(t, err)

	_, other, err := GenerateKey(P256)
	require.NoError(t, err)

	ctx, err := NewContext(P256, priv)
	require.NoError(t, err)

	first, err := ctx.WithPeer(peer)
	require.NoError(t, err)

	t.Run("same point returns the bound secret", func(t *testing.T) {
		second, err := ctx.WithPeer(peer)
		require.NoError(t, err)
		require.Same(t, first, second)
	})

	t.Run("different point fails", func(t *testing.T) {
		_, err := ctx.WithPeer(other)
		require.ErrorIs(t, err, ErrPeerAlreadySet)
	})

	t.Run("failed binding leaves the context unbound", func(t *testing.T) {
		ctx, err := NewContext(P256, priv)
		require.NoError(t, err)

		_, err = ctx.WithPeer(Point{X: peer.X, Y: peer.X})
		require.ErrorIs(t, err, ErrInvalidCurvePoint)

		_, err = ctx.WithPeer(peer)
		require.NoError(t, err)
	})
}

func TestInvalidPoints(t *testing.T) {
	priv, pub, err := GenerateKey(P384)
	require.NoError(t, err)

	_, p256, err := GenerateKey(P256)
	require.NoError(t, err)

	x25519Priv, _, err := GenerateKey(X25519)
	require.NoError(t, err)

	tests := []struct {
		name   string
		curve  Curve
		scalar []byte
		point  Point
	}{
		{
			name:   "infinity",
			curve:  P384,
			scalar: priv,
			point:  Point{X: make([]byte, 48), Y: make([]byte, 48)},
		},
		{
			name:   "not on curve",
			curve:  P384,
			scalar: priv,
			point:  Point{X: pub.X, Y: pub.X},
		},
		{
			name:   "point from another curve",
			curve:  P384,
			scalar: priv,
			point:  p256,
		},
		{
			name:   "coordinate too long",
			curve:  P384,
			scalar: priv,
			point:  Point{X: append([]byte{1}, pub.X...), Y: pub.Y},
		},
		{
			name:   "X25519 zero point",
			curve:  X25519,
			scalar: x25519Priv,
			point:  Point{X: make([]byte, 32)},
		},
		{
			name:   "X25519 short point",
			curve:  X25519,
			scalar: x25519Priv,
			point:  Point{X: make([]byte, 31)},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := DeriveSharedSecret(test.curve, test.scalar, test.point)
			require.ErrorIs(t, err, ErrInvalidCurvePoint)
		})
	}
}

func TestNewContext(t *testing.T) {
	_, err := NewContext("P-192", []byte{1})
	require.ErrorIs(t, err, ErrUnsupportedCurve)

	_, err = NewContext(P256, make([]byte, 32))
	require.ErrorIs(t, err, ErrInvalidScalar)

	_, err = NewContext(X25519, make([]byte, 16))
	require.ErrorIs(t, err, ErrInvalidScalar)
}

func TestSecretIsNotPrinted(t *testing.T) {
	secret := &Secret{z: []byte("top secret value")}

	for _, s := range []string{
		fmt.Sprint(secret),
		fmt.Sprintf("%v %s %#v", secret, secret, secret),
	} {
		require.NotContains(t, s, "top secret value")
	}

	_, err := secret.MarshalJSON()
	require.Error(t, err)
}

func TestDeriveSymmetricKey(t *testing.T) {
	z := []byte("shared secret")

	k1, err := DeriveSymmetricKey(z, KDFInfo{AlgorithmID: "A256GCM", KeyBits: 256})
	require.NoError(t, err)
	require.Len(t, k1, 32)

	k2, err := DeriveSymmetricKey(z, KDFInfo{AlgorithmID: "A256KW", KeyBits: 256})
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)

	k3, err := DeriveSymmetricKey(z, KDFInfo{AlgorithmID: "A256GCM", PartyUInfo: []byte("u"), KeyBits: 256})
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)

	_, err = DeriveSymmetricKey(z, KDFInfo{AlgorithmID: "A256GCM", KeyBits: 7})
	require.Error(t, err)

	legacy := LegacySymmetricKey(z)
	require.Len(t, legacy, 32)
	require.NotEqual(t, k1, legacy)
}
