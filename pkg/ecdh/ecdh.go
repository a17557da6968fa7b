// Package ecdh implements the Elliptic Curve Diffie-Hellman Ephemeral
// Static (ECDH-ES) key agreement used by JWE.
//
// Agreement is a two-phase operation. A Context is created from a curve
// and a local private scalar, then bound once to the peer's public point,
// producing a Secret. The Secret feeds the Concat KDF to produce the
// symmetric key for the algorithm in use.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.6
package ecdh

import (
	"bytes"
	stdecdh "crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/curve25519"
)

var (
	// ErrInvalidCurvePoint is returned when a peer point is not on the
	// context's curve, is the point at infinity, or is of small order.
	ErrInvalidCurvePoint = errors.New("invalid curve point")

	// ErrInvalidScalar is returned for a private scalar that is out of
	// range for the curve.
	ErrInvalidScalar = errors.New("invalid private scalar")

	// ErrPeerAlreadySet is returned when a bound context is given a
	// different peer point.
	ErrPeerAlreadySet = errors.New("peer point already set")

	// ErrUnsupportedCurve is returned for curves other than P-256, P-384,
	// P-521 and X25519.
	ErrUnsupportedCurve = errors.New("unsupported curve")
)

// Curve names a key agreement curve using its JWK "crv" value.
type Curve string

const (
	P256   Curve = "P-256"
	P384   Curve = "P-384"
	P521   Curve = "P-521"
	X25519 Curve = "X25519"
)

// Size returns the byte length of a field element, which is also the
// length of the shared secret.
func (c Curve) Size() int {
	switch c {
	case P256:
		return 32
	case P384:
		return 48
	case P521:
		return 66
	case X25519:
		return curve25519.PointSize
	default:
		return 0
	}
}

func (c Curve) nist() (stdecdh.Curve, error) {
	switch c {
	case P256:
		return stdecdh.P256(), nil
	case P384:
		return stdecdh.P384(), nil
	case P521:
		return stdecdh.P521(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurve, string(c))
	}
}

// Point is a public curve point. X25519 points only use X, the
// u-coordinate.
type Point struct {
	X []byte
	Y []byte
}

// Equal reports whether both points have the same coordinates.
func (p Point) Equal(o Point) bool {
	return bytes.Equal(p.X, o.X) && bytes.Equal(p.Y, o.Y)
}

// Context is a key agreement in progress. A Context must not be shared
// between concurrent derivations, each agreement owns a fresh one.
type Context struct {
	curve  Curve
	scalar []byte

	mu     sync.Mutex
	peer   *Point
	secret *Secret
}

// NewContext returns a context for the given curve and local private
// scalar. The scalar is validated for the curve.
func NewContext(curve Curve, scalar []byte) (*Context, error) {
	switch curve {
	case X25519:
		if len(scalar) != curve25519.ScalarSize {
			return nil, fmt.Errorf("%w: X25519 scalar must be %d bytes", ErrInvalidScalar, curve25519.ScalarSize)
		}
	default:
		c, err := curve.nist()
		if err != nil {
			return nil, err
		}
		scalar = leftPad(scalar, curve.Size())
		if _, err := c.NewPrivateKey(scalar); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidScalar, err)
		}
	}

	return &Context{
		curve:  curve,
		scalar: bytes.Clone(scalar),
	}, nil
}

// Curve returns the context's curve.
func (c *Context) Curve() Curve {
	return c.curve
}

// PublicPoint returns the public point of the context's private scalar.
func (c *Context) PublicPoint() (Point, error) {
	return PublicPoint(c.curve, c.scalar)
}

// WithPeer binds the peer's public point and computes the shared secret.
// Binding is done once. Calling WithPeer again with the same point
// returns the same Secret, a different point fails with
// ErrPeerAlreadySet.
func (c *Context) WithPeer(p Point) (*Secret, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peer != nil {
		if !c.peer.Equal(p) {
			return nil, ErrPeerAlreadySet
		}
		return c.secret, nil
	}

	z, err := agree(c.curve, c.scalar, p)
	if err != nil {
		return nil, err
	}

	c.peer = &Point{X: bytes.Clone(p.X), Y: bytes.Clone(p.Y)}
	c.secret = &Secret{z: z}

	return c.secret, nil
}

// DeriveSharedSecret computes the x-coordinate of the scalar
// multiplication of the peer point by the private scalar, zero-padded to
// the curve's field size.
func DeriveSharedSecret(curve Curve, scalar []byte, peer Point) ([]byte, error) {
	ctx, err := NewContext(curve, scalar)
	if err != nil {
		return nil, err
	}
	secret, err := ctx.WithPeer(peer)
	if err != nil {
		return nil, err
	}
	return secret.Bytes(), nil
}

func agree(curve Curve, scalar []byte, p Point) ([]byte, error) {
	if curve == X25519 {
		if len(p.X) != curve25519.PointSize || len(p.Y) != 0 {
			return nil, fmt.Errorf("%w: X25519 point must be %d bytes", ErrInvalidCurvePoint, curve25519.PointSize)
		}
		// X25519 rejects low order points by returning an error for an
		// all-zero output.
		z, err := curve25519.X25519(scalar, p.X)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCurvePoint, err)
		}
		return z, nil
	}

	c, err := curve.nist()
	if err != nil {
		return nil, err
	}

	size := curve.Size()
	if len(p.X) > size || len(p.Y) > size {
		return nil, fmt.Errorf("%w: coordinate longer than %d bytes", ErrInvalidCurvePoint, size)
	}

	// Uncompressed SEC 1 encoding. The point at infinity has no such
	// encoding, and points off the curve are refused by NewPublicKey.
	encoded := make([]byte, 0, 1+2*size)
	encoded = append(encoded, 4)
	encoded = append(encoded, leftPad(p.X, size)...)
	encoded = append(encoded, leftPad(p.Y, size)...)

	pub, err := c.NewPublicKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCurvePoint, err)
	}

	priv, err := c.NewPrivateKey(scalar)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScalar, err)
	}

	z, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCurvePoint, err)
	}

	return z, nil
}

// PublicPoint returns the public point for the given private scalar.
func PublicPoint(curve Curve, scalar []byte) (Point, error) {
	if curve == X25519 {
		u, err := curve25519.X25519(scalar, curve25519.Basepoint)
		if err != nil {
			return Point{}, fmt.Errorf("%w: %w", ErrInvalidScalar, err)
		}
		return Point{X: u}, nil
	}

	c, err := curve.nist()
	if err != nil {
		return Point{}, err
	}

	priv, err := c.NewPrivateKey(leftPad(scalar, curve.Size()))
	if err != nil {
		return Point{}, fmt.Errorf("%w: %w", ErrInvalidScalar, err)
	}

	return splitPoint(priv.PublicKey().Bytes(), curve.Size()), nil
}

// GenerateKey returns a fresh ephemeral private scalar and its public
// point.
func GenerateKey(curve Curve) ([]byte, Point, error) {
	if curve == X25519 {
		scalar := make([]byte, curve25519.ScalarSize)
		if _, err := rand.Read(scalar); err != nil {
			return nil, Point{}, fmt.Errorf("failed to generate X25519 scalar: %w", err)
		}
		p, err := PublicPoint(curve, scalar)
		if err != nil {
			return nil, Point{}, err
		}
		return scalar, p, nil
	}

	c, err := curve.nist()
	if err != nil {
		return nil, Point{}, err
	}

	priv, err := c.GenerateKey(rand.Reader)
	if err != nil {
		return nil, Point{}, fmt.Errorf("failed to generate %s key: %w", curve, err)
	}

	return priv.Bytes(), splitPoint(priv.PublicKey().Bytes(), curve.Size()), nil
}

func splitPoint(encoded []byte, size int) Point {
	return Point{
		X: bytes.Clone(encoded[1 : 1+size]),
		Y: bytes.Clone(encoded[1+size:]),
	}
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
