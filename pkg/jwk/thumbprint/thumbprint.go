package thumbprint

import (
	"bytes"
	"crypto"
	_ "crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/picatz/joseloader/pkg/base64"
	"github.com/picatz/joseloader/pkg/jwk"
)

var (
	ErrInvalidKey = errors.New("thumbprint: invalid key")
)

// required lists the members of each key type, in lexicographic order.
//
// https://datatracker.ietf.org/doc/html/rfc7638#section-3.2
// https://datatracker.ietf.org/doc/html/rfc8037#section-2
var required = map[string][]string{
	jwk.KeyTypeEC:  {"crv", "kty", "x", "y"},
	jwk.KeyTypeRSA: {"e", "kty", "n"},
	jwk.KeyTypeOct: {"k", "kty"},
	jwk.KeyTypeOKP: {"crv", "kty", "x"},
}

// Generate returns the JWK Thumbprint for the given JWK following
// the steps defined in RFC 7638. SHA-256 is used when h is zero.
func Generate(value jwk.Value, h crypto.Hash) ([]byte, error) {
	members, ok := required[jwk.KeyTypeOf(value)]
	if !ok {
		return nil, ErrInvalidKey
	}

	// Construct a JSON object containing only the required members, with
	// no whitespace and the members ordered lexicographically. The standard
	// library's json.Marshal is only used per member value since map key
	// order is not something to rely on here.
	b := bytes.NewBuffer(nil)
	b.WriteByte('{')
	for i, name := range members {
		s, ok := value[name].(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%w: member %q", ErrInvalidKey, name)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		enc, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		b.WriteByte('"')
		b.WriteString(name)
		b.WriteString(`":`)
		b.Write(enc)
	}
	b.WriteByte('}')

	if h == 0 {
		h = crypto.SHA256
	}
	if !h.Available() {
		return nil, fmt.Errorf("thumbprint: hash %v is not available", h)
	}

	hash := h.New()
	hash.Write(b.Bytes())
	return hash.Sum(nil), nil
}

// GenerateString returns the JWK Thumbprint for the given JWK following
// the steps defined in RFC 7638 as a base64url encoded string.
func GenerateString(value jwk.Value, h crypto.Hash) (string, error) {
	thumbprint, err := Generate(value, h)
	if err != nil {
		return "", err
	}

	return base64.Encode(thumbprint), nil
}
