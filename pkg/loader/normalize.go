package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/picatz/joseloader/pkg/base64"
	"github.com/picatz/joseloader/pkg/jwe"
	"github.com/picatz/joseloader/pkg/jws"
)

// ErrUnsupportedInput is returned for input that is neither a JSON
// serialization of a JWS or JWE nor a compact serialization.
var ErrUnsupportedInput = errors.New("unsupported input")

// Input is a serialized token, either a string or byte slice.
type Input interface {
	~string | ~[]byte
}

// Token is a normalized token, either a *jws.General or a *jwe.General.
type Token interface {
	// Kind returns "JWS" or "JWE".
	Kind() string
}

// Form names the serialization a token arrived in.
type Form string

const (
	FormCompact   Form = "compact"
	FormFlattened Form = "flattened"
	FormGeneral   Form = "general"
)

// Normalize classifies the input and reshapes it into the general JSON
// form of its kind. It does not decode headers or verify anything.
//
// JSON objects are classified by their members: "signatures" for a
// general JWS, "recipients" for a general JWE, "signature" for a
// flattened JWS and "ciphertext" for a flattened JWE. Other input is
// read as a compact serialization of 3 (JWS) or 5 (JWE) base64url
// segments.
func Normalize[T Input](input T) (Token, error) {
	token, _, err := normalize([]byte(input))
	return token, err
}

func normalize(input []byte) (Token, Form, error) {
	input = bytes.TrimSpace(input)
	if len(input) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrUnsupportedInput)
	}

	if input[0] == '{' {
		return normalizeJSON(input)
	}

	return normalizeCompact(string(input))
}

func has(members map[string]json.RawMessage, names ...string) bool {
	for _, name := range names {
		if _, ok := members[name]; ok {
			return true
		}
	}
	return false
}

func normalizeJSON(input []byte) (Token, Form, error) {
	var members map[string]json.RawMessage
	err := json.Unmarshal(input, &members)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid JSON object: %w", ErrUnsupportedInput, err)
	}

	isJWS := has(members, "signatures", "signature", "payload")
	isJWE := has(members, "recipients", "ciphertext", "encrypted_key", "iv", "tag")
	if isJWS && isJWE {
		return nil, "", fmt.Errorf("%w: object has both JWS and JWE members", ErrUnsupportedInput)
	}

	switch {
	case has(members, "signatures"):
		if has(members, "signature", "protected", "header") {
			return nil, "", fmt.Errorf("%w: general JWS with flattened members", ErrUnsupportedInput)
		}
		token := &jws.General{}
		err = decodeJSON(input, token)
		if err != nil {
			return nil, "", err
		}
		return validated(token, FormGeneral, token.Validate())

	case has(members, "recipients"):
		if has(members, "header", "encrypted_key") {
			return nil, "", fmt.Errorf("%w: general JWE with flattened members", ErrUnsupportedInput)
		}
		if !has(members, "ciphertext") {
			return nil, "", fmt.Errorf("%w: general JWE without ciphertext", ErrUnsupportedInput)
		}
		token := &jwe.General{}
		err = decodeJSON(input, token)
		if err != nil {
			return nil, "", err
		}
		return validated(token, FormGeneral, token.Validate())

	case has(members, "signature"):
		var flat struct {
			Payload   string     `json:"payload"`
			Protected string     `json:"protected"`
			Header    jws.Header `json:"header"`
			Signature string     `json:"signature"`
		}
		err = decodeJSON(input, &flat)
		if err != nil {
			return nil, "", err
		}
		token := &jws.General{
			Payload: flat.Payload,
			Signatures: []jws.Signature{
				{Protected: flat.Protected, Header: flat.Header, Signature: flat.Signature},
			},
		}
		return validated(token, FormFlattened, token.Validate())

	case has(members, "ciphertext"):
		var flat struct {
			Protected    string     `json:"protected"`
			Unprotected  jwe.Header `json:"unprotected"`
			Header       jwe.Header `json:"header"`
			EncryptedKey string     `json:"encrypted_key"`
			AAD          string     `json:"aad"`
			IV           string     `json:"iv"`
			Ciphertext   string     `json:"ciphertext"`
			Tag          string     `json:"tag"`
		}
		err = decodeJSON(input, &flat)
		if err != nil {
			return nil, "", err
		}
		if flat.Header == nil {
			flat.Header = jwe.Header{}
		}
		token := &jwe.General{
			Protected:   flat.Protected,
			Unprotected: flat.Unprotected,
			Recipients: []jwe.Recipient{
				{Header: flat.Header, EncryptedKey: flat.EncryptedKey},
			},
			AAD:        flat.AAD,
			IV:         flat.IV,
			Ciphertext: flat.Ciphertext,
			Tag:        flat.Tag,
		}
		return validated(token, FormFlattened, token.Validate())

	default:
		return nil, "", fmt.Errorf("%w: JSON object is neither a JWS nor a JWE", ErrUnsupportedInput)
	}
}

func decodeJSON(input []byte, v any) error {
	err := json.Unmarshal(input, v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedInput, err)
	}
	return nil
}

func validated(token Token, form Form, err error) (Token, Form, error) {
	if err != nil {
		return nil, "", err
	}
	return token, form, nil
}

// normalizeCompact handles the compact serializations.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.1
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.1
func normalizeCompact(input string) (Token, Form, error) {
	parts := strings.Split(input, ".")

	for i, part := range parts {
		if !base64.Valid(part) {
			return nil, "", fmt.Errorf("%w: segment %d is not base64url", ErrUnsupportedInput, i)
		}
	}

	switch len(parts) {
	case 3:
		token := &jws.General{
			Payload: parts[1],
			Signatures: []jws.Signature{
				{Protected: parts[0], Signature: parts[2]},
			},
		}
		return token, FormCompact, nil
	case 5:
		token := &jwe.General{
			Protected: parts[0],
			Recipients: []jwe.Recipient{
				{Header: jwe.Header{}, EncryptedKey: parts[1]},
			},
			IV:         parts[2],
			Ciphertext: parts[3],
			Tag:        parts[4],
		}
		return token, FormCompact, nil
	default:
		return nil, "", fmt.Errorf("%w: compact serialization has %d segments, need 3 or 5", ErrUnsupportedInput, len(parts))
	}
}
