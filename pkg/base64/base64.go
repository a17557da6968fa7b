package base64

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Decode returns the base64url decoded bytes from the given input.
//
// Padding is optional on input. An empty input decodes to an empty
// slice, because compact JOSE serializations use empty segments for
// absent values (an unsecured JWS signature, a "dir" encrypted key).
func Decode(input string) ([]byte, error) {
	if len(input) == 0 {
		return []byte{}, nil
	}

	result, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(input, "="))
	if err != nil {
		return nil, fmt.Errorf("base64: invalid base64url input: %w", err)
	}
	return result, nil
}

// Encode returns the unpadded base64url encoding of the given input.
func Encode(input []byte) string {
	return base64.RawURLEncoding.EncodeToString(input)
}

// Valid reports whether the input only contains characters from the
// base64url alphabet, without padding.
func Valid(input string) bool {
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
