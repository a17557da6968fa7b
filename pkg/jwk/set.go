package jwk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"

	"golang.org/x/exp/slices"
)

// KeySet is a read-only source of candidate keys. Implementations must
// be safe for concurrent use by multiple pipelines.
type KeySet interface {
	// Candidates yields the keys compatible with the hint, in order.
	Candidates(hint Hint) iter.Seq[Value]
}

// Public key uses.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-4.2
const (
	UseSignature  = "sig"
	UseEncryption = "enc"
)

// Hint describes what a key is about to be used for. Empty fields match
// any key, and keys which do not declare the corresponding member are
// always candidates.
type Hint struct {
	// Use is compared against the key's "use".
	Use string

	// Operations are compared against the key's "key_ops", at least one
	// of them must be listed by the key.
	Operations []string

	// Algorithm is compared against the key's "alg".
	Algorithm string

	// KeyID is compared against the key's "kid".
	KeyID string
}

// Matches reports whether the given key is compatible with the hint.
func (h Hint) Matches(v Value) bool {
	if h.Use != "" {
		if use, ok := v[PublicKeyUse].(string); ok && use != h.Use {
			return false
		}
	}

	if len(h.Operations) > 0 {
		if ops, ok := v[KeyOperations].([]any); ok {
			found := false
			for _, op := range ops {
				if s, ok := op.(string); ok && slices.Contains(h.Operations, s) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}

	if h.Algorithm != "" {
		if alg, ok := v[Algorithm].(string); ok && alg != h.Algorithm {
			return false
		}
	}

	if h.KeyID != "" {
		if kid, ok := v[KeyID].(string); ok && kid != h.KeyID {
			return false
		}
	}

	return true
}

// Set is a JWK set as defined in RFC 7517.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-5
type Set struct {
	// Keys is a list of JWK values.
	//
	// https://datatracker.ietf.org/doc/html/rfc7517#section-5.1
	Keys []Value `json:"keys"`
}

// NewSet returns a set holding the given keys.
func NewSet(keys ...Value) *Set {
	return &Set{Keys: keys}
}

// Candidates implements KeySet.
func (s *Set) Candidates(hint Hint) iter.Seq[Value] {
	return func(yield func(Value) bool) {
		if s == nil {
			return
		}
		for _, key := range s.Keys {
			if !hint.Matches(key) {
				continue
			}
			if !yield(key) {
				return
			}
		}
	}
}

// Validate validates the JWK set, returning an error if any
// of the keys are invalid.
func (s *Set) Validate() error {
	if len(s.Keys) == 0 {
		return fmt.Errorf("no key values in JWK set")
	}

	for i, key := range s.Keys {
		err := Validate(key)
		if err != nil {
			return fmt.Errorf("key set validation error for key %d: %w", i, err)
		}
	}

	return nil
}

// Get returns the key that matches the given key id.
func (s *Set) Get(keyID string) (Value, error) {
	for _, key := range s.Keys {
		if key[KeyID] == keyID {
			return key, nil
		}
	}

	return nil, fmt.Errorf("key %q not found in set", keyID)
}

// Add appends keys to the set.
func (s *Set) Add(keys ...Value) {
	s.Keys = append(s.Keys, keys...)
}

// DecodeSet decodes and validates a JWK set. A single JWK object is
// accepted and treated as a set of one.
func DecodeSet(r io.Reader) (*Set, error) {
	var raw map[string]json.RawMessage
	err := json.NewDecoder(r).Decode(&raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWK set: %w", err)
	}

	var set Set
	if keys, ok := raw["keys"]; ok {
		err = json.Unmarshal(keys, &set.Keys)
		if err != nil {
			return nil, fmt.Errorf("failed to decode JWK set keys: %w", err)
		}
	} else {
		value := Value{}
		for name, msg := range raw {
			var v any
			err = json.Unmarshal(msg, &v)
			if err != nil {
				return nil, fmt.Errorf("failed to decode JWK member %q: %w", name, err)
			}
			value[name] = v
		}
		set.Keys = []Value{value}
	}

	err = set.Validate()
	if err != nil {
		return nil, fmt.Errorf("failed to validate JWK set: %w", err)
	}

	return &set, nil
}

// MaxFetchSize bounds the JWK set document read by FetchSet.
const MaxFetchSize = 1 << 20

// FetchSet fetches a JWK set from the given URL and HTTP client. Bodies
// larger than MaxFetchSize are rejected.
func FetchSet(ctx context.Context, url string, client *http.Client) (*Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK set request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWK set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch JWK set: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWK set: %w", err)
	}
	if len(body) > MaxFetchSize {
		return nil, fmt.Errorf("failed to fetch JWK set: body exceeds %d bytes", MaxFetchSize)
	}

	return DecodeSet(bytes.NewReader(body))
}
