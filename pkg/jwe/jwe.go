// Package jwe implements JSON Web Encryption: the canonical encrypted
// token model, the key management and content encryption registries,
// encryption, and the decryption pipeline.
//
// https://datatracker.ietf.org/doc/html/rfc7516
package jwe

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/picatz/joseloader/pkg/base64"
	"github.com/picatz/joseloader/pkg/header"
)

// Header is a JSON object containing the parameters describing
// the cryptographic operations and parameters employed.
type Header = header.Parameters

// Kind is the value returned by General.Kind.
const Kind = "JWE"

var (
	// ErrNoRecipients is returned for a token without recipient entries.
	ErrNoRecipients = errors.New("jwe: token has no recipients")

	// ErrNoMatchingRecipient is returned when no recipient could be
	// decrypted with the available keys. Authentication failures of
	// individual candidates are reported this way too.
	ErrNoMatchingRecipient = errors.New("jwe: no matching recipient")

	// ErrAuthenticationFailed is the per-candidate error of a content
	// decryption or key unwrap whose integrity check failed. It never
	// leaves Decrypt.
	ErrAuthenticationFailed = errors.New("jwe: authentication failed")

	// ErrNotRepresentable is returned when a token cannot be written in
	// the requested serialization.
	ErrNotRepresentable = errors.New("jwe: token cannot be represented in this serialization")
)

// General is an encrypted token in the canonical general JSON shape.
// Every serialization is normalized into this form before decryption.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.2.1
type General struct {
	// Protected is the base64url encoded protected header, exactly as
	// it appeared on the wire. It is the AAD of the content encryption.
	Protected string `json:"protected,omitempty"`

	// Unprotected is the shared unprotected header.
	Unprotected Header `json:"unprotected,omitempty"`

	// Recipients are kept in their original order.
	Recipients []Recipient `json:"recipients"`

	AAD        string `json:"aad,omitempty"`
	IV         string `json:"iv,omitempty"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag,omitempty"`
}

// Recipient is one key management entry.
type Recipient struct {
	// Header is the per-recipient unprotected header.
	Header Header `json:"header,omitempty"`

	// EncryptedKey is the base64url encoded encrypted content
	// encryption key. It is empty for direct algorithms.
	EncryptedKey string `json:"encrypted_key,omitempty"`
}

// Kind returns "JWE".
func (g *General) Kind() string {
	return Kind
}

// Validate checks the structural invariants of the token: at least one
// recipient, and base64url members.
func (g *General) Validate() error {
	if len(g.Recipients) == 0 {
		return ErrNoRecipients
	}
	if !base64.Valid(g.Protected) {
		return fmt.Errorf("%w: protected header is not base64url", header.ErrMalformed)
	}
	for name, value := range map[string]string{
		"aad":        g.AAD,
		"iv":         g.IV,
		"ciphertext": g.Ciphertext,
		"tag":        g.Tag,
	} {
		if !base64.Valid(value) {
			return fmt.Errorf("jwe: %s is not base64url", name)
		}
	}
	for i, r := range g.Recipients {
		if !base64.Valid(r.EncryptedKey) {
			return fmt.Errorf("recipient %d: encrypted key is not base64url", i)
		}
	}
	return nil
}

// SharedHeader returns the decoded protected header and its union with
// the shared unprotected header.
func (g *General) SharedHeader() (protected, shared Header, err error) {
	protected, err = header.Decode(g.Protected)
	if err != nil {
		return nil, nil, err
	}
	shared, err = header.Merge(protected, g.Unprotected)
	if err != nil {
		return nil, nil, err
	}
	return protected, shared, nil
}

// AdditionalData returns the Additional Authenticated Data of the
// content encryption.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-5.1
func (g *General) AdditionalData() []byte {
	if g.AAD == "" {
		return []byte(g.Protected)
	}
	return []byte(g.Protected + "." + g.AAD)
}

// flattened is the flattened JSON serialization.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.2.2
type flattened struct {
	Protected    string `json:"protected,omitempty"`
	Unprotected  Header `json:"unprotected,omitempty"`
	Header       Header `json:"header,omitempty"`
	EncryptedKey string `json:"encrypted_key,omitempty"`
	AAD          string `json:"aad,omitempty"`
	IV           string `json:"iv,omitempty"`
	Ciphertext   string `json:"ciphertext"`
	Tag          string `json:"tag,omitempty"`
}

// Flattened returns the flattened JSON serialization. The token must
// have exactly one recipient.
func (g *General) Flattened() ([]byte, error) {
	if len(g.Recipients) != 1 {
		return nil, fmt.Errorf("%w: flattened form needs exactly one recipient, have %d", ErrNotRepresentable, len(g.Recipients))
	}
	r := g.Recipients[0]
	return json.Marshal(flattened{
		Protected:    g.Protected,
		Unprotected:  g.Unprotected,
		Header:       r.Header,
		EncryptedKey: r.EncryptedKey,
		AAD:          g.AAD,
		IV:           g.IV,
		Ciphertext:   g.Ciphertext,
		Tag:          g.Tag,
	})
}

// Compact returns the compact serialization. The token must have
// exactly one recipient and no unprotected headers or AAD.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.1
func (g *General) Compact() (string, error) {
	if len(g.Recipients) != 1 {
		return "", fmt.Errorf("%w: compact form needs exactly one recipient, have %d", ErrNotRepresentable, len(g.Recipients))
	}
	r := g.Recipients[0]
	if len(g.Unprotected) > 0 || len(r.Header) > 0 {
		return "", fmt.Errorf("%w: compact form has no unprotected header", ErrNotRepresentable)
	}
	if g.AAD != "" {
		return "", fmt.Errorf("%w: compact form has no AAD", ErrNotRepresentable)
	}
	return g.Protected + "." + r.EncryptedKey + "." + g.IV + "." + g.Ciphertext + "." + g.Tag, nil
}
