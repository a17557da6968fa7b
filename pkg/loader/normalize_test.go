package loader

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/picatz/joseloader/pkg/header"
	"github.com/picatz/joseloader/pkg/jwa"
	"github.com/picatz/joseloader/pkg/jwe"
	"github.com/picatz/joseloader/pkg/jwk"
	"github.com/picatz/joseloader/pkg/jws"
)

// https://datatracker.ietf.org/doc/html/rfc7516#appendix-A.3
const (
	rfcProtected    = "eyJhbGciOiJBMTI4S1ciLCJlbmMiOiJBMTI4Q0JDLUhTMjU2In0"
	rfcEncryptedKey = "6KB707dM9YTIgHtLvtgWQ8mKwboJW3of9locizkDTHzBC2IlrT1oOQ"
	rfcIV           = "AxY8DCtDaGlsbGljb3RoZQ"
	rfcCiphertext   = "KDlTtXchhZTGufMYmOYGS4HffxPSUrfmqCHXaI9wOGY"
	rfcTag          = "U0m_YmjN04DJvceFICbCVQ"
	rfcKey          = "GawgguFyGrWKav7AX4VKUg"
)

var equateEmpty = cmpopts.EquateEmpty()

func TestNormalizeCompactJWS(t *testing.T) {
	token, form, err := normalize([]byte("eyJhbGciOiJub25lIn0.cGF5bG9hZA."))
	require.NoError(t, err)
	require.Equal(t, FormCompact, form)

	signed, ok := token.(*jws.General)
	require.True(t, ok)
	require.Equal(t, jws.Kind, signed.Kind())
	require.Len(t, signed.Signatures, 1)
	require.Empty(t, signed.Signatures[0].Signature)

	value, err := signed.Signatures[0].Value()
	require.NoError(t, err)
	require.Empty(t, value)

	payload, err := signed.DecodedPayload()
	require.NoError(t, err)
	require.Equal(t, "payload", string(payload))

	protected, err := signed.Signatures[0].ProtectedHeader()
	require.NoError(t, err)
	require.Equal(t, jwa.None, protected[header.Algorithm])
}

func TestNormalizeFlattenedJWE(t *testing.T) {
	input := `{"protected":"` + rfcProtected + `","encrypted_key":"` + rfcEncryptedKey + `","iv":"` + rfcIV + `","ciphertext":"` + rfcCiphertext + `","tag":"` + rfcTag + `"}`

	token, form, err := normalize([]byte(input))
	require.NoError(t, err)
	require.Equal(t, FormFlattened, form)

	want := &jwe.General{
		Protected:  rfcProtected,
		Recipients: []jwe.Recipient{{Header: jwe.Header{}, EncryptedKey: rfcEncryptedKey}},
		IV:         rfcIV,
		Ciphertext: rfcCiphertext,
		Tag:        rfcTag,
	}
	require.Empty(t, cmp.Diff(want, token))
}

func TestNormalizeForms(t *testing.T) {
	key := jwk.ValueFromSymmetricKey([]byte("0123456789abcdef0123456789abcdef"))

	signed, err := jws.Sign([]byte(`{"iss":"joe"}`), jws.Signer{
		Protected: jws.Header{header.Algorithm: jwa.HS256},
		Key:       key,
	})
	require.NoError(t, err)

	detached := signed.Detached()

	withHeader, err := jws.Sign([]byte("unprotected"), jws.Signer{
		Protected:   jws.Header{header.Algorithm: jwa.HS256},
		Unprotected: jws.Header{header.KeyID: "k1"},
		Key:         key,
	})
	require.NoError(t, err)

	encrypted, err := jwe.Encrypt([]byte("secret"), jwa.A128GCM, []jwe.RecipientKey{{Algorithm: jwa.A256KW, Key: key}})
	require.NoError(t, err)

	withAAD, err := jwe.Encrypt([]byte("secret"), jwa.A128GCM, []jwe.RecipientKey{{Algorithm: jwa.A256KW, Key: key}},
		jwe.WithAAD([]byte("aad")), jwe.WithUnprotectedHeader(jwe.Header{"jku": "https://example.com/jwks"}))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token interface {
			Token
			Flattened() ([]byte, error)
			Compact() (string, error)
		}
		compact bool
	}{
		{name: "JWS", token: signed, compact: true},
		{name: "detached JWS", token: detached, compact: true},
		{name: "JWS with unprotected header", token: withHeader},
		{name: "JWE", token: encrypted, compact: true},
		{name: "JWE with AAD", token: withAAD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := map[Form]string{}

			general, err := json.Marshal(tt.token)
			require.NoError(t, err)
			inputs[FormGeneral] = string(general)

			flat, err := tt.token.Flattened()
			require.NoError(t, err)
			inputs[FormFlattened] = string(flat)

			compact, err := tt.token.Compact()
			if tt.compact {
				require.NoError(t, err)
				inputs[FormCompact] = compact
			} else {
				require.Error(t, err)
			}

			for form, input := range inputs {
				got, gotForm, err := normalize([]byte(input))
				require.NoError(t, err, form)
				require.Equal(t, form, gotForm)
				require.Equal(t, tt.token.Kind(), got.Kind())
				require.Empty(t, cmp.Diff(tt.token, got, equateEmpty), form)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	key := jwk.ValueFromSymmetricKey([]byte("0123456789abcdef0123456789abcdef"))

	signed, err := jws.Sign([]byte("many"),
		jws.Signer{Protected: jws.Header{header.Algorithm: jwa.HS256}, Unprotected: jws.Header{header.KeyID: "a"}, Key: key},
		jws.Signer{Protected: jws.Header{header.Algorithm: jwa.HS384}, Unprotected: jws.Header{header.KeyID: "b"}, Key: jwk.ValueFromSymmetricKey(make([]byte, 48))},
	)
	require.NoError(t, err)

	encrypted, err := jwe.Encrypt([]byte("many"), jwa.A256GCM, []jwe.RecipientKey{
		{Algorithm: jwa.A256KW, Key: key, Header: jwe.Header{header.KeyID: "a"}},
		{Algorithm: jwa.A256GCMKW, Key: key, Header: jwe.Header{header.KeyID: "b"}},
	})
	require.NoError(t, err)

	for _, token := range []Token{signed, encrypted} {
		t.Run(token.Kind(), func(t *testing.T) {
			b, err := json.Marshal(token)
			require.NoError(t, err)

			first, form, err := normalize(b)
			require.NoError(t, err)
			require.Equal(t, FormGeneral, form)

			again, err := json.Marshal(first)
			require.NoError(t, err)
			require.JSONEq(t, string(b), string(again))

			second, _, err := normalize(again)
			require.NoError(t, err)
			require.Empty(t, cmp.Diff(first, second))
		})
	}
}

func TestNormalizeUnsupported(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "empty", input: "", wantErr: ErrUnsupportedInput},
		{name: "whitespace", input: " \n\t", wantErr: ErrUnsupportedInput},
		{name: "one segment", input: "abc", wantErr: ErrUnsupportedInput},
		{name: "two segments", input: "abc.def", wantErr: ErrUnsupportedInput},
		{name: "four segments", input: "a.b.c.d", wantErr: ErrUnsupportedInput},
		{name: "six segments", input: "a.b.c.d.e.f", wantErr: ErrUnsupportedInput},
		{name: "not base64url", input: "eyJhbGciOiJub25lIn0.cGF5+bG9hZA.", wantErr: ErrUnsupportedInput},
		{name: "padded segment", input: "eyJhbGciOiJub25lIn0.cGF5bG9hZA==.", wantErr: ErrUnsupportedInput},
		{name: "JSON array", input: `["a","b"]`, wantErr: ErrUnsupportedInput},
		{name: "JSON string", input: `"eyJhbGciOiJub25lIn0.cGF5bG9hZA."`, wantErr: ErrUnsupportedInput},
		{name: "invalid JSON", input: `{"signatures":`, wantErr: ErrUnsupportedInput},
		{name: "unrelated object", input: `{"foo":"bar"}`, wantErr: ErrUnsupportedInput},
		{name: "both signatures and recipients", input: `{"signatures":[{"signature":""}],"recipients":[{}],"ciphertext":""}`, wantErr: ErrUnsupportedInput},
		{name: "signature and ciphertext", input: `{"signature":"","ciphertext":"abc"}`, wantErr: ErrUnsupportedInput},
		{name: "wrong member type", input: `{"signatures":"abc"}`, wantErr: ErrUnsupportedInput},
		{name: "no signatures", input: `{"payload":"abc","signatures":[]}`, wantErr: jws.ErrNoSignatures},
		{name: "no recipients", input: `{"recipients":[],"ciphertext":"abc"}`, wantErr: jwe.ErrNoRecipients},
		{name: "general JWE without ciphertext", input: `{"protected":"eyJhbGciOiJkaXIifQ","recipients":[{}]}`, wantErr: ErrUnsupportedInput},
		{name: "payload not base64url", input: `{"payload":"a b","signature":""}`, wantErr: jws.ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := Normalize(tt.input)
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, token)
		})
	}
}

func TestNormalizeTrimsWhitespace(t *testing.T) {
	token, err := Normalize([]byte("\n  eyJhbGciOiJub25lIn0.cGF5bG9hZA.  \n"))
	require.NoError(t, err)
	require.Equal(t, jws.Kind, token.Kind())

	token, err = Normalize("  " + rfcProtected + "." + rfcEncryptedKey + "." + rfcIV + "." + rfcCiphertext + "." + rfcTag + "\r\n")
	require.NoError(t, err)
	require.Equal(t, jwe.Kind, token.Kind())
}
