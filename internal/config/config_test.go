package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/picatz/joseloader/pkg/compression"
	"github.com/picatz/joseloader/pkg/jwa"
	"github.com/picatz/joseloader/pkg/logging"
)

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParse(t *testing.T) {
	doc := `
logging:
  level: debug
  format: json
jws:
  allowed_algorithms: [HS256, EdDSA]
  critical_parameters: [exp]
jwe:
  allowed_key_algorithms: [dir, A128KW]
  allowed_content_algorithms: [A128GCM]
compression:
  methods: [DEF]
  level: "6"
  max_decompressed_size: 1024
`
	cfg, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)

	require.True(t, cfg.JWS.Allowed().Allowed(jwa.HS256, jwa.EdDSA))
	require.False(t, cfg.JWS.Allowed().Allowed(jwa.RS256))
	require.Len(t, cfg.JWS.Options(), 1)

	require.True(t, cfg.JWE.KeyAlgorithms().Allowed(jwa.Direct, jwa.A128KW))
	require.True(t, cfg.JWE.ContentAlgorithms().Allowed(jwa.A128GCM))
	require.False(t, cfg.JWE.ContentAlgorithms().Allowed(jwa.A256GCM))
	require.Empty(t, cfg.JWE.Options())

	registry, err := cfg.Compression.Registry()
	require.NoError(t, err)
	require.Equal(t, []string{"DEF"}, registry.Names())

	_, err = registry.Uncompress("GZ", []byte("x"))
	require.ErrorIs(t, err, compression.ErrUnknownMethod)

	var buf bytes.Buffer
	logger, err := cfg.Logging.Logger(&buf)
	require.NoError(t, err)
	require.Equal(t, logging.Debug, logger.GetLevel())

	logger.Debug("hello")
	require.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestParsePartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("logging:\n  level: warn\n"))
	require.NoError(t, err)

	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, Default().JWS, cfg.JWS)
	require.Equal(t, Default().Compression, cfg.Compression)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		is   error
		msg  string
	}{
		{
			name: "unknown field",
			doc:  "jws:\n  allowed: [HS256]\n",
			msg:  "field allowed not found",
		},
		{
			name: "unsupported signature algorithm",
			doc:  "jws:\n  allowed_algorithms: [HS1]\n",
			is:   jwa.ErrUnsupportedAlgorithm,
			msg:  "jws.allowed_algorithms",
		},
		{
			name: "content algorithm in key list",
			doc:  "jwe:\n  allowed_key_algorithms: [A256GCM]\n",
			is:   jwa.ErrUnsupportedAlgorithm,
			msg:  "jwe.allowed_key_algorithms",
		},
		{
			name: "unsupported content algorithm",
			doc:  "jwe:\n  allowed_content_algorithms: [A512GCM]\n",
			is:   jwa.ErrUnsupportedAlgorithm,
			msg:  "jwe.allowed_content_algorithms",
		},
		{
			name: "unknown compression method",
			doc:  "compression:\n  methods: [BR]\n",
			is:   compression.ErrUnknownMethod,
			msg:  `"BR"`,
		},
		{
			name: "compression level out of range",
			doc:  "compression:\n  level: \"12\"\n",
			is:   compression.ErrInvalidLevel,
		},
		{
			name: "negative size bound",
			doc:  "compression:\n  max_decompressed_size: -1\n",
			msg:  "must not be negative",
		},
		{
			name: "log level",
			doc:  "logging:\n  level: loud\n",
			msg:  "invalid log level",
		},
		{
			name: "log format",
			doc:  "logging:\n  format: xml\n",
			msg:  "invalid log format",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(test.doc))
			require.Error(t, err)
			if test.is != nil {
				require.ErrorIs(t, err, test.is)
			}
			if test.msg != "" {
				require.ErrorContains(t, err, test.msg)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.JWS.AllowedAlgorithms = []string{"HS1", "HS2"}
	cfg.Compression.Methods = []string{"BR"}

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, `"HS1"`)
	require.ErrorContains(t, err, `"HS2"`)
	require.ErrorContains(t, err, `"BR"`)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jose.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jws:\n  allow_none: true\n  allowed_algorithms: [none]\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.JWS.AllowNone)
	require.Len(t, cfg.JWS.Options(), 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
