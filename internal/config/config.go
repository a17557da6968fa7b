// Package config parses the YAML policy file used by the jose command: which
// algorithms may be accepted, which compression methods are enabled and how
// logs are written.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/picatz/joseloader/pkg/compression"
	"github.com/picatz/joseloader/pkg/jwa"
	"github.com/picatz/joseloader/pkg/jwe"
	"github.com/picatz/joseloader/pkg/jws"
	"github.com/picatz/joseloader/pkg/logging"
)

// DefaultMaxDecompressedSize bounds inflated plaintext when the policy file
// does not set compression.max_decompressed_size.
const DefaultMaxDecompressedSize = 10 << 20

// Config is the policy file.
type Config struct {
	Logging     Logging     `yaml:"logging"`
	JWS         JWS         `yaml:"jws"`
	JWE         JWE         `yaml:"jwe"`
	Compression Compression `yaml:"compression"`
}

// Logging configures the log sink.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// JWS configures signature verification.
type JWS struct {
	AllowedAlgorithms  []string `yaml:"allowed_algorithms"`
	AllowNone          bool     `yaml:"allow_none"`
	CriticalParameters []string `yaml:"critical_parameters"`
}

// JWE configures decryption.
type JWE struct {
	AllowedKeyAlgorithms     []string `yaml:"allowed_key_algorithms"`
	AllowedContentAlgorithms []string `yaml:"allowed_content_algorithms"`
	CriticalParameters       []string `yaml:"critical_parameters"`
}

// Compression configures the compression registry.
type Compression struct {
	Methods             []string `yaml:"methods"`
	Level               string   `yaml:"level"`
	MaxDecompressedSize int64    `yaml:"max_decompressed_size"`
}

// Default returns the policy used when no file is given.
func Default() *Config {
	return &Config{
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		JWS: JWS{
			AllowedAlgorithms: jwa.DefaultAllowedAlgorithms().List(),
		},
		JWE: JWE{
			AllowedKeyAlgorithms: []string{
				jwa.RSAOAEP256,
				jwa.ECDHES,
				jwa.ECDHESA256KW,
				jwa.A256KW,
				jwa.A256GCMKW,
			},
			AllowedContentAlgorithms: []string{
				jwa.A256GCM,
				jwa.A256CBCHS512,
			},
		},
		Compression: Compression{
			Methods:             compression.Default().Names(),
			Level:               compression.DefaultLevel.String(),
			MaxDecompressedSize: DefaultMaxDecompressedSize,
		},
	}
}

// Parse reads a policy from r. Fields absent from the document keep their
// default values, and unknown fields are an error. An empty document yields
// the default policy.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and validates the policy file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Validate reports every problem in the policy at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		result = multierror.Append(result, err)
	}
	switch c.Logging.Format {
	case "", "text", "json", "json-pretty":
	default:
		result = multierror.Append(result, fmt.Errorf("invalid log format: %v", c.Logging.Format))
	}

	for _, alg := range c.JWS.AllowedAlgorithms {
		if !jws.Supported(alg) {
			result = multierror.Append(result, fmt.Errorf("jws.allowed_algorithms: %w: %q", jwa.ErrUnsupportedAlgorithm, alg))
		}
	}
	for _, alg := range c.JWE.AllowedKeyAlgorithms {
		if !jwe.SupportedKeyAlgorithm(alg) {
			result = multierror.Append(result, fmt.Errorf("jwe.allowed_key_algorithms: %w: %q", jwa.ErrUnsupportedAlgorithm, alg))
		}
	}
	for _, enc := range c.JWE.AllowedContentAlgorithms {
		if !jwe.SupportedContentAlgorithm(enc) {
			result = multierror.Append(result, fmt.Errorf("jwe.allowed_content_algorithms: %w: %q", jwa.ErrUnsupportedAlgorithm, enc))
		}
	}

	known := compression.Default()
	for _, name := range c.Compression.Methods {
		if !known.Has(name) {
			result = multierror.Append(result, fmt.Errorf("compression.methods: %w", &compression.UnknownMethodError{Method: name}))
		}
	}
	if _, err := compression.ParseLevel(c.Compression.Level); err != nil {
		result = multierror.Append(result, fmt.Errorf("compression.level: %w", err))
	}
	if c.Compression.MaxDecompressedSize < 0 {
		result = multierror.Append(result, fmt.Errorf("compression.max_decompressed_size must not be negative: %d", c.Compression.MaxDecompressedSize))
	}

	return result.ErrorOrNil()
}

// Logger returns a logger writing to w as configured.
func (l Logging) Logger(w io.Writer) (*logging.StandardLogger, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithFormat(w, l.Format, level), nil
}

// Allowed returns the signature allow-list.
func (j JWS) Allowed() jwa.AllowedAlgorithms {
	return jwa.NewAllowedAlgorithms(j.AllowedAlgorithms...)
}

// Options returns the verification options implied by the policy.
func (j JWS) Options() []jws.VerifyOption {
	var opts []jws.VerifyOption
	if j.AllowNone {
		opts = append(opts, jws.WithInsecureAllowNone())
	}
	if len(j.CriticalParameters) > 0 {
		opts = append(opts, jws.WithCriticalParameters(j.CriticalParameters...))
	}
	return opts
}

// KeyAlgorithms returns the key management allow-list.
func (j JWE) KeyAlgorithms() jwa.AllowedAlgorithms {
	return jwa.NewAllowedAlgorithms(j.AllowedKeyAlgorithms...)
}

// ContentAlgorithms returns the content encryption allow-list.
func (j JWE) ContentAlgorithms() jwa.AllowedAlgorithms {
	return jwa.NewAllowedAlgorithms(j.AllowedContentAlgorithms...)
}

// Options returns the decryption options implied by the policy.
func (j JWE) Options() []jwe.DecryptOption {
	if len(j.CriticalParameters) == 0 {
		return nil
	}
	return []jwe.DecryptOption{jwe.WithCriticalParameters(j.CriticalParameters...)}
}

// Registry returns a registry holding only the enabled methods, bounded by
// the configured decompressed size.
func (c Compression) Registry() (*compression.Registry, error) {
	known := compression.Default()

	methods := make([]compression.Method, 0, len(c.Methods))
	for _, name := range c.Methods {
		m, err := known.Get(name)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}

	return compression.NewRegistry(methods, compression.WithMaxSize(c.MaxDecompressedSize)), nil
}
