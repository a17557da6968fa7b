package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/picatz/joseloader/internal/config"
	"github.com/picatz/joseloader/pkg/jwk"
	"github.com/picatz/joseloader/pkg/keyutil"
	"github.com/picatz/joseloader/pkg/loader"
)

const fetchTimeout = 10 * time.Second

// remoteKeys caches JWK sets fetched over HTTP, so a URL given more than
// once is fetched once.
var remoteKeys = jwk.NewURLSetCache(http.DefaultClient, jwk.DefaultURLSetCacheSize, 5*time.Minute)

// policyParams are the flags shared by every subcommand.
type policyParams struct {
	configFile string
	logLevel   string
	logFormat  string
}

func addPolicyFlags(fs *pflag.FlagSet, p *policyParams) {
	addConfigFlag(fs, &p.configFile)
	addLogLevelFlag(fs, &p.logLevel)
	addLogFormatFlag(fs, &p.logFormat)
}

// policy loads the policy file, if any, and applies flag overrides.
func (p policyParams) policy() (*config.Config, error) {
	cfg := config.Default()
	if p.configFile != "" {
		var err error
		cfg, err = config.Load(p.configFile)
		if err != nil {
			return nil, err
		}
	}

	if p.logLevel != "" {
		cfg.Logging.Level = p.logLevel
	}
	if p.logFormat != "" {
		cfg.Logging.Format = p.logFormat
	}

	return cfg, nil
}

// newLoader builds a loader from the policy, logging to w.
func newLoader(cfg *config.Config, w io.Writer) (*loader.Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.Logging.Logger(w)
	if err != nil {
		return nil, err
	}

	registry, err := cfg.Compression.Registry()
	if err != nil {
		return nil, err
	}

	return loader.New(loader.WithLogger(logger), loader.WithCompression(registry))
}

// readInput reads the named file, or stdin for "-".
func readInput(name string, stdin io.Reader) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return data, nil
}

// loadKeys gathers every key from the given sources, in order.
func loadKeys(ctx context.Context, locations []string) (*jwk.Set, error) {
	set := jwk.NewSet()

	for _, location := range locations {
		keys, err := loadKeySource(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("failed to load keys from %q: %w", location, err)
		}
		set.Add(keys...)
	}

	return set, nil
}

func loadKeySource(ctx context.Context, location string) ([]jwk.Value, error) {
	if strings.HasPrefix(location, "https://") || strings.HasPrefix(location, "http://") {
		ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()

		set, err := remoteKeys.Get(ctx, location)
		if err != nil {
			return nil, err
		}
		return set.Keys, nil
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return nil, err
	}

	if bytes.Contains(data, []byte("-----BEGIN ")) {
		return keyutil.ParsePEM(bytes.NewReader(data))
	}

	set, err := jwk.DecodeSet(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return set.Keys, nil
}

func firstNonEmpty(override, fallback []string) []string {
	if len(override) > 0 {
		return override
	}
	return fallback
}
