package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/picatz/joseloader/pkg/jws"
)

type verifyCommandParams struct {
	policy       policyParams
	jwks         []string
	algorithms   []string
	detached     string
	outputFormat string
}

func newVerifyCommandParams() verifyCommandParams {
	return verifyCommandParams{outputFormat: outputRaw}
}

func (p *verifyCommandParams) validate() error {
	if len(p.jwks) == 0 {
		return fmt.Errorf("at least one --jwks key source is required")
	}
	switch p.outputFormat {
	case outputRaw, outputJSON:
		return nil
	default:
		return fmt.Errorf("invalid output format %q (want %s or %s)", p.outputFormat, outputRaw, outputJSON)
	}
}

// verifyOutput is written for --format=json.
type verifyOutput struct {
	Index   int        `json:"index"`
	Header  jws.Header `json:"header"`
	Payload []byte     `json:"payload"`
}

func init() {
	params := newVerifyCommandParams()

	var verifyCommand = &cobra.Command{
		Use:   "verify <path|->",
		Short: "Verify a JWS and print its payload",
		Long: `Verify a JWS and print its payload.

The 'verify' command reads a JWS in any serialization, tries every signature
against every candidate key and prints the payload of the first signature that
verifies. Signatures using an algorithm outside the allow-list are skipped.

	$ jose verify --jwks keys.json token.txt
	$ jose verify --jwks https://example.com/.well-known/jwks.json --alg ES256 token.txt
	$ jose verify --jwks public.pem --detached payload.bin token.txt

Keys may come from a JWK or JWK set file, a PEM file (public keys, private
keys or certificates) or an http(s) URL serving a JWK set. PEM keys are given
their RFC 7638 thumbprint as key ID.

Use --format=json to print the index of the matching signature and its header
along with the payload.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return params.validate()
		},
		Run: func(cmd *cobra.Command, args []string) {
			if err := doVerify(cmd.Context(), params, args[0], cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				os.Exit(1)
			}
		},
	}

	addPolicyFlags(verifyCommand.Flags(), &params.policy)
	addJWKSFlag(verifyCommand.Flags(), &params.jwks)
	addAlgorithmFlag(verifyCommand.Flags(), &params.algorithms)
	addDetachedFlag(verifyCommand.Flags(), &params.detached)
	addOutputFormatFlag(verifyCommand.Flags(), &params.outputFormat, outputRaw)

	RootCommand.AddCommand(verifyCommand)
}

func doVerify(ctx context.Context, params verifyCommandParams, name string, stdin io.Reader, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := params.policy.policy()
	if err != nil {
		return err
	}
	cfg.JWS.AllowedAlgorithms = firstNonEmpty(params.algorithms, cfg.JWS.AllowedAlgorithms)

	l, err := newLoader(cfg, stderr)
	if err != nil {
		return err
	}

	keys, err := loadKeys(ctx, params.jwks)
	if err != nil {
		return err
	}

	input, err := readInput(name, stdin)
	if err != nil {
		return err
	}

	opts := cfg.JWS.Options()
	if params.detached != "" {
		payload, err := os.ReadFile(params.detached)
		if err != nil {
			return fmt.Errorf("failed to read detached payload: %w", err)
		}
		opts = append(opts, jws.WithDetachedPayload(payload))
	}

	_, result, err := l.LoadAndVerify(input, keys, cfg.JWS.Allowed(), opts...)
	if err != nil {
		return err
	}

	if params.outputFormat == outputJSON {
		b, err := json.Marshal(verifyOutput{
			Index:   result.Index,
			Header:  result.Header,
			Payload: result.Payload,
		})
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		return writeIndented(stdout, b)
	}

	_, err = stdout.Write(result.Payload)
	return err
}
