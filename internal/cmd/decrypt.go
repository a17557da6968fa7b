package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/picatz/joseloader/pkg/jwe"
)

type decryptCommandParams struct {
	policy            policyParams
	jwks              []string
	keyAlgorithms     []string
	contentAlgorithms []string
	outputFormat      string
}

func newDecryptCommandParams() decryptCommandParams {
	return decryptCommandParams{outputFormat: outputRaw}
}

func (p *decryptCommandParams) validate() error {
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

type decryptOutput struct {
	Index     int        `json:"index"`
	Header    jwe.Header `json:"header"`
	Plaintext []byte     `json:"plaintext"`
}

func init() {
	params := newDecryptCommandParams()

	var decryptCommand = &cobra.Command{
		Use:   "decrypt <path|->",
		Short: "Decrypt a JWE and print its plaintext",
		Long: `Decrypt a JWE and print its plaintext.

The 'decrypt' command reads a JWE in any serialization, tries every recipient
against every candidate key and prints the plaintext of the first recipient
that decrypts and authenticates. Recipients using a key management or content
encryption algorithm outside the allow-lists are skipped.

	$ jose decrypt --jwks private.json token.txt
	$ jose decrypt --jwks private.pem --key-alg RSA-OAEP-256 --enc A256GCM token.json

Compressed plaintext ("zip" in the protected header) is inflated after it has
been authenticated, using the methods enabled in the policy file.

Use --format=json to print the index of the matching recipient and its header
along with the plaintext.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return params.validate()
		},
		Run: func(cmd *cobra.Command, args []string) {
			if err := doDecrypt(cmd.Context(), params, args[0], cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				os.Exit(1)
			}
		},
	}

	addPolicyFlags(decryptCommand.Flags(), &params.policy)
	addJWKSFlag(decryptCommand.Flags(), &params.jwks)
	addKeyAlgorithmFlag(decryptCommand.Flags(), &params.keyAlgorithms)
	addContentAlgorithmFlag(decryptCommand.Flags(), &params.contentAlgorithms)
	addOutputFormatFlag(decryptCommand.Flags(), &params.outputFormat, outputRaw)

	RootCommand.AddCommand(decryptCommand)
}

func doDecrypt(ctx context.Context, params decryptCommandParams, name string, stdin io.Reader, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := params.policy.policy()
	if err != nil {
		return err
	}
	cfg.JWE.AllowedKeyAlgorithms = firstNonEmpty(params.keyAlgorithms, cfg.JWE.AllowedKeyAlgorithms)
	cfg.JWE.AllowedContentAlgorithms = firstNonEmpty(params.contentAlgorithms, cfg.JWE.AllowedContentAlgorithms)

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

	_, result, err := l.LoadAndDecrypt(input, keys, cfg.JWE.KeyAlgorithms(), cfg.JWE.ContentAlgorithms(), cfg.JWE.Options()...)
	if err != nil {
		return err
	}

	if params.outputFormat == outputJSON {
		b, err := json.Marshal(decryptOutput{
			Index:     result.Index,
			Header:    result.Header,
			Plaintext: result.Plaintext,
		})
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		return writeIndented(stdout, b)
	}

	_, err = stdout.Write(result.Plaintext)
	return err
}
