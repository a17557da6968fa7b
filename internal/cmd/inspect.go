package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/picatz/joseloader/pkg/loader"
)

type inspectCommandParams struct {
	policy       policyParams
	outputFormat string
}

func newInspectCommandParams() inspectCommandParams {
	return inspectCommandParams{outputFormat: outputGeneral}
}

func (p *inspectCommandParams) validate() error {
	switch p.outputFormat {
	case outputGeneral, outputFlattened, outputCompact:
		return nil
	default:
		return fmt.Errorf("invalid output format %q (want %s, %s or %s)", p.outputFormat, outputGeneral, outputFlattened, outputCompact)
	}
}

// serializable is satisfied by both canonical token types.
type serializable interface {
	loader.Token
	Flattened() ([]byte, error)
	Compact() (string, error)
}

func init() {
	params := newInspectCommandParams()

	var inspectCommand = &cobra.Command{
		Use:   "inspect <path|->",
		Short: "Print a token in a chosen serialization",
		Long: `Print a token in a chosen serialization.

The 'inspect' command reads a JWS or JWE in any serialization and prints it in
the canonical general JSON form. No key is needed and nothing is verified.

	$ jose inspect token.txt
	$ cat token.json | jose inspect -

Use --format to convert the token to the flattened JSON or compact
serialization instead. Conversion fails when the token cannot be represented
in that form, for example a JWS with more than one signature.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return params.validate()
		},
		Run: func(cmd *cobra.Command, args []string) {
			if err := doInspect(params, args[0], cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				os.Exit(1)
			}
		},
	}

	addPolicyFlags(inspectCommand.Flags(), &params.policy)
	addOutputFormatFlag(inspectCommand.Flags(), &params.outputFormat, outputGeneral)

	RootCommand.AddCommand(inspectCommand)
}

func doInspect(params inspectCommandParams, name string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := params.policy.policy()
	if err != nil {
		return err
	}

	l, err := newLoader(cfg, stderr)
	if err != nil {
		return err
	}

	input, err := readInput(name, stdin)
	if err != nil {
		return err
	}

	token, err := l.Load(input)
	if err != nil {
		return err
	}

	t, ok := token.(serializable)
	if !ok {
		return fmt.Errorf("cannot serialize a %s", token.Kind())
	}

	switch params.outputFormat {
	case outputCompact:
		s, err := t.Compact()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, s)
		return err
	case outputFlattened:
		b, err := t.Flattened()
		if err != nil {
			return err
		}
		return writeIndented(stdout, b)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to encode token: %w", err)
		}
		return writeIndented(stdout, b)
	}
}

func writeIndented(w io.Writer, b []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
