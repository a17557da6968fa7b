// Package cmd implements the jose command line.
package cmd

import (
	"os"
	"path"

	"github.com/spf13/cobra"
)

// RootCommand is the base CLI command that all subcommands are added to.
var RootCommand = &cobra.Command{
	Use:   path.Base(os.Args[0]),
	Short: "Load, verify and decrypt JOSE tokens",
	Long: `Load, verify and decrypt JOSE tokens.

Tokens may be given in the compact, flattened JSON or general JSON
serialization. Signed tokens (JWS) and encrypted tokens (JWE) are told
apart automatically.`,
	SilenceUsage: true,
}
