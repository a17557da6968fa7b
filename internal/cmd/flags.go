package cmd

import (
	"github.com/spf13/pflag"
)

const (
	outputGeneral   = "general"
	outputFlattened = "flattened"
	outputCompact   = "compact"

	outputRaw  = "raw"
	outputJSON = "json"
)

func addConfigFlag(fs *pflag.FlagSet, file *string) {
	fs.StringVarP(file, "config-file", "c", "", "set path of the YAML policy file")
}

func addLogLevelFlag(fs *pflag.FlagSet, level *string) {
	fs.StringVarP(level, "log-level", "l", "", "set log level (error, warn, info, debug), overriding the policy file")
}

func addLogFormatFlag(fs *pflag.FlagSet, format *string) {
	fs.StringVar(format, "log-format", "", "set log format (text, json, json-pretty), overriding the policy file")
}

func addJWKSFlag(fs *pflag.FlagSet, locations *[]string) {
	fs.StringSliceVarP(locations, "jwks", "k", []string{}, "set a key source: a JWK or JWK set file, a PEM file or an http(s) URL serving a JWK set (repeatable)")
}

func addAlgorithmFlag(fs *pflag.FlagSet, algs *[]string) {
	fs.StringSliceVar(algs, "alg", []string{}, "set the allowed signature algorithms, overriding the policy file")
}

func addKeyAlgorithmFlag(fs *pflag.FlagSet, algs *[]string) {
	fs.StringSliceVar(algs, "key-alg", []string{}, "set the allowed key management algorithms, overriding the policy file")
}

func addContentAlgorithmFlag(fs *pflag.FlagSet, encs *[]string) {
	fs.StringSliceVar(encs, "enc", []string{}, "set the allowed content encryption algorithms, overriding the policy file")
}

func addDetachedFlag(fs *pflag.FlagSet, file *string) {
	fs.StringVar(file, "detached", "", "set path of the detached payload")
}

func addOutputFormatFlag(fs *pflag.FlagSet, format *string, value string) {
	fs.StringVarP(format, "format", "f", value, "set output format")
}
