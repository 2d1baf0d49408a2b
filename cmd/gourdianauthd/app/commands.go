// Package app provides the command-line interface of gourdianauthd.
package app

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix prefixes every environment variable read by the daemon, e.g.
// GOURDIANAUTH_SIGNING_SECRET.
const envPrefix = "GOURDIANAUTH"

// NewRootCmd creates the root command with its subcommands.
func NewRootCmd() *cobra.Command {
	v := newViper()

	rootCmd := &cobra.Command{
		Use:          "gourdianauthd",
		Short:        "gourdianauthd issues and validates access and refresh tokens",
		SilenceUsage: true,
		Long: `gourdianauthd issues opaque refresh tokens, exchanges them for short-lived
HS256 access tokens and validates those tokens for protected endpoints.

Settings come from flags, GOURDIANAUTH_* environment variables and an
optional config file (YAML, TOML or JSON), in that order of precedence.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(keyConfig, "", "Path to a config file")
	flags.Bool(keyDebug, false, "Enable debug logging")
	mustBind(v, keyConfig, flags.Lookup(keyConfig))
	mustBind(v, keyDebug, flags.Lookup(keyDebug))

	rootCmd.AddCommand(newServeCmd(v))

	return rootCmd
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}
