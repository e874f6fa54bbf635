// Command phishdrill runs the phishing awareness exercise: an HTTP API, an
// MCP server for editor assistants, and maintenance commands.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/phishdrill/internal/daemon"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	daemon.Version = Version
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "phishdrill",
		Short:         "Adaptive phishing awareness training",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "Config file (default ~/.phishdrill/config.yaml)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-format", "", "Log format (text, json)")

	root.AddCommand(
		serveCmd(),
		migrateCmd(),
		mcpCmd(),
		providersCmd(),
		statsCmd(),
		pruneCmd(),
	)
	return root
}

// viperForCmd binds a command's flags and PHISHDRILL_* environment to a
// fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.InheritedFlags())

	v.SetEnvPrefix("PHISHDRILL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}
