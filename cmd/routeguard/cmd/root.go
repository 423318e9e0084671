// Package cmd provides the CLI commands for RouteGuard.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/routeguard/routeguard/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "routeguard",
	Short: "RouteGuard - URL authorization policy resolution",
	Long: `RouteGuard resolves, for a (method, path, caller) tuple, whether the
caller is permitted to proceed, by matching the request against a set of
authorization rules and applying a configurable lockdown posture for
requests no rule covers.

Configuration:
  Config is loaded from routeguard.yaml in the current directory,
  $HOME/.routeguard/, or /etc/routeguard/.

  Environment variables can override config values with the ROUTEGUARD_
  prefix. Example: ROUTEGUARD_SECURITY_REJECT_IF_NO_RULE=false

Commands:
  check       Resolve a single request and print the decision
  rules       Inspect and import authorization rules
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./routeguard.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
