// Package cmd provides the CLI commands for agentvault.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentvault/agentvault/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agentvault",
	Short: "agentvault - transaction authorization policy engine",
	Long: `agentvault is the policy decision point for autonomous-agent wallets.

It evaluates proposed Solana transactions against per-wallet policies
(spending limits, program and token allowlists, address blocklists) and
returns allow, deny, or require_approval.

Quick start:
  1. Create a config file: agentvault.yaml
  2. Run: agentvault serve

Configuration:
  Config is loaded from agentvault.yaml in the current directory,
  $HOME/.agentvault/, or /etc/agentvault/.

  Environment variables can override config values with the AGENTVAULT_ prefix.
  Example: AGENTVAULT_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the policy engine server
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./agentvault.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
