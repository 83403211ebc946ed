// Package cmd defines the CLI commands of the hltv-sync executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hltv-sync",
		Short: "Crawl-and-sync engine for HLTV events, teams and players.",
		Long: `hltv-sync keeps a relational mirror of HLTV entities up to date.
It loads pages through anti-detection browser sessions, extracts typed
records from unstable markup, and reconciles them into Postgres with
checkpointed, resumable runs.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env overrides use the HLTVSYNC_ prefix)")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newReplayCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
