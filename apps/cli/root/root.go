package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the CalmHaven admin CLI. Subcommands
// (auth, bootstrap) are attached here.
var rootCmd = &cobra.Command{
	Use:           "calmhaven",
	Short:         "CalmHaven admin CLI",
	Long:          "Administrative utilities for CalmHaven (dev tokens, schema bootstrap, profile repair, counter reconciliation).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
