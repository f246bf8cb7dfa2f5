// Package auth holds CLI helpers for local authentication.
package auth

import (
	"github.com/spf13/cobra"
)

// Command groups the auth subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers (dev tokens)",
	}

	cmd.AddCommand(devTokenCommand())
	return cmd
}
