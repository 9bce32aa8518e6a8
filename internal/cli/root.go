// Package cli implements the spotd command line: the API server, the
// one-shot deadline sweep, the notification consumer and a dev token
// minter.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand creates the spotd root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spotd",
		Short: "Comedy spot confirmation and deadline tracking",
		Long: `spotd tracks whether comedians have confirmed the spots they were
invited to, expires invitations whose deadline passed and reminds
comedians before that happens.

Configuration comes from the environment (and an optional .env file).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewSweepCommand())
	cmd.AddCommand(NewConsumeCommand())
	cmd.AddCommand(NewTokenCommand())

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "spotd:", err)
		os.Exit(1)
	}
}
