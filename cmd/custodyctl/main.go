// Command custodyctl is the operator tool: schema migrations, database
// maintenance and offline wallet verification.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "custodyctl",
		Short:        "Operator tool for the split-key custody service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newMigrateCmd(&logLevel),
		newMaintenanceCmd(&logLevel),
		newVerifyWalletCmd(&logLevel),
	)
	return root
}
