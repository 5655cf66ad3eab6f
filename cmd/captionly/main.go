package main

import (
	"os"

	"github.com/spf13/cobra"

	"captionly/internal/interfaces/cli/migrate"
	"captionly/internal/interfaces/cli/server"
)

// @title Captionly Entitlement API
// @version 1.0
// @description Subscription tiers and generation quota for the Captionly caption service.
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	rootCmd := &cobra.Command{
		Use:   "captionly",
		Short: "Captionly entitlement service",
		Long:  `Captionly's entitlement service: subscription tiers, generation quota, and billing provider reconciliation.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
