package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twinforge/ditto-bulk/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ditto-bulk",
		Short: "Bulk operations for Eclipse Ditto",
		Long: `ditto-bulk runs bulk operations against an Eclipse Ditto instance:
parallel deletion of things, fleet provisioning from schema files, and
full instance cleanup.

Connection settings come from the environment (DITTO_API_BASE,
DITTO_USERNAME, DITTO_PASSWORD).`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.DeleteCmd())
	rootCmd.AddCommand(cli.SpawnCmd())
	rootCmd.AddCommand(cli.CleanupCmd())
	rootCmd.AddCommand(cli.CountCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
