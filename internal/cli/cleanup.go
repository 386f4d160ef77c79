package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/twinforge/ditto-bulk/pkg/cleanup"
)

// CleanupCmd returns the cleanup command.
func CleanupCmd() *cobra.Command {
	var (
		policies []string
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete all things, named policies, and connections",
		Long: `Wipe the Ditto instance: delete every thing, the policies named via
--policy or CLEANUP_POLICY_IDS, and every listable connection.

Ditto has no policy listing endpoint, so only named policies are removed.
Deployments without the connections endpoint skip that step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm("This will delete ALL things from Ditto. Continue? (yes/no): ") {
				fmt.Println("Cleanup cancelled.")
				return nil
			}

			cfg, c, err := setup()
			if err != nil {
				return err
			}
			defer c.Close()

			if len(policies) == 0 {
				policies = cfg.CleanupPolicies()
			}

			summary := cleanup.Run(cmd.Context(), c, cleanup.Options{
				PageSize:      cfg.PageSize,
				MaxConcurrent: cfg.MaxConcurrent,
				Policies:      policies,
				Reporter:      consoleReporter(),
			})

			printCleanupSummary(summary)
			if !summary.Success {
				return fmt.Errorf("cleanup finished with failures")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&policies, "policy", nil, "Policy id to delete (repeatable; default from CLEANUP_POLICY_IDS)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "yes" || answer == "y"
}

func printCleanupSummary(summary cleanup.Summary) {
	fmt.Println()
	okColor.Printf("Things deleted:      %d\n", summary.Things.Succeeded)
	okColor.Printf("Policies deleted:    %d\n", len(summary.PoliciesDeleted))
	okColor.Printf("Connections deleted: %d\n", len(summary.ConnectionsDeleted))

	if len(summary.Things.PermanentlyFailed) > 0 {
		failColor.Printf("Things not deleted:  %d\n", len(summary.Things.PermanentlyFailed))
	}
	if len(summary.PoliciesFailed) > 0 {
		failColor.Printf("Policies not deleted: %s\n", strings.Join(summary.PoliciesFailed, ", "))
	}
	if len(summary.ConnectionsFailed) > 0 {
		failColor.Printf("Connections not deleted: %s\n", strings.Join(summary.ConnectionsFailed, ", "))
	}
	if summary.Success {
		okColor.Println("Ditto cleanup completed.")
	}
}
