package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/twinforge/ditto-bulk/pkg/fleet"
)

// SpawnCmd returns the spawn command.
func SpawnCmd() *cobra.Command {
	var (
		schemaPath    string
		policyPath    string
		count         int
		maxConcurrent int
		interval      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Spawn a fleet of generated things",
		Long: `Create a policy and a fleet of things generated from a schema file.

The schema is either a literal thing template (attributes + features,
where arrays act as value choice sets) or a JSON Schema whose samples
become thing payloads. All spawned things share the policy from
--policy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, c, err := setup()
			if err != nil {
				return err
			}
			defer c.Close()

			if maxConcurrent <= 0 {
				maxConcurrent = cfg.MaxConcurrent
			}

			summary, err := fleet.Spawn(cmd.Context(), c, fleet.SpawnOptions{
				SchemaPath:    schemaPath,
				PolicyPath:    policyPath,
				Count:         count,
				MaxConcurrent: maxConcurrent,
				Interval:      interval,
				Reporter:      consoleReporter(),
			})
			if err != nil {
				return err
			}

			printSpawnSummary(summary)
			if !summary.Success {
				return fmt.Errorf("%d things could not be created", len(summary.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "Path to a thing template or JSON Schema (required)")
	cmd.Flags().StringVar(&policyPath, "policy", "", "Path to the shared policy document (required)")
	cmd.Flags().IntVar(&count, "count", 1, "Number of things to create")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Concurrency ceiling (default from BULK_MAX_CONCURRENT)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between creations, e.g. 500ms")
	cmd.MarkFlagRequired("schema")
	cmd.MarkFlagRequired("policy")

	return cmd
}

func printSpawnSummary(summary fleet.SpawnSummary) {
	fmt.Println()
	fmt.Printf("Things requested:     %d\n", summary.Requested)
	okColor.Printf("Successfully created: %d\n", summary.Created)

	if len(summary.Failed) > 0 {
		failColor.Printf("Failed to create:     %d\n", len(summary.Failed))
		for _, id := range summary.Failed {
			failColor.Printf("  - %s\n", id)
		}
		return
	}
	okColor.Println("Fleet fully provisioned.")
}
