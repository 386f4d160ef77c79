package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twinforge/ditto-bulk/pkg/bulk"
)

// DeleteCmd returns the delete command.
func DeleteCmd() *cobra.Command {
	var (
		maxCount      int
		pageSize      int
		maxConcurrent int
		noRetry       bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete things in bulk",
		Long: `Delete things from the Ditto instance in parallel.

The full id set is collected first through the paginated search, then
deletions fan out under the concurrency ceiling. Failed deletions are
retried in rounds unless --no-retry is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, c, err := setup()
			if err != nil {
				return err
			}
			defer c.Close()

			if pageSize <= 0 {
				pageSize = cfg.PageSize
			}
			if maxConcurrent <= 0 {
				maxConcurrent = cfg.MaxConcurrent
			}

			summary := bulk.DeleteThings(cmd.Context(), c, c, bulk.DeleteOptions{
				PageSize:      pageSize,
				MaxConcurrent: maxConcurrent,
				MaxCount:      maxCount,
				EnableRetry:   !noRetry,
				MaxRetries:    cfg.MaxRetries,
				Reporter:      consoleReporter(),
			})

			printDeleteSummary(summary)
			if !summary.Success {
				return fmt.Errorf("%d things could not be deleted", len(summary.PermanentlyFailed))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxCount, "count", 0, "Delete at most this many things (0 = all)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Search page size (default from BULK_PAGE_SIZE)")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Concurrency ceiling (default from BULK_MAX_CONCURRENT)")
	cmd.Flags().BoolVar(&noRetry, "no-retry", false, "Do not retry failed deletions")

	return cmd
}

func printDeleteSummary(summary bulk.FinalSummary) {
	fmt.Println()
	fmt.Printf("Total things found:   %d\n", summary.TotalFound)
	okColor.Printf("Successfully deleted: %d\n", summary.Succeeded)

	if len(summary.RetrySucceeded) > 0 {
		warnColor.Printf("Deleted on retry:     %d\n", len(summary.RetrySucceeded))
	}
	if len(summary.PermanentlyFailed) > 0 {
		failColor.Printf("Failed after retries: %d\n", len(summary.PermanentlyFailed))
		for _, id := range summary.PermanentlyFailed {
			failColor.Printf("  - %s\n", id)
		}
		return
	}
	okColor.Println("All things successfully processed.")
}
