package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CountCmd returns the count command.
func CountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count things in the search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := setup()
			if err != nil {
				return err
			}
			defer c.Close()

			count, err := c.CountThings(cmd.Context())
			if err != nil {
				return fmt.Errorf("count things: %w", err)
			}
			fmt.Println(count)
			return nil
		},
	}
}
