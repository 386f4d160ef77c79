// Package cleanup wipes a Ditto instance: all things, the policies named
// by the caller, and every listable connection.
package cleanup

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/twinforge/ditto-bulk/pkg/bulk"
	"github.com/twinforge/ditto-bulk/pkg/progress"
)

// Client is the slice of the Ditto API cleanup needs.
type Client interface {
	bulk.PageSource
	bulk.ThingDeleter
	DeletePolicy(ctx context.Context, policyID string) error
	ListConnections(ctx context.Context) ([]string, error)
	DeleteConnection(ctx context.Context, connectionID string) error
}

// Options configures a cleanup run.
type Options struct {
	// PageSize is the search page size for the thing sweep.
	PageSize int

	// MaxConcurrent caps in-flight deletions.
	MaxConcurrent int

	// Policies are the policy ids to delete after the things are gone.
	// Ditto has no policy listing endpoint, so the caller names them.
	Policies []string

	// Reporter receives progress ticks. Nil disables progress output.
	Reporter progress.Reporter
}

// Summary reports what a cleanup run removed.
type Summary struct {
	Things             bulk.FinalSummary
	PoliciesDeleted    []string
	PoliciesFailed     []string
	ConnectionsDeleted []string
	ConnectionsFailed  []string
	Success            bool
}

// Run deletes all things with retries, then the named policies, then all
// connections the instance can list. Policy and connection failures are
// recorded but do not stop the sweep; not every deployment exposes the
// connections endpoint.
func Run(ctx context.Context, client Client, opts Options) Summary {
	summary := Summary{}

	log.Info().Msg("Starting Ditto cleanup")

	summary.Things = bulk.DeleteThings(ctx, client, client, bulk.DeleteOptions{
		PageSize:      opts.PageSize,
		MaxConcurrent: opts.MaxConcurrent,
		EnableRetry:   true,
		Reporter:      opts.Reporter,
	})

	for _, policyID := range opts.Policies {
		if policyID == "" {
			continue
		}
		if err := client.DeletePolicy(ctx, policyID); err != nil {
			log.Warn().Err(err).Str("policy_id", policyID).Msg("Failed to delete policy")
			summary.PoliciesFailed = append(summary.PoliciesFailed, policyID)
			continue
		}
		log.Info().Str("policy_id", policyID).Msg("Deleted policy")
		summary.PoliciesDeleted = append(summary.PoliciesDeleted, policyID)
	}

	connections, err := client.ListConnections(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Could not list connections - skipping connection cleanup")
	}
	for _, connectionID := range connections {
		if err := client.DeleteConnection(ctx, connectionID); err != nil {
			log.Warn().Err(err).Str("connection_id", connectionID).Msg("Failed to delete connection")
			summary.ConnectionsFailed = append(summary.ConnectionsFailed, connectionID)
			continue
		}
		log.Info().Str("connection_id", connectionID).Msg("Deleted connection")
		summary.ConnectionsDeleted = append(summary.ConnectionsDeleted, connectionID)
	}

	summary.Success = summary.Things.Success &&
		len(summary.PoliciesFailed) == 0 &&
		len(summary.ConnectionsFailed) == 0

	log.Info().
		Int("things_deleted", summary.Things.Succeeded).
		Int("policies_deleted", len(summary.PoliciesDeleted)).
		Int("connections_deleted", len(summary.ConnectionsDeleted)).
		Bool("success", summary.Success).
		Msg("Cleanup finished")

	return summary
}
