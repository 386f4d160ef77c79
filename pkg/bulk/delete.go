package bulk

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/twinforge/ditto-bulk/pkg/progress"
)

// ThingDeleter deletes a single thing. Deleting an id that is already
// gone must succeed (idempotent delete).
type ThingDeleter interface {
	DeleteThing(ctx context.Context, thingID string) error
}

// DeleteOptions configures a bulk deletion run.
type DeleteOptions struct {
	// PageSize is the search page size (default 200).
	PageSize int

	// MaxConcurrent caps in-flight deletions (default 20).
	MaxConcurrent int

	// MaxCount limits how many things are deleted. Zero deletes all.
	MaxCount int

	// EnableRetry re-attempts failed deletions (default behavior of the
	// CLI; callers constructing options directly must opt in).
	EnableRetry bool

	// MaxRetries is the number of retry rounds when EnableRetry is set
	// (default 3).
	MaxRetries int

	// RoundDelay is an optional pause between retry rounds.
	RoundDelay time.Duration

	// Reporter receives progress ticks. Nil disables progress output.
	Reporter progress.Reporter
}

// DeleteThings deletes things in bulk: it snapshots the id set through the
// paginated search, then fans out deletions under the concurrency ceiling
// with retry rounds over failures.
func DeleteThings(ctx context.Context, source PageSource, deleter ThingDeleter, opts DeleteOptions) FinalSummary {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	ids := CollectThingIDs(ctx, source, CollectOptions{
		PageSize: opts.PageSize,
		MaxCount: opts.MaxCount,
	}, opts.Reporter)

	log.Info().Int("total_found", len(ids)).Msg("Finished collecting ids")

	if len(ids) == 0 {
		log.Info().Msg("No things found to delete")
		return FinalSummary{Success: true}
	}

	maxRetries := 0
	if opts.EnableRetry {
		maxRetries = opts.MaxRetries
	}

	executor := NewExecutor(ExecutorConfig{MaxConcurrent: opts.MaxConcurrent})
	coordinator := NewCoordinator(executor, CoordinatorConfig{
		MaxRetries: maxRetries,
		RoundDelay: opts.RoundDelay,
		Label:      "Deleting",
	})

	summary := coordinator.Run(ctx, ids, deleter.DeleteThing, opts.Reporter)
	logDeletionSummary(summary)
	return summary
}

func logDeletionSummary(summary FinalSummary) {
	log.Info().
		Int("total_found", summary.TotalFound).
		Int("deleted", summary.Succeeded).
		Msg("Deletion summary")

	if len(summary.RetrySucceeded) > 0 {
		log.Info().
			Strs("thing_ids", summary.RetrySucceeded).
			Msg("Deleted on retry")
	}

	if len(summary.PermanentlyFailed) > 0 {
		log.Warn().
			Strs("thing_ids", summary.PermanentlyFailed).
			Msg("Failed to delete after all retries")
	} else {
		log.Info().Msg("All things successfully processed for deletion")
	}
}
