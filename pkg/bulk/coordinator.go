package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/twinforge/ditto-bulk/pkg/progress"
)

// CoordinatorConfig configures retry rounds over failed items.
type CoordinatorConfig struct {
	// MaxRetries is the number of retry rounds after the initial pass
	// (default 3). Zero disables retries.
	MaxRetries int

	// RoundDelay is an optional pause between retry rounds. The observed
	// upstream behavior retries immediately; a delay is opt-in.
	RoundDelay time.Duration

	// Label names the operation in progress output, e.g. "Deleting".
	Label string
}

// Coordinator runs an initial fan-out pass and then re-attempts the failed
// subset, round by round, until everything succeeded or the rounds are
// exhausted. Each round only ever operates on the previous round's
// failures, so the failing set shrinks or stabilizes.
type Coordinator struct {
	executor *Executor
	config   CoordinatorConfig
	logger   zerolog.Logger
}

// NewCoordinator creates a coordinator around an executor.
func NewCoordinator(executor *Executor, config CoordinatorConfig) *Coordinator {
	if config.Label == "" {
		config.Label = "Processing"
	}
	return &Coordinator{
		executor: executor,
		config:   config,
		logger:   log.With().Str("component", "bulk-retry").Logger(),
	}
}

// Run executes op over ids with retry rounds and returns the final
// partition. Ids that fail the first pass but succeed later are listed in
// RetrySucceeded; ids that fail every round end up in PermanentlyFailed.
func (c *Coordinator) Run(ctx context.Context, ids []string, op Operation, reporter progress.Reporter) FinalSummary {
	if reporter == nil {
		reporter = progress.Nop()
	}

	reporter.Start(c.config.Label, len(ids))
	first := c.executor.Run(ctx, ids, op, reporter)
	reporter.Done()

	summary := FinalSummary{
		TotalFound: len(ids),
		Succeeded:  len(first.Succeeded),
		Rounds:     1,
	}

	failed := first.Failed
	if len(failed) == 0 {
		// Zero-failure fast path: no retry rounds at all.
		summary.Success = true
		return summary
	}

	if c.config.MaxRetries > 0 {
		c.logger.Info().
			Int("failed", len(failed)).
			Int("max_retries", c.config.MaxRetries).
			Msg("Retrying failed operations")
	}

	for attempt := 1; attempt <= c.config.MaxRetries && len(failed) > 0; attempt++ {
		if c.config.RoundDelay > 0 {
			select {
			case <-ctx.Done():
				summary.PermanentlyFailed = failed
				return summary
			case <-time.After(c.config.RoundDelay):
			}
		}

		c.logger.Info().
			Int("round", attempt).
			Int("remaining", len(failed)).
			Msg("Retry round starting")

		reporter.Start(fmt.Sprintf("Retry %d", attempt), len(failed))
		round := c.executor.Run(ctx, failed, op, reporter)
		reporter.Done()
		summary.Rounds++

		for _, id := range round.Succeeded {
			summary.RetrySucceeded = append(summary.RetrySucceeded, id)
			summary.Succeeded++
			c.logger.Info().
				Str("thing_id", id).
				Int("round", attempt).
				Msg("Succeeded on retry")
		}

		failed = round.Failed
		if len(failed) > 0 {
			c.logger.Warn().
				Int("round", attempt).
				Int("still_failing", len(failed)).
				Msg("Items still failing after retry round")
		} else {
			c.logger.Info().
				Int("round", attempt).
				Msg("All remaining items succeeded on retry")
		}
	}

	summary.PermanentlyFailed = failed
	summary.Success = len(failed) == 0
	return summary
}
