package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/twinforge/ditto-bulk/pkg/pacing"
	"github.com/twinforge/ditto-bulk/pkg/progress"
)

// Operation performs one unit of work for one thing id. A nil return is
// success; any error marks the id as failed for this round.
type Operation func(ctx context.Context, thingID string) error

// ExecutorConfig holds fan-out configuration.
type ExecutorConfig struct {
	// MaxConcurrent is the hard ceiling on in-flight operations (default 20).
	MaxConcurrent int

	// ItemTimeout caps each individual operation (default 60s).
	ItemTimeout time.Duration

	// Pacer optionally gates operation starts. Nil means no pacing.
	Pacer pacing.Pacer
}

// DefaultExecutorConfig returns safe defaults for a local Ditto instance.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent: 20,
		ItemTimeout:   60 * time.Second,
	}
}

// Executor runs one operation per thing id concurrently, never exceeding
// the configured ceiling. Items are independent: one failure never cancels
// or blocks the others.
type Executor struct {
	config ExecutorConfig
	logger zerolog.Logger
}

// NewExecutor creates an executor, filling in defaults for zero values.
func NewExecutor(config ExecutorConfig) *Executor {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 20
	}
	if config.ItemTimeout <= 0 {
		config.ItemTimeout = 60 * time.Second
	}
	if config.Pacer == nil {
		config.Pacer = pacing.None()
	}
	return &Executor{
		config: config,
		logger: log.With().Str("component", "bulk-executor").Logger(),
	}
}

// Run executes op for every id and returns the round's success/failure
// partition. Results are collected in completion order. When ctx ends
// mid-round, the remaining ids are recorded as failed with the context
// error so the summary still accounts for every submitted id.
func (e *Executor) Run(ctx context.Context, ids []string, op Operation, reporter progress.Reporter) RoundSummary {
	summary := RoundSummary{
		Attempted: len(ids),
		Errors:    make(map[string]error),
	}
	if len(ids) == 0 {
		return summary
	}
	if reporter == nil {
		reporter = progress.Nop()
	}

	jobs := make(chan string, len(ids))
	results := make(chan AttemptResult, len(ids))

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)

	workers := e.config.MaxConcurrent
	if workers > len(ids) {
		workers = len(ids)
	}

	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for id := range jobs {
				results <- e.attempt(ctx, id, op)
			}
			done <- struct{}{}
		}()
	}
	go func() {
		for i := 0; i < workers; i++ {
			<-done
		}
		close(results)
	}()

	for result := range results {
		if result.Succeeded() {
			summary.Succeeded = append(summary.Succeeded, result.ThingID)
		} else {
			summary.Failed = append(summary.Failed, result.ThingID)
			summary.Errors[result.ThingID] = result.Err
			e.logger.Warn().
				Err(result.Err).
				Str("thing_id", result.ThingID).
				Msg("Operation failed")
		}
		reporter.Advance(1)
	}

	return summary
}

// attempt runs op for a single id with pacing, a per-item timeout, and
// panic containment. A panic in op fails the item, not the round.
func (e *Executor) attempt(ctx context.Context, id string, op Operation) (result AttemptResult) {
	result = AttemptResult{ThingID: id}

	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("operation panicked: %v", r)
		}
	}()

	e.config.Pacer.Wait(ctx)

	itemCtx, cancel := context.WithTimeout(ctx, e.config.ItemTimeout)
	defer cancel()

	result.Err = op(itemCtx, id)
	e.config.Pacer.Observe(result.Err == nil)
	return result
}
