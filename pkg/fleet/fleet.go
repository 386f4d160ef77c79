// Package fleet provisions fleets of generated things behind a shared
// policy.
package fleet

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/twinforge/ditto-bulk/pkg/bulk"
	"github.com/twinforge/ditto-bulk/pkg/generate"
	"github.com/twinforge/ditto-bulk/pkg/pacing"
	"github.com/twinforge/ditto-bulk/pkg/progress"
	"github.com/twinforge/ditto-bulk/pkg/schema"
)

// ThingWriter writes policies and things to Ditto.
type ThingWriter interface {
	PutPolicy(ctx context.Context, policyID string, policy json.RawMessage) error
	PutThing(ctx context.Context, thingID string, payload json.RawMessage) error
}

// SpawnOptions configures a fleet provisioning run.
type SpawnOptions struct {
	// SchemaPath points to a thing template or a JSON Schema.
	SchemaPath string

	// PolicyPath points to the policy document all spawned things share.
	PolicyPath string

	// Count is the number of things to create.
	Count int

	// MaxConcurrent caps in-flight creations (default 20). With an
	// Interval set it is forced to 1 so the spacing is observable.
	MaxConcurrent int

	// Interval spaces out creations, e.g. to simulate devices coming
	// online gradually. Zero creates as fast as the ceiling allows.
	Interval time.Duration

	// Reporter receives progress ticks. Nil disables progress output.
	Reporter progress.Reporter
}

// SpawnSummary reports the outcome of a provisioning run.
type SpawnSummary struct {
	Requested int
	Created   int
	Failed    []string
	Success   bool
}

// Spawn creates the policy and then opts.Count generated things bound to
// it. Setup problems (unreadable files, invalid documents, policy
// creation failure) return an error; per-thing creation failures are
// reported in the summary instead.
func Spawn(ctx context.Context, writer ThingWriter, opts SpawnOptions) (SpawnSummary, error) {
	if opts.Count <= 0 {
		return SpawnSummary{}, fmt.Errorf("count must be positive (got %d)", opts.Count)
	}

	schemaType, err := schema.ValidateSchemaFile(opts.SchemaPath)
	if err != nil {
		return SpawnSummary{}, err
	}

	policyID, err := schema.ValidatePolicyFile(opts.PolicyPath)
	if err != nil {
		return SpawnSummary{}, err
	}
	policy, err := os.ReadFile(opts.PolicyPath)
	if err != nil {
		return SpawnSummary{}, fmt.Errorf("read policy: %w", err)
	}
	if err := writer.PutPolicy(ctx, policyID, policy); err != nil {
		return SpawnSummary{}, fmt.Errorf("create policy %s: %w", policyID, err)
	}
	log.Info().Str("policy_id", policyID).Msg("Policy created")

	schemaData, err := os.ReadFile(opts.SchemaPath)
	if err != nil {
		return SpawnSummary{}, fmt.Errorf("read schema: %w", err)
	}
	var schemaDoc map[string]any
	if err := json.Unmarshal(schemaData, &schemaDoc); err != nil {
		return SpawnSummary{}, fmt.Errorf("parse schema: %w", err)
	}

	log.Info().
		Int("count", opts.Count).
		Str("schema_type", string(schemaType)).
		Msg("Creating things")

	things, err := generateFleet(schemaDoc, schemaType, policyID, opts.Count)
	if err != nil {
		return SpawnSummary{}, err
	}

	payloads := make(map[string]json.RawMessage, len(things))
	ids := make([]string, 0, len(things))
	for _, thing := range things {
		payloads[thing.ID] = thing.Payload
		ids = append(ids, thing.ID)
	}

	config := bulk.ExecutorConfig{MaxConcurrent: opts.MaxConcurrent}
	if opts.Interval > 0 {
		config.MaxConcurrent = 1
		config.Pacer = pacing.NewInterval(opts.Interval)
	}
	executor := bulk.NewExecutor(config)

	reporter := opts.Reporter
	if reporter == nil {
		reporter = progress.Nop()
	}
	reporter.Start("Creating", len(ids))
	round := executor.Run(ctx, ids, func(ctx context.Context, thingID string) error {
		return writer.PutThing(ctx, thingID, payloads[thingID])
	}, reporter)
	reporter.Done()

	summary := SpawnSummary{
		Requested: opts.Count,
		Created:   len(round.Succeeded),
		Failed:    round.Failed,
		Success:   len(round.Failed) == 0,
	}
	logSpawnSummary(summary)
	return summary, nil
}

func generateFleet(schemaDoc map[string]any, schemaType schema.Type, policyID string, count int) ([]generate.Thing, error) {
	things := make([]generate.Thing, 0, count)
	for i := 0; i < count; i++ {
		var thing generate.Thing
		var err error
		if schemaType == schema.TypeJSONSchema {
			thing, err = generate.FromJSONSchema(schemaDoc, policyID)
		} else {
			thing, err = generate.FromTemplate(schemaDoc, policyID)
		}
		if err != nil {
			return nil, fmt.Errorf("generate descriptor: %w", err)
		}
		if err := schema.ValidateThing(thing.Payload); err != nil {
			return nil, fmt.Errorf("generated descriptor invalid: %w", err)
		}
		things = append(things, thing)
	}
	return things, nil
}

func logSpawnSummary(summary SpawnSummary) {
	log.Info().
		Int("requested", summary.Requested).
		Int("created", summary.Created).
		Msg("Creation summary")

	if len(summary.Failed) > 0 {
		log.Warn().
			Strs("thing_ids", summary.Failed).
			Msg("Failed to create things")
	}
}
