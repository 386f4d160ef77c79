package bulk

// AttemptResult is the outcome of one operation attempt for one thing.
type AttemptResult struct {
	ThingID string
	Err     error
}

// Succeeded reports whether the attempt succeeded.
func (r AttemptResult) Succeeded() bool { return r.Err == nil }

// RoundSummary partitions the ids submitted to one fan-out round into
// succeeded and failed. Every submitted id lands in exactly one of the
// two sets; ordering follows completion, not submission.
type RoundSummary struct {
	// Attempted is the number of ids submitted to the round.
	Attempted int

	// Succeeded holds the ids whose operation returned no error.
	Succeeded []string

	// Failed holds the ids whose operation failed.
	Failed []string

	// Errors maps failed ids to their last error.
	Errors map[string]error
}

// FinalSummary is the overall result of a bulk run including retry rounds.
type FinalSummary struct {
	// TotalFound is the number of ids collected for the run.
	TotalFound int

	// Succeeded is the number of ids that eventually succeeded,
	// on the first pass or on a retry round.
	Succeeded int

	// RetrySucceeded holds the ids that failed the first pass but
	// succeeded on a later retry round.
	RetrySucceeded []string

	// PermanentlyFailed holds the ids that failed every round.
	PermanentlyFailed []string

	// Rounds is the number of fan-out rounds run (initial pass included).
	Rounds int

	// Success is true iff no id failed permanently.
	Success bool
}
