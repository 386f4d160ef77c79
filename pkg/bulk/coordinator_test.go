package bulk

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

func TestCoordinatorZeroFailureFastPath(t *testing.T) {
	ids := makeIDs(20)
	op := newFlakyOp(nil)

	coordinator := NewCoordinator(NewExecutor(ExecutorConfig{MaxConcurrent: 5}), CoordinatorConfig{MaxRetries: 3})
	summary := coordinator.Run(context.Background(), ids, op.run, nil)

	if !summary.Success {
		t.Error("Success = false, want true")
	}
	if summary.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1 (no retry rounds when nothing failed)", summary.Rounds)
	}
	if summary.Succeeded != 20 {
		t.Errorf("Succeeded = %d, want 20", summary.Succeeded)
	}
	if len(summary.RetrySucceeded) != 0 || len(summary.PermanentlyFailed) != 0 {
		t.Errorf("Retry bookkeeping not empty: %+v", summary)
	}
	for _, id := range ids {
		if op.attemptCount(id) != 1 {
			t.Fatalf("Id %s attempted %d times, want exactly 1", id, op.attemptCount(id))
		}
	}
}

func TestCoordinatorRetriesTransientFailures(t *testing.T) {
	ids := makeIDs(10)
	transient := []string{ids[2], ids[5], ids[7]}
	failures := make(map[string]int)
	for _, id := range transient {
		failures[id] = 1
	}
	op := newFlakyOp(failures)

	coordinator := NewCoordinator(NewExecutor(ExecutorConfig{MaxConcurrent: 4}), CoordinatorConfig{MaxRetries: 3})
	summary := coordinator.Run(context.Background(), ids, op.run, nil)

	if !summary.Success {
		t.Error("Success = false, want true after retries recover everything")
	}
	if summary.TotalFound != 10 || summary.Succeeded != 10 {
		t.Errorf("TotalFound/Succeeded = %d/%d, want 10/10", summary.TotalFound, summary.Succeeded)
	}
	if summary.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2 (one retry round recovers all)", summary.Rounds)
	}

	got := append([]string(nil), summary.RetrySucceeded...)
	sort.Strings(got)
	if len(got) != len(transient) {
		t.Fatalf("RetrySucceeded = %v, want %v", got, transient)
	}
	for i := range transient {
		if got[i] != transient[i] {
			t.Fatalf("RetrySucceeded = %v, want %v", got, transient)
		}
	}

	// Ids that succeeded in round one are never re-attempted.
	for _, id := range ids {
		want := 1
		if containsID(transient, id) {
			want = 2
		}
		if op.attemptCount(id) != want {
			t.Errorf("Id %s attempted %d times, want %d", id, op.attemptCount(id), want)
		}
	}
}

func TestCoordinatorPermanentFailure(t *testing.T) {
	ids := makeIDs(5)
	stuck := ids[1]
	// More pending failures than rounds available.
	op := newFlakyOp(map[string]int{stuck: 100})

	coordinator := NewCoordinator(NewExecutor(ExecutorConfig{MaxConcurrent: 2}), CoordinatorConfig{MaxRetries: 3})
	summary := coordinator.Run(context.Background(), ids, op.run, nil)

	if summary.Success {
		t.Error("Success = true, want false with a permanently failing id")
	}
	if summary.Succeeded != 4 {
		t.Errorf("Succeeded = %d, want 4", summary.Succeeded)
	}
	if len(summary.PermanentlyFailed) != 1 || summary.PermanentlyFailed[0] != stuck {
		t.Errorf("PermanentlyFailed = %v, want [%s]", summary.PermanentlyFailed, stuck)
	}
	if summary.Rounds != 4 {
		t.Errorf("Rounds = %d, want 4 (initial pass + 3 retries)", summary.Rounds)
	}
	// Initial attempt plus every retry round.
	if op.attemptCount(stuck) != 4 {
		t.Errorf("Stuck id attempted %d times, want 4", op.attemptCount(stuck))
	}
}

func TestCoordinatorRetriesDisabled(t *testing.T) {
	ids := makeIDs(6)
	op := newFlakyOp(map[string]int{ids[0]: 1})

	coordinator := NewCoordinator(NewExecutor(ExecutorConfig{MaxConcurrent: 3}), CoordinatorConfig{MaxRetries: 0})
	summary := coordinator.Run(context.Background(), ids, op.run, nil)

	if summary.Success {
		t.Error("Success = true, want false when retries are disabled")
	}
	if summary.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1", summary.Rounds)
	}
	if len(summary.PermanentlyFailed) != 1 || summary.PermanentlyFailed[0] != ids[0] {
		t.Errorf("PermanentlyFailed = %v, want [%s]", summary.PermanentlyFailed, ids[0])
	}
	if op.attemptCount(ids[0]) != 1 {
		t.Errorf("Failed id attempted %d times, want 1", op.attemptCount(ids[0]))
	}
}

func TestCoordinatorStopsEarlyWhenRecovered(t *testing.T) {
	ids := makeIDs(8)
	op := newFlakyOp(map[string]int{ids[3]: 2})

	coordinator := NewCoordinator(NewExecutor(ExecutorConfig{MaxConcurrent: 4}), CoordinatorConfig{MaxRetries: 5})
	summary := coordinator.Run(context.Background(), ids, op.run, nil)

	if !summary.Success {
		t.Error("Success = false, want true")
	}
	// Initial pass + 2 retry rounds; rounds 3-5 never run.
	if summary.Rounds != 3 {
		t.Errorf("Rounds = %d, want 3", summary.Rounds)
	}
	if op.attemptCount(ids[3]) != 3 {
		t.Errorf("Recovering id attempted %d times, want 3", op.attemptCount(ids[3]))
	}
}

func TestCoordinatorCancelledDuringRoundDelay(t *testing.T) {
	ids := makeIDs(4)
	op := newFlakyOp(map[string]int{ids[0]: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	coordinator := NewCoordinator(NewExecutor(ExecutorConfig{MaxConcurrent: 2}), CoordinatorConfig{
		MaxRetries: 3,
		RoundDelay: time.Second, // never elapses against a cancelled ctx
	})
	summary := coordinator.Run(ctx, ids, op.run, nil)

	if summary.Success {
		t.Error("Success = true, want false after cancellation")
	}
	if len(summary.PermanentlyFailed) == 0 {
		t.Error("PermanentlyFailed empty, want the unfinished ids recorded")
	}
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

var errAlways = errors.New("always fails")

func TestCoordinatorRecordsRoundsMonotonically(t *testing.T) {
	ids := makeIDs(3)
	op := func(ctx context.Context, thingID string) error { return errAlways }

	coordinator := NewCoordinator(NewExecutor(ExecutorConfig{MaxConcurrent: 2}), CoordinatorConfig{MaxRetries: 2})
	summary := coordinator.Run(context.Background(), ids, op, nil)

	if summary.Rounds != 3 {
		t.Errorf("Rounds = %d, want 3", summary.Rounds)
	}
	if summary.Succeeded != 0 {
		t.Errorf("Succeeded = %d, want 0", summary.Succeeded)
	}
	if len(summary.PermanentlyFailed) != 3 {
		t.Errorf("PermanentlyFailed = %v, want all 3 ids", summary.PermanentlyFailed)
	}
}
