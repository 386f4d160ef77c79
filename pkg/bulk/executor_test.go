package bulk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/twinforge/ditto-bulk/pkg/progress"
)

func makeIDs(count int) []string {
	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("org.eclipse.ditto:thing-%04d", i)
	}
	return ids
}

// flakyOp fails each id a configured number of times before succeeding.
type flakyOp struct {
	mu       sync.Mutex
	failures map[string]int // remaining failures per id
	attempts map[string]int
}

func newFlakyOp(failures map[string]int) *flakyOp {
	return &flakyOp{
		failures: failures,
		attempts: make(map[string]int),
	}
}

func (f *flakyOp) run(ctx context.Context, thingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[thingID]++
	if f.failures[thingID] > 0 {
		f.failures[thingID]--
		return errors.New("simulated transient failure")
	}
	return nil
}

func (f *flakyOp) attemptCount(thingID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[thingID]
}

func TestExecutorPartitionsEveryID(t *testing.T) {
	ids := makeIDs(100)
	failing := map[string]int{
		ids[3]:  1,
		ids[42]: 1,
		ids[99]: 1,
	}

	executor := NewExecutor(ExecutorConfig{MaxConcurrent: 10})
	summary := executor.Run(context.Background(), ids, newFlakyOp(failing).run, nil)

	if summary.Attempted != 100 {
		t.Errorf("Attempted = %d, want 100", summary.Attempted)
	}
	if got := len(summary.Succeeded) + len(summary.Failed); got != 100 {
		t.Errorf("Succeeded+Failed = %d, want 100 (every id accounted for)", got)
	}
	if len(summary.Failed) != 3 {
		t.Errorf("Failed = %v, want the 3 injected failures", summary.Failed)
	}
	for _, id := range summary.Failed {
		if summary.Errors[id] == nil {
			t.Errorf("Failed id %q has no recorded error", id)
		}
	}

	// No id may appear in both partitions.
	succeeded := make(map[string]bool)
	for _, id := range summary.Succeeded {
		succeeded[id] = true
	}
	for _, id := range summary.Failed {
		if succeeded[id] {
			t.Errorf("Id %q in both Succeeded and Failed", id)
		}
	}
}

func TestExecutorRespectsConcurrencyCeiling(t *testing.T) {
	const ceiling = 5
	var inFlight, peak int64

	op := func(ctx context.Context, thingID string) error {
		current := atomic.AddInt64(&inFlight, 1)
		defer atomic.AddInt64(&inFlight, -1)
		for {
			observed := atomic.LoadInt64(&peak)
			if current <= observed || atomic.CompareAndSwapInt64(&peak, observed, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	}

	executor := NewExecutor(ExecutorConfig{MaxConcurrent: ceiling})
	summary := executor.Run(context.Background(), makeIDs(60), op, nil)

	if len(summary.Succeeded) != 60 {
		t.Fatalf("Succeeded = %d, want 60", len(summary.Succeeded))
	}
	if observed := atomic.LoadInt64(&peak); observed > ceiling {
		t.Errorf("Observed %d concurrent operations, ceiling is %d", observed, ceiling)
	}
}

func TestExecutorContainsPanics(t *testing.T) {
	ids := makeIDs(10)
	op := func(ctx context.Context, thingID string) error {
		if thingID == ids[4] {
			panic("boom")
		}
		return nil
	}

	executor := NewExecutor(ExecutorConfig{MaxConcurrent: 4})
	summary := executor.Run(context.Background(), ids, op, nil)

	if len(summary.Succeeded) != 9 {
		t.Errorf("Succeeded = %d, want 9", len(summary.Succeeded))
	}
	if len(summary.Failed) != 1 || summary.Failed[0] != ids[4] {
		t.Fatalf("Failed = %v, want [%s]", summary.Failed, ids[4])
	}
	if err := summary.Errors[ids[4]]; err == nil {
		t.Error("Panicking operation left no error")
	}
}

func TestExecutorEmptyInput(t *testing.T) {
	executor := NewExecutor(ExecutorConfig{})
	summary := executor.Run(context.Background(), nil, func(context.Context, string) error {
		t.Error("Operation invoked for empty input")
		return nil
	}, nil)

	if summary.Attempted != 0 || len(summary.Succeeded) != 0 || len(summary.Failed) != 0 {
		t.Errorf("Non-empty summary for empty input: %+v", summary)
	}
}

func TestExecutorCancelledContextAccountsAllIDs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ids := makeIDs(25)
	executor := NewExecutor(ExecutorConfig{MaxConcurrent: 5})
	summary := executor.Run(ctx, ids, func(ctx context.Context, thingID string) error {
		return ctx.Err()
	}, nil)

	if got := len(summary.Succeeded) + len(summary.Failed); got != 25 {
		t.Errorf("Succeeded+Failed = %d, want 25 (cancelled ids still accounted for)", got)
	}
	if len(summary.Failed) != 25 {
		t.Errorf("Failed = %d, want 25 after pre-run cancellation", len(summary.Failed))
	}
	for _, id := range summary.Failed {
		if !errors.Is(summary.Errors[id], context.Canceled) {
			t.Fatalf("Errors[%s] = %v, want context.Canceled", id, summary.Errors[id])
		}
	}
}

func TestExecutorReportsOneTickPerItem(t *testing.T) {
	var ticks int64
	reporter := progress.Func(func(completed, total int) { atomic.AddInt64(&ticks, int64(completed)) })

	executor := NewExecutor(ExecutorConfig{MaxConcurrent: 8})
	executor.Run(context.Background(), makeIDs(37), func(ctx context.Context, thingID string) error {
		if thingID[len(thingID)-1] == '3' {
			return errors.New("fail")
		}
		return nil
	}, reporter)

	// Failures tick too: progress tracks completion, not success.
	if ticks != 37 {
		t.Errorf("Reporter observed %d ticks, want 37", ticks)
	}
}

func TestExecutorHandlesMoreWorkersThanItems(t *testing.T) {
	executor := NewExecutor(ExecutorConfig{MaxConcurrent: 50})
	summary := executor.Run(context.Background(), makeIDs(3), func(context.Context, string) error {
		return nil
	}, nil)

	got := append([]string(nil), summary.Succeeded...)
	sort.Strings(got)
	want := makeIDs(3)
	if len(got) != len(want) {
		t.Fatalf("Succeeded = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Succeeded = %v, want %v", got, want)
		}
	}
}
