package bulk

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/twinforge/ditto-bulk/pkg/client"
	"github.com/twinforge/ditto-bulk/pkg/progress"
)

// fakePageSource serves a fixed id set in pages, with optional failure
// injection per page index.
type fakePageSource struct {
	mu       sync.Mutex
	ids      []string
	requests int
	failPage int // 1-based page index to fail, 0 = never
}

func newFakePageSource(count int) *fakePageSource {
	src := &fakePageSource{}
	for i := 0; i < count; i++ {
		src.ids = append(src.ids, fmt.Sprintf("org.eclipse.ditto:thing-%04d", i))
	}
	return src
}

func (s *fakePageSource) SearchPage(ctx context.Context, cursor string, pageSize int) (client.SearchPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	if s.failPage > 0 && s.requests == s.failPage {
		return client.SearchPage{}, fmt.Errorf("simulated search failure")
	}

	offset := 0
	if cursor != "" {
		var err error
		offset, err = strconv.Atoi(cursor)
		if err != nil {
			return client.SearchPage{}, fmt.Errorf("bad cursor %q", cursor)
		}
	}

	end := offset + pageSize
	if end > len(s.ids) {
		end = len(s.ids)
	}

	page := client.SearchPage{ThingIDs: s.ids[offset:end]}
	if end < len(s.ids) {
		page.Cursor = strconv.Itoa(end)
	}
	return page, nil
}

func (s *fakePageSource) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func TestCollectAllPages(t *testing.T) {
	src := newFakePageSource(450)

	ids := CollectThingIDs(context.Background(), src, CollectOptions{PageSize: 200}, nil)

	if len(ids) != 450 {
		t.Errorf("Collected %d ids, want 450", len(ids))
	}
	if src.requestCount() != 3 {
		t.Errorf("Made %d page requests, want 3 (200+200+50)", src.requestCount())
	}

	// Ids come back distinct and in search order.
	seen := make(map[string]bool)
	for i, id := range ids {
		if seen[id] {
			t.Fatalf("Duplicate id %q in collected set", id)
		}
		seen[id] = true
		if want := fmt.Sprintf("org.eclipse.ditto:thing-%04d", i); id != want {
			t.Fatalf("ids[%d] = %q, want %q", i, id, want)
		}
	}
}

func TestCollectExactPageBoundary(t *testing.T) {
	src := newFakePageSource(400)

	ids := CollectThingIDs(context.Background(), src, CollectOptions{PageSize: 200}, nil)

	if len(ids) != 400 {
		t.Errorf("Collected %d ids, want 400", len(ids))
	}
	if src.requestCount() != 2 {
		t.Errorf("Made %d page requests, want 2", src.requestCount())
	}
}

func TestCollectMaxCountStopsEarly(t *testing.T) {
	src := newFakePageSource(1000)

	ids := CollectThingIDs(context.Background(), src, CollectOptions{PageSize: 200, MaxCount: 50}, nil)

	if len(ids) != 50 {
		t.Errorf("Collected %d ids, want exactly 50", len(ids))
	}
	if src.requestCount() != 1 {
		t.Errorf("Made %d page requests, want 1 (max count fits in first page)", src.requestCount())
	}
}

func TestCollectMaxCountAcrossPages(t *testing.T) {
	src := newFakePageSource(1000)

	ids := CollectThingIDs(context.Background(), src, CollectOptions{PageSize: 200, MaxCount: 350}, nil)

	if len(ids) != 350 {
		t.Errorf("Collected %d ids, want exactly 350", len(ids))
	}
	if src.requestCount() != 2 {
		t.Errorf("Made %d page requests, want 2", src.requestCount())
	}
}

func TestCollectStopsOnPageError(t *testing.T) {
	src := newFakePageSource(500)
	src.failPage = 2

	ids := CollectThingIDs(context.Background(), src, CollectOptions{PageSize: 200}, nil)

	// Page 1 delivered 200 ids, page 2 failed, collection stops with the
	// partial result instead of retrying.
	if len(ids) != 200 {
		t.Errorf("Collected %d ids, want 200 (partial result)", len(ids))
	}
	if src.requestCount() != 2 {
		t.Errorf("Made %d page requests, want 2 (no retry after failure)", src.requestCount())
	}
}

func TestCollectEmptyBackend(t *testing.T) {
	src := newFakePageSource(0)

	ids := CollectThingIDs(context.Background(), src, CollectOptions{PageSize: 200}, nil)

	if len(ids) != 0 {
		t.Errorf("Collected %d ids, want 0", len(ids))
	}
	if src.requestCount() != 1 {
		t.Errorf("Made %d page requests, want 1", src.requestCount())
	}
}

func TestCollectReportsProgress(t *testing.T) {
	src := newFakePageSource(42)

	ticks := 0
	reporter := progress.Func(func(completed, total int) { ticks += completed })

	CollectThingIDs(context.Background(), src, CollectOptions{PageSize: 10}, reporter)

	if ticks != 42 {
		t.Errorf("Reporter observed %d ticks, want 42", ticks)
	}
}
