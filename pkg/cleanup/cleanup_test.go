package cleanup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/twinforge/ditto-bulk/pkg/client"
)

// fakeDitto backs the cleanup client interface with in-memory state.
type fakeDitto struct {
	mu          sync.Mutex
	things      []string
	deleted     map[string]bool
	connections []string

	listConnErr   error
	failPolicy    string
	failConn      string
	deletedConns  []string
	deletedPolicy []string
}

func newFakeDitto(thingCount int) *fakeDitto {
	d := &fakeDitto{deleted: make(map[string]bool)}
	for i := 0; i < thingCount; i++ {
		d.things = append(d.things, fmt.Sprintf("org.eclipse.ditto:thing-%03d", i))
	}
	return d
}

func (d *fakeDitto) SearchPage(ctx context.Context, cursor string, pageSize int) (client.SearchPage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var remaining []string
	for _, id := range d.things {
		if !d.deleted[id] {
			remaining = append(remaining, id)
		}
	}

	offset := 0
	if cursor != "" {
		offset, _ = strconv.Atoi(cursor)
	}
	if offset >= len(remaining) {
		return client.SearchPage{}, nil
	}

	end := offset + pageSize
	if end > len(remaining) {
		end = len(remaining)
	}
	page := client.SearchPage{ThingIDs: remaining[offset:end]}
	if end < len(remaining) {
		page.Cursor = strconv.Itoa(end)
	}
	return page, nil
}

func (d *fakeDitto) DeleteThing(ctx context.Context, thingID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted[thingID] = true
	return nil
}

func (d *fakeDitto) DeletePolicy(ctx context.Context, policyID string) error {
	if policyID == d.failPolicy {
		return errors.New("policy locked")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deletedPolicy = append(d.deletedPolicy, policyID)
	return nil
}

func (d *fakeDitto) ListConnections(ctx context.Context) ([]string, error) {
	if d.listConnErr != nil {
		return nil, d.listConnErr
	}
	return d.connections, nil
}

func (d *fakeDitto) DeleteConnection(ctx context.Context, connectionID string) error {
	if connectionID == d.failConn {
		return errors.New("connection busy")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deletedConns = append(d.deletedConns, connectionID)
	return nil
}

func TestRunFullSweep(t *testing.T) {
	ditto := newFakeDitto(30)
	ditto.connections = []string{"mqtt-bridge", "kafka-feed"}

	summary := Run(context.Background(), ditto, Options{
		PageSize:      10,
		MaxConcurrent: 4,
		Policies:      []string{"org.eclipse.ditto:sensor-policy", "", "org.eclipse.ditto:fleet-policy"},
	})

	if !summary.Success {
		t.Error("Success = false, want true")
	}
	if summary.Things.Succeeded != 30 {
		t.Errorf("Things.Succeeded = %d, want 30", summary.Things.Succeeded)
	}
	if len(summary.PoliciesDeleted) != 2 {
		t.Errorf("PoliciesDeleted = %v, want 2 entries (empty id skipped)", summary.PoliciesDeleted)
	}
	if len(summary.ConnectionsDeleted) != 2 {
		t.Errorf("ConnectionsDeleted = %v, want both connections", summary.ConnectionsDeleted)
	}
}

func TestRunToleratesMissingConnectionsEndpoint(t *testing.T) {
	ditto := newFakeDitto(5)
	ditto.listConnErr = errors.New("404 not found")

	summary := Run(context.Background(), ditto, Options{PageSize: 10, MaxConcurrent: 2})

	if !summary.Success {
		t.Error("Success = false, want true: an unlistable connections endpoint is not a failure")
	}
	if summary.Things.Succeeded != 5 {
		t.Errorf("Things.Succeeded = %d, want 5", summary.Things.Succeeded)
	}
}

func TestRunRecordsPolicyFailures(t *testing.T) {
	ditto := newFakeDitto(2)
	ditto.failPolicy = "org.eclipse.ditto:stuck-policy"

	summary := Run(context.Background(), ditto, Options{
		PageSize:      10,
		MaxConcurrent: 2,
		Policies:      []string{"org.eclipse.ditto:stuck-policy", "org.eclipse.ditto:ok-policy"},
	})

	if summary.Success {
		t.Error("Success = true, want false with a failed policy deletion")
	}
	if len(summary.PoliciesFailed) != 1 || summary.PoliciesFailed[0] != "org.eclipse.ditto:stuck-policy" {
		t.Errorf("PoliciesFailed = %v, want the stuck policy", summary.PoliciesFailed)
	}
	if len(summary.PoliciesDeleted) != 1 {
		t.Errorf("PoliciesDeleted = %v, want the ok policy", summary.PoliciesDeleted)
	}
}

func TestRunRecordsConnectionFailures(t *testing.T) {
	ditto := newFakeDitto(0)
	ditto.connections = []string{"good-conn", "bad-conn"}
	ditto.failConn = "bad-conn"

	summary := Run(context.Background(), ditto, Options{PageSize: 10, MaxConcurrent: 2})

	if summary.Success {
		t.Error("Success = true, want false with a failed connection deletion")
	}
	if len(summary.ConnectionsFailed) != 1 || summary.ConnectionsFailed[0] != "bad-conn" {
		t.Errorf("ConnectionsFailed = %v, want [bad-conn]", summary.ConnectionsFailed)
	}
}
