// Package testutil provides testing utilities for the Ditto bulk client.
package testutil

import (
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var searchOptionPattern = regexp.MustCompile(`^size\((\d+)\)(?:,cursor\((\d+)\))?$`)

// MockDitto is a stateful in-memory Ditto instance behind an httptest
// server. It serves the thing, policy, connection, and search endpoints
// the bulk client touches, with cursor pagination and failure injection.
type MockDitto struct {
	server *httptest.Server

	mu          sync.Mutex
	things      map[string][]byte
	policies    map[string][]byte
	connections map[string]bool

	// failDeletes maps thing ids to the number of times DELETE should
	// answer 503 before succeeding.
	failDeletes map[string]int

	// Tracking
	requestCount     int
	searchPageCount  int
	conditionalCount int
	inFlight         int
	peakInFlight     int
}

// NewMockDitto starts a mock Ditto server. Callers must Close it.
func NewMockDitto() *MockDitto {
	mock := &MockDitto{
		things:      make(map[string][]byte),
		policies:    make(map[string][]byte),
		connections: make(map[string]bool),
		failDeletes: make(map[string]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the base URL of the API, including the /api/2 prefix.
func (m *MockDitto) URL() string {
	return m.server.URL + "/api/2"
}

// Close shuts the server down.
func (m *MockDitto) Close() {
	m.server.Close()
}

// SeedThings creates count things named org.eclipse.ditto:seed-<n>.
func (m *MockDitto) SeedThings(count int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("org.eclipse.ditto:seed-%04d", i)
		m.things[id] = []byte(fmt.Sprintf(`{"thingId":%q}`, id))
		ids = append(ids, id)
	}
	return ids
}

// FailDeletes makes the next n DELETE requests for thingID answer 503.
func (m *MockDitto) FailDeletes(thingID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDeletes[thingID] = n
}

// ThingCount returns the number of things currently stored.
func (m *MockDitto) ThingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.things)
}

// HasThing reports whether thingID exists.
func (m *MockDitto) HasThing(thingID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.things[thingID]
	return ok
}

// HasPolicy reports whether policyID exists.
func (m *MockDitto) HasPolicy(policyID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.policies[policyID]
	return ok
}

// SeedConnection registers a connection id.
func (m *MockDitto) SeedConnection(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[connectionID] = true
}

// ConnectionCount returns the number of stored connections.
func (m *MockDitto) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections)
}

// RequestCount returns the total number of requests served.
func (m *MockDitto) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// SearchPageCount returns the number of search page requests served.
func (m *MockDitto) SearchPageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchPageCount
}

// ConditionalCount returns the number of If-None-Match requests seen.
func (m *MockDitto) ConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conditionalCount
}

// PeakInFlight returns the highest number of concurrently served requests.
func (m *MockDitto) PeakInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakInFlight
}

func (m *MockDitto) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	m.inFlight++
	if m.inFlight > m.peakInFlight {
		m.peakInFlight = m.inFlight
	}
	if r.Header.Get("If-None-Match") != "" {
		m.conditionalCount++
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	path := strings.TrimPrefix(r.URL.Path, "/api/2")
	switch {
	case path == "/search/things/count":
		m.handleCount(w)
	case path == "/search/things":
		m.handleSearch(w, r)
	case strings.HasPrefix(path, "/things/"):
		m.handleThing(w, r, pathID(path, "/things/"))
	case strings.HasPrefix(path, "/policies/"):
		m.handlePolicy(w, r, pathID(path, "/policies/"))
	case path == "/connections" && r.Method == http.MethodGet:
		m.handleListConnections(w)
	case path == "/connections" && r.Method == http.MethodPost:
		w.WriteHeader(http.StatusCreated)
	case strings.HasPrefix(path, "/connections/"):
		m.handleConnection(w, r, pathID(path, "/connections/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func pathID(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	if decoded, err := url.PathUnescape(id); err == nil {
		return decoded
	}
	return id
}

func (m *MockDitto) sortedThingIDs() []string {
	ids := make([]string, 0, len(m.things))
	for id := range m.things {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *MockDitto) handleCount(w http.ResponseWriter) {
	m.mu.Lock()
	count := len(m.things)
	m.mu.Unlock()
	fmt.Fprintf(w, "%d", count)
}

// handleSearch serves cursor-paginated id listings. The cursor is an
// opaque offset into the id set sorted at request time, matching how a
// search index keeps a stable order while things disappear underneath it.
func (m *MockDitto) handleSearch(w http.ResponseWriter, r *http.Request) {
	option := r.URL.Query().Get("option")
	match := searchOptionPattern.FindStringSubmatch(option)
	if match == nil {
		http.Error(w, `{"error":"invalid option"}`, http.StatusBadRequest)
		return
	}
	pageSize, _ := strconv.Atoi(match[1])
	offset := 0
	if match[2] != "" {
		offset, _ = strconv.Atoi(match[2])
	}

	m.mu.Lock()
	m.searchPageCount++
	ids := m.sortedThingIDs()
	m.mu.Unlock()

	if offset > len(ids) {
		offset = len(ids)
	}
	end := offset + pageSize
	if end > len(ids) {
		end = len(ids)
	}

	items := make([]string, 0, end-offset)
	for _, id := range ids[offset:end] {
		items = append(items, fmt.Sprintf(`{"thingId":%q}`, id))
	}

	w.Header().Set("Content-Type", "application/json")
	if end < len(ids) {
		fmt.Fprintf(w, `{"items":[%s],"cursor":"%d"}`, strings.Join(items, ","), end)
		return
	}
	fmt.Fprintf(w, `{"items":[%s]}`, strings.Join(items, ","))
}

func (m *MockDitto) handleThing(w http.ResponseWriter, r *http.Request, thingID string) {
	switch r.Method {
	case http.MethodGet:
		m.mu.Lock()
		payload, ok := m.things[thingID]
		m.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		etag := fmt.Sprintf(`"%x"`, sha1.Sum(payload))
		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("ETag", etag)
		w.Write(payload)

	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		m.mu.Lock()
		_, existed := m.things[thingID]
		m.things[thingID] = body
		m.mu.Unlock()
		if existed {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusCreated)

	case http.MethodDelete:
		m.mu.Lock()
		if m.failDeletes[thingID] > 0 {
			m.failDeletes[thingID]--
			m.mu.Unlock()
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, existed := m.things[thingID]
		delete(m.things, thingID)
		m.mu.Unlock()
		if existed {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (m *MockDitto) handlePolicy(w http.ResponseWriter, r *http.Request, policyID string) {
	switch r.Method {
	case http.MethodPut:
		m.mu.Lock()
		m.policies[policyID] = []byte(`{}`)
		m.mu.Unlock()
		w.WriteHeader(http.StatusCreated)

	case http.MethodDelete:
		m.mu.Lock()
		_, existed := m.policies[policyID]
		delete(m.policies, policyID)
		m.mu.Unlock()
		if existed {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (m *MockDitto) handleListConnections(w http.ResponseWriter) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)

	entries := make([]string, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, fmt.Sprintf(`{"id":%q}`, id))
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, "[%s]", strings.Join(entries, ","))
}

func (m *MockDitto) handleConnection(w http.ResponseWriter, r *http.Request, connectionID string) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	m.mu.Lock()
	existed := m.connections[connectionID]
	delete(m.connections, connectionID)
	m.mu.Unlock()
	if existed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}
