// Package cache provides a Redis-backed cache for Ditto GET responses
// with ETag support for conditional requests.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the fallback TTL when no Expires header is present.
// Ditto does not publish cache lifetimes the way ESI-style APIs do, so
// cached things go stale quickly on purpose.
const DefaultTTL = 30 * time.Second

// RevalidateWindow is how long a stale entry with an ETag is retained
// beyond its freshness lifetime so it can be revalidated with a
// conditional request instead of a full refetch.
const RevalidateWindow = 5 * time.Minute

var (
	// ErrMiss indicates the requested key was not found in cache.
	ErrMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Key identifies a cached thing response.
type Key struct {
	// ThingID is the Ditto thing identifier.
	ThingID string
}

// String generates the Redis key, e.g. "ditto:things:org.eclipse.ditto:sensor-1".
func (k Key) String() string {
	return "ditto:things:" + k.ThingID
}

// Entry is a cached thing response.
type Entry struct {
	// Data is the response body.
	Data []byte `json:"data"`

	// ETag for conditional requests (If-None-Match).
	ETag string `json:"etag"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the response was cached.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// EntryFromResponse builds a cache entry from a response body and headers.
func EntryFromResponse(data []byte, headers http.Header) *Entry {
	return &Entry{
		Data:     data,
		ETag:     headers.Get("ETag"),
		Expires:  parseExpires(headers),
		CachedAt: time.Now(),
	}
}

// parseExpires reads the Expires header, falling back to DefaultTTL.
func parseExpires(headers http.Header) time.Time {
	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return time.Now().Add(DefaultTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return time.Now().Add(DefaultTTL)
	}
	if expires.Before(time.Now()) {
		return time.Now()
	}
	return expires
}

// Manager handles caching operations with a Redis backend.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient}
}

// Get retrieves a cache entry by key.
// Returns ErrMiss if the key doesn't exist. Stale entries that carry an
// ETag are returned so the caller can revalidate them with a conditional
// request; callers must check IsExpired before serving the data directly.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		if entry.ETag == "" {
			// Nothing to revalidate with, treat as gone.
			_ = m.Delete(ctx, key)
			CacheMisses.Inc()
			return nil, ErrMiss
		}
		CacheMisses.Inc()
		return &entry, nil
	}

	CacheHits.Inc()
	return &entry, nil
}

// storeTTL returns how long an entry should live in Redis. Entries with
// an ETag outlive their freshness window so they stay available for
// conditional revalidation.
func storeTTL(entry *Entry) time.Duration {
	ttl := entry.TTL()
	if entry.ETag != "" {
		ttl += RevalidateWindow
	}
	return ttl
}

// Set stores a cache entry with a TTL derived from the entry's Expires field.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := storeTTL(entry)
	if ttl <= 0 {
		// Already expired with no ETag, don't cache
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Refresh extends an entry's lifetime after a 304 Not Modified response,
// using the new Expires header when the server sent one.
func (m *Manager) Refresh(ctx context.Context, key Key, headers http.Header) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	entry.Expires = parseExpires(headers)
	return m.Set(ctx, key, entry)
}
