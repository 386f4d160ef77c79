// Package client provides the core Ditto HTTP API client with basic auth,
// response caching, and error handling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/twinforge/ditto-bulk/pkg/cache"
)

// Prometheus metrics for Ditto client operations.
var (
	dittoRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ditto_requests_total",
		Help: "Total Ditto requests by operation and status",
	}, []string{"operation", "status"})

	dittoRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ditto_request_duration_seconds",
		Help:    "Ditto request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	dittoErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ditto_errors_total",
		Help: "Total Ditto errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the Ditto HTTP API base, e.g. "http://localhost:8080/api/2".
	BaseURL string

	// Username and Password for HTTP basic auth.
	Username string
	Password string

	// Timeout is the per-request cap (default 30s).
	Timeout time.Duration

	// Redis enables the GET response cache when non-nil.
	Redis *redis.Client
}

// Client is a Ditto HTTP API client.
//
// The zero value is not usable; construct with New and release pooled
// connections with Close when done.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	cache      *cache.Manager
	logger     zerolog.Logger
}

// New creates a new Ditto client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("base URL must start with http:// or https:// (got %q)", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		cache:    cacheManager,
		logger:   log.With().Str("component", "ditto-client").Logger(),
	}, nil
}

// SearchPage is one page of a cursor-paginated thing search.
type SearchPage struct {
	// ThingIDs are the ids on this page, in search order.
	ThingIDs []string

	// Cursor is the continuation token for the next page.
	// Empty means this was the last page.
	Cursor string
}

// do executes a single HTTP request with auth and metrics. The caller owns
// the response body. Transport failures are returned as *DittoError with
// the network class; HTTP status handling is left to the caller.
func (c *Client) do(ctx context.Context, method, path string, body []byte, operation string) (*http.Response, error) {
	return c.doWithHeaders(ctx, method, path, body, operation, nil)
}

func (c *Client) doWithHeaders(ctx context.Context, method, path string, body []byte, operation string, extra map[string]string) (*http.Response, error) {
	start := time.Now()
	defer func() {
		dittoRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range extra {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		dittoErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		dittoRequestsTotal.WithLabelValues(operation, "network_error").Inc()
		return nil, &DittoError{
			ErrorClass: ErrorClassNetwork,
			Message:    method + " " + path,
			Err:        err,
		}
	}

	dittoRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		dittoErrorsTotal.WithLabelValues(string(classify(resp, nil))).Inc()
	}

	return resp, nil
}

// statusError drains the response and converts the status into a *DittoError.
func statusError(resp *http.Response) error {
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return &DittoError{
		StatusCode: resp.StatusCode,
		ErrorClass: classify(resp, nil),
		Message:    resp.Status,
	}
}

// PutThing creates or fully overwrites a thing.
func (c *Client) PutThing(ctx context.Context, thingID string, payload json.RawMessage) error {
	resp, err := c.do(ctx, http.MethodPut, "/things/"+url.PathEscape(thingID), payload, "things.put")
	if err != nil {
		return err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		resp.Body.Close()
		return nil
	}
	return statusError(resp)
}

// DeleteThing deletes a thing. A 404 counts as success: the thing being
// gone already is the desired outcome.
func (c *Client) DeleteThing(ctx context.Context, thingID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/things/"+url.PathEscape(thingID), nil, "things.delete")
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil
	}
	return statusError(resp)
}

// GetThing fetches a thing by id. Returns ErrNotFound for missing things.
// When a Redis cache is configured, fresh cached responses are served
// without a request; stale entries are revalidated with If-None-Match
// conditional requests.
func (c *Client) GetThing(ctx context.Context, thingID string) (json.RawMessage, error) {
	key := cache.Key{ThingID: thingID}

	var cached *cache.Entry
	if c.cache != nil {
		var err error
		cached, err = c.cache.Get(ctx, key)
		if err != nil && err != cache.ErrMiss {
			c.logger.Warn().Err(err).Str("thing_id", thingID).Msg("Cache get error")
		}
	}

	if cached != nil && !cached.IsExpired() {
		return cached.Data, nil
	}

	var conditional map[string]string
	if cached != nil && cached.ETag != "" {
		conditional = map[string]string{"If-None-Match": cached.ETag}
	}

	var body json.RawMessage
	var errClass ErrorClass

	retryErr := retryWithBackoff(ctx, func() error {
		resp, err := c.doWithHeaders(ctx, http.MethodGet, "/things/"+url.PathEscape(thingID), nil, "things.get", conditional)
		if err != nil {
			errClass = ErrorClassNetwork
			return err
		}

		switch {
		case resp.StatusCode == http.StatusNotModified && cached != nil:
			resp.Body.Close()
			cache.NotModifiedResponses.Inc()
			body = cached.Data
			if err := c.cache.Refresh(ctx, key, resp.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to refresh cache TTL")
			}
			return nil

		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			errClass = ErrorClassClient
			return ErrNotFound

		case resp.StatusCode >= 400:
			errClass = classify(resp, nil)
			return statusError(resp)

		default:
			defer resp.Body.Close()
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				errClass = ErrorClassNetwork
				return fmt.Errorf("read response body: %w", err)
			}
			body = data
			if c.cache != nil {
				entry := cache.EntryFromResponse(data, resp.Header)
				if err := c.cache.Set(ctx, key, entry); err != nil {
					c.logger.Warn().Err(err).Str("thing_id", thingID).Msg("Failed to cache thing")
				}
			}
			return nil
		}
	}, func(error) ErrorClass {
		return errClass
	})

	if retryErr != nil {
		return nil, retryErr
	}
	return body, nil
}

// PutAttribute updates a single property path of a thing, e.g.
// "features/temperature/properties/value".
func (c *Client) PutAttribute(ctx context.Context, thingID, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPut, "/things/"+url.PathEscape(thingID)+"/"+path, data, "things.put_attribute")
	if err != nil {
		return err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		resp.Body.Close()
		return nil
	}
	return statusError(resp)
}

// PutPolicy creates or overwrites a policy.
func (c *Client) PutPolicy(ctx context.Context, policyID string, policy json.RawMessage) error {
	resp, err := c.do(ctx, http.MethodPut, "/policies/"+url.PathEscape(policyID), policy, "policies.put")
	if err != nil {
		return err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		resp.Body.Close()
		return nil
	}
	return statusError(resp)
}

// DeletePolicy deletes a policy. 404 counts as success, same as things.
func (c *Client) DeletePolicy(ctx context.Context, policyID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/policies/"+url.PathEscape(policyID), nil, "policies.delete")
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil
	}
	return statusError(resp)
}

// CreateConnection creates a connection from raw connection JSON.
func (c *Client) CreateConnection(ctx context.Context, connection json.RawMessage) error {
	resp, err := c.do(ctx, http.MethodPost, "/connections", connection, "connections.create")
	if err != nil {
		return err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		resp.Body.Close()
		return nil
	}
	return statusError(resp)
}

// ListConnections returns the ids of all connections. Not every Ditto
// deployment exposes this endpoint; callers should tolerate an error here.
func (c *Client) ListConnections(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/connections", nil, "connections.list")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	defer resp.Body.Close()

	var connections []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&connections); err != nil {
		return nil, fmt.Errorf("decode connections: %w", err)
	}

	ids := make([]string, 0, len(connections))
	for _, conn := range connections {
		if conn.ID != "" {
			ids = append(ids, conn.ID)
		}
	}
	return ids, nil
}

// DeleteConnection deletes a connection. 404 counts as success.
func (c *Client) DeleteConnection(ctx context.Context, connectionID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/connections/"+url.PathEscape(connectionID), nil, "connections.delete")
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil
	}
	return statusError(resp)
}

// SearchPage fetches one page of thing ids from the search endpoint.
// An empty cursor requests the first page. Page requests are not retried;
// the collector treats a page failure as fatal for the collection phase.
func (c *Client) SearchPage(ctx context.Context, cursor string, pageSize int) (SearchPage, error) {
	option := fmt.Sprintf("size(%d)", pageSize)
	if cursor != "" {
		option += fmt.Sprintf(",cursor(%s)", cursor)
	}
	params := url.Values{
		"fields": {"thingId"},
		"option": {option},
	}

	resp, err := c.do(ctx, http.MethodGet, "/search/things?"+params.Encode(), nil, "search.things")
	if err != nil {
		return SearchPage{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return SearchPage{}, statusError(resp)
	}
	defer resp.Body.Close()

	var result struct {
		Items []struct {
			ThingID string `json:"thingId"`
		} `json:"items"`
		Cursor string `json:"cursor"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return SearchPage{}, fmt.Errorf("decode search page: %w", err)
	}

	page := SearchPage{Cursor: result.Cursor}
	for _, item := range result.Items {
		if item.ThingID != "" {
			page.ThingIDs = append(page.ThingIDs, item.ThingID)
		}
	}
	return page, nil
}

// SearchThings runs a filtered search and returns the raw result document.
func (c *Client) SearchThings(ctx context.Context, filter string, pageSize int) (json.RawMessage, error) {
	params := url.Values{
		"option": {fmt.Sprintf("size(%d)", pageSize)},
	}
	if filter != "" {
		params.Set("filter", filter)
	}

	resp, err := c.do(ctx, http.MethodGet, "/search/things?"+params.Encode(), nil, "search.things")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// CountThings returns the total number of things known to the search index.
func (c *Client) CountThings(ctx context.Context) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/search/things/count", nil, "search.count")
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, statusError(resp)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read count response: %w", err)
	}

	count, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", string(data), err)
	}
	return count, nil
}

// Close releases pooled connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
