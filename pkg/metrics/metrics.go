// Package metrics provides the centralized Prometheus metrics registry
// for the Ditto bulk client. All metrics are defined in their respective
// packages (client, cache) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the bulk client.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - ditto_requests_total{operation, status} (Counter): Total requests by operation and HTTP status
//   - ditto_request_duration_seconds{operation} (Histogram): Request duration by operation
//   - ditto_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - ditto_retries_total{error_class} (Counter): Retry attempts by error class
//   - ditto_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - ditto_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - ditto_cache_hits_total (Counter): Cache hits
//   - ditto_cache_misses_total (Counter): Cache misses
//   - ditto_304_responses_total (Counter): 304 Not Modified responses
//   - ditto_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(ditto_cache_hits_total[5m])) /
//   (sum(rate(ditto_cache_hits_total[5m])) + sum(rate(ditto_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(ditto_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(ditto_request_duration_seconds_bucket[5m]))
//
//   # Deletion Throughput
//   rate(ditto_requests_total{operation="things.delete", status="204"}[1m])
