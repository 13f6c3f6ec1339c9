// Package metrics exposes the Prometheus registry of the user link enricher
// and instruments its HTTP API.
// Domain metrics are defined in their respective packages (lookup, enrich,
// cache) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the enricher.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

var (
	// HTTPRequests counts API requests by route and status code
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "userlink_http_requests_total",
		Help: "Total API requests by route and status code",
	}, []string{"route", "code"})

	// HTTPDuration observes API request latency by route
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "userlink_http_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps next and records request count and latency under route.
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Metrics Documentation
//
// Lookup Metrics (pkg/lookup):
//   - userlink_lookup_requests_total{status} (Counter): Link service requests by HTTP status
//   - userlink_lookup_duration_seconds (Histogram): Link service request duration
//   - userlink_lookup_errors_total{reason} (Counter): Failed lookups by reason
//   - userlink_lookup_retries_total{reason} (Counter): Retry attempts by reason
//   - userlink_lookup_retry_exhausted_total{reason} (Counter): Lookups that exhausted retries
//
// Enrichment Metrics (pkg/enrich):
//   - userlink_enrich_inflight (Gauge): Lookups currently in flight
//   - userlink_enrich_outcomes_total{status} (Counter): Outcomes by status (success, failure, skipped)
//   - userlink_enrich_batch_duration_seconds (Histogram): Batch duration
//
// Cache Metrics (pkg/cache):
//   - userlink_cache_hits_total (Counter): Link cache hits
//   - userlink_cache_misses_total (Counter): Link cache misses
//   - userlink_cache_errors_total{operation} (Counter): Cache operation errors
//
// HTTP Metrics (pkg/metrics):
//   - userlink_http_requests_total{route, code} (Counter): API requests
//   - userlink_http_request_duration_seconds{route} (Histogram): API latency
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(userlink_cache_hits_total[5m])) /
//   (sum(rate(userlink_cache_hits_total[5m])) + sum(rate(userlink_cache_misses_total[5m])))
//
//   # Enrichment Failure Ratio
//   sum(rate(userlink_enrich_outcomes_total{status="failure"}[5m])) /
//   sum(rate(userlink_enrich_outcomes_total[5m]))
//
//   # Lookup Timeouts
//   rate(userlink_lookup_errors_total{reason="timeout"}[5m])
//
//   # P95 Batch Latency
//   histogram_quantile(0.95, rate(userlink_enrich_batch_duration_seconds_bucket[5m]))
