// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// CacheHitsTotal counts query-result cache hits.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	// CacheMissesTotal counts query-result cache misses.
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// DBQueryDuration measures database query latency.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// DBPoolConnections reports pool connections by state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Database pool connections by state",
		},
		[]string{"state"},
	)

	// ActiveConnections tracks current in-flight requests.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of active connections",
		},
	)

	// DatasetsCreatedTotal counts datasets created.
	DatasetsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datasets_created_total",
			Help: "Total number of datasets created",
		},
	)

	// PivotQueriesTotal counts pivot queries by aggregation function.
	PivotQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pivot_queries_total",
			Help: "Total number of pivot queries by aggregation function",
		},
		[]string{"function"},
	)

	// TreeBuildDuration measures how long building a pivot tree takes.
	TreeBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pivot_tree_build_duration_seconds",
			Help:    "Pivot tree build duration in seconds",
			Buckets: prometheus.ExponentialBuckets(.0001, 4, 10),
		},
	)

	// TreeRowsTotal counts rows inserted into pivot trees.
	TreeRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pivot_tree_rows_total",
			Help: "Total number of rows inserted into pivot trees",
		},
	)

	// RateLimitedTotal counts rate-limited requests.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Total number of rate-limited requests",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records an HTTP request metric.
func RecordRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit.
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss.
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPoolStats publishes connection pool gauges.
func RecordPoolStats(total, idle, acquired int32) {
	DBPoolConnections.WithLabelValues("total").Set(float64(total))
	DBPoolConnections.WithLabelValues("idle").Set(float64(idle))
	DBPoolConnections.WithLabelValues("acquired").Set(float64(acquired))
}

// RecordDatasetCreated records a dataset creation.
func RecordDatasetCreated() {
	DatasetsCreatedTotal.Inc()
}

// RecordPivotQuery records a pivot query.
func RecordPivotQuery(function string) {
	PivotQueriesTotal.WithLabelValues(function).Inc()
}

// RecordTreeBuild records a tree build of rows rows.
func RecordTreeBuild(rows int, duration time.Duration) {
	TreeBuildDuration.Observe(duration.Seconds())
	TreeRowsTotal.Add(float64(rows))
}

// RecordRateLimited records a rate-limited request.
func RecordRateLimited() {
	RateLimitedTotal.Inc()
}
