package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer"}, // "redis" or "memory"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"layer"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_cache_errors_total",
			Help: "Cache operations that failed and were degraded",
		},
		[]string{"layer", "operation"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shortlink_cache_size",
			Help: "Current number of items in cache",
		},
		[]string{"layer"},
	)

	// Resolution metrics
	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_resolutions_total",
			Help: "Resolutions by outcome",
		},
		[]string{"outcome"}, // "cache_hit", "store_hit", "not_found", "expired", "error"
	)

	LinksCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_links_created_total",
			Help: "Short links created",
		},
	)

	CodeEscalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_code_save_retries_total",
			Help: "Saves retried because of a unique constraint race",
		},
	)

	// Visit metrics
	VisitsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_visits_recorded_total",
			Help: "Visit recordings by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	VisitsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlink_visits_dropped_total",
			Help: "Visits dropped because the background queue was full or closed",
		},
	)

	VisitQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shortlink_visit_queue_depth",
			Help: "Visits waiting in the in-process queue",
		},
	)

	// Request metrics
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shortlink_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlink_requests_total",
			Help: "Total number of requests",
		},
		[]string{"method", "route", "status"},
	)

	// Database metrics
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shortlink_database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)
