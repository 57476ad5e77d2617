package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheOutcomes counts cache-aside resolutions by outcome
	// (cache_hit|cache_miss_fetched|cache_miss_stale_fallback|error).
	CacheOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickerdeck_cache_outcomes_total",
			Help: "Cache-aside read outcomes by cache key prefix",
		},
		[]string{"prefix", "outcome"},
	)

	// ProviderRequests counts outbound provider calls and their result
	// (ok|rate_limited|error).
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickerdeck_provider_requests_total",
			Help: "Outbound requests to external data providers",
		},
		[]string{"provider", "result"},
	)

	// SyncRows counts rows upserted by snapshot sync jobs.
	SyncRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickerdeck_sync_rows_total",
			Help: "Rows upserted into snapshot tables per sync job",
		},
		[]string{"job"},
	)

	// SyncErrors counts failed upsert batches per sync job.
	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickerdeck_sync_batch_errors_total",
			Help: "Failed upsert batches per sync job",
		},
		[]string{"job"},
	)

	// StreamReconnects counts live stream reconnect attempts.
	StreamReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickerdeck_stream_reconnects_total",
			Help: "Reconnect attempts made by the live trade stream listener",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tickerdeck_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
