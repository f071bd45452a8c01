package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_hits_total",
			Help: "Cache reads served from a fresh entry, by domain",
		},
		[]string{"domain"},
	)

	CacheStaleServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_stale_served_total",
			Help: "Cache reads served from a stale entry while a refetch runs, by domain",
		},
		[]string{"domain"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_misses_total",
			Help: "Cache reads that required a backend fetch, by domain",
		},
		[]string{"domain"},
	)

	CoalescedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_coalesced_requests_total",
			Help: "Requests that attached to an already in-flight fetch, by domain",
		},
		[]string{"domain"},
	)

	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_fetches_total",
			Help: "Backend fetches started by the executor, by domain and outcome",
		},
		[]string{"domain", "status"},
	)

	FetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_fetch_retries_total",
			Help: "Automatic fetch retries after a transient failure, by domain",
		},
		[]string{"domain"},
	)

	InvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querycache_invalidations_total",
			Help: "Explicit cache invalidations, by scope (key, domain, reset)",
		},
		[]string{"scope"},
	)

	StoreEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "querycache_store_entries",
			Help: "Current number of entries in the cache store",
		},
	)

	ScanBlocksScannedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_blocks_scanned_total",
			Help: "Blocks examined by scan pipelines",
		},
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_duration_seconds",
			Help:    "Scan pipeline duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"kind"},
	)

	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_requests_total",
			Help: "Total number of RPC requests by provider and method",
		},
		[]string{"provider", "method"},
	)

	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_errors_total",
			Help: "Total number of RPC errors by provider and method",
		},
		[]string{"provider", "method"},
	)

	RPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"provider", "method"},
	)

	CurrentHead = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chain_head_height",
			Help: "Latest observed chain height",
		},
	)

	ChainResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chain_resets_total",
			Help: "Detected dev-node chain resets (height regressions)",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_connected_clients",
			Help: "Currently connected stream clients",
		},
	)
)
