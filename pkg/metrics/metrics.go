package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Acquisition metrics
	TilesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prefetch_tiles_fetched_total",
		Help: "Total number of tiles fetched from upstream and stored",
	}, []string{"provider"})

	TilesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prefetch_tiles_skipped_total",
		Help: "Total number of tiles skipped because they were already cached",
	}, []string{"provider"})

	TilesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prefetch_tiles_failed_total",
		Help: "Total number of tiles that failed to fetch or store",
	}, []string{"provider"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prefetch_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "prefetch_batch_duration_seconds",
		Help:    "Wall time of one scheduler batch",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	LedgerRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prefetch_ledger_records",
		Help: "Number of records left in the failure ledger after the last retry pass",
	})

	// Server metrics
	TilesRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_requests_total",
		Help: "Total number of tile requests",
	})

	TilesNotFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_not_found_total",
		Help: "Total number of tile requests answered with 404",
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total number of redis cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total number of redis cache misses",
	})

	// Redis metrics
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Duration of Redis operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_errors_total",
		Help: "Total number of Redis errors",
	}, []string{"operation"})
)
