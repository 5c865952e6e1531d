// metrics — Prometheus-метрики сервиса (регистрируются в default registry,
// отдаются promhttp на служебном порту).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Циклы обновления.
	RefreshCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infomatrix_refresh_cycles_total",
			Help: "Total number of refresh cycles by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "infomatrix_refresh_duration_seconds",
			Help:    "Refresh cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PostsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infomatrix_posts_inserted_total",
			Help: "Total number of newly inserted posts by source",
		},
		[]string{"source"},
	)

	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infomatrix_source_failures_total",
			Help: "Total number of per-source fetch/parse failures by reason",
		},
		[]string{"source", "reason"},
	)

	// Кэш.
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infomatrix_cache_requests_total",
			Help: "Total number of cache lookups by result (hit/miss/error/disabled)",
		},
		[]string{"result"},
	)
)

// Результаты обращения к кэшу для метки result.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheError    = "error"
	CacheDisabled = "disabled"
)
