// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_queries_processed_total",
			Help: "Total number of natural-language queries processed",
		},
		[]string{"intent"},
	)

	QueriesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_queries_failed_total",
			Help: "Total number of queries that ended in a hard failure",
		},
		[]string{"intent", "error_code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "insight_stage_duration_seconds",
			Help: "Duration of each pipeline stage in seconds",
		},
		[]string{"stage"},
	)

	CompletionCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_completion_calls_total",
			Help: "Completion service calls by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)

	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "insight_active_sessions",
			Help: "Number of live conversation sessions per store backend",
		},
		[]string{"backend"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_result_cache_hits_total",
			Help: "Data access result cache hits and misses",
		},
		[]string{"outcome"},
	)
)
