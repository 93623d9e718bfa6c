// Package metrics 定义协同过滤相关的 Prometheus 指标，注册到默认 Registry。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 估计结果
const (
	OutcomeDefined   = "defined"
	OutcomeUndefined = "undefined"
	OutcomeError     = "error"
)

var (
	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cfkit_recommend_duration_seconds",
			Help:    "Duration of Recommend calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"recommender"},
	)

	EstimatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfkit_estimates_total",
			Help: "Total number of preference estimates by outcome",
		},
		[]string{"recommender", "outcome"},
	)

	CandidatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfkit_candidates_dropped_total",
			Help: "Total number of Top-N candidates dropped before ranking",
		},
		[]string{"reason"}, // "undefined", "rescorer", "not_found"
	)

	DiffIndexPairs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cfkit_diff_index_pairs",
			Help: "Number of item pairs in the most recently built difference index",
		},
	)

	DiffIndexBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cfkit_diff_index_build_duration_seconds",
			Help:    "Duration of difference index builds in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cfkit_store_breaker_state",
			Help: "Circuit breaker state of a store backend (0=closed, 1=half-open, 2=open)",
		},
		[]string{"store"},
	)

	StoreBreakerRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfkit_store_breaker_rejected_total",
			Help: "Total number of store calls rejected by an open circuit breaker",
		},
		[]string{"store"},
	)

	RecallSourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfkit_recall_source_errors_total",
			Help: "Total number of failed recall sources in a fanout",
		},
		[]string{"source"},
	)
)

// ObserveRecommend 记录一次 Recommend 的耗时，用法：defer metrics.ObserveRecommend(name, time.Now())
func ObserveRecommend(recommender string, start time.Time) {
	RecommendDuration.WithLabelValues(recommender).Observe(time.Since(start).Seconds())
}

// RecordEstimate 按结果累计一次估计。
func RecordEstimate(recommender string, ok bool, err error) {
	outcome := OutcomeDefined
	switch {
	case err != nil:
		outcome = OutcomeError
	case !ok:
		outcome = OutcomeUndefined
	}
	EstimatesTotal.WithLabelValues(recommender, outcome).Inc()
}
