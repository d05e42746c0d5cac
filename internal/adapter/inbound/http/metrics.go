// Package http provides the HTTP transport adapter for the policy service.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for agentvault.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	FailSecureTotal    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentvault",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "agentvault",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		EvaluationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentvault",
				Name:      "policy_evaluations_total",
				Help:      "Total transaction evaluations",
			},
			[]string{"decision"}, // decision=allow/deny/require_approval
		),
		EvaluationDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "agentvault",
				Name:      "policy_evaluation_duration_seconds",
				Help:      "Transaction evaluation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		FailSecureTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "agentvault",
				Name:      "fail_secure_denies_total",
				Help:      "Evaluations that failed internally and were substituted with a deny",
			},
		),
	}
}
