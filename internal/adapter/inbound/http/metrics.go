// Package http provides the HTTP-facing guard adapter: a middleware that
// enforces resolver verdicts and the Prometheus metrics it records.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for RouteGuard.
// Pass to components that need to record metrics.
type Metrics struct {
	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram
	ResolutionFailures prometheus.Counter
	CompiledRules      prometheus.Gauge
	DecisionCacheSize  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ResolutionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "routeguard",
				Name:      "resolutions_total",
				Help:      "Total policy resolutions by outcome",
			},
			[]string{"outcome"}, // outcome=allowed/denied/denied_no_rule/config_error_no_rule
		),
		ResolutionDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "routeguard",
				Name:      "resolution_duration_seconds",
				Help:      "Policy resolution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ResolutionFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "routeguard",
				Name:      "resolution_failures_total",
				Help:      "Total resolutions that failed (source unavailable, evaluator error)",
			},
		),
		CompiledRules: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "routeguard",
				Name:      "compiled_rules",
				Help:      "Number of rules in the current compiled rule set",
			},
		),
		DecisionCacheSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "routeguard",
				Name:      "decision_cache_size",
				Help:      "Number of cached authorization verdicts",
			},
		),
	}
}
