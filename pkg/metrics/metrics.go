// Package metrics exposes Prometheus collectors for the ingestion core:
// retrieval counters, latency distributions, rate limiter levels, and
// per-source health gauges. All collectors are registered on the default
// registry at init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal counts retrieval operations.
	// Labels: source, operation (fetch_latest/search), status (success/failure)
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newscore_fetches_total",
			Help: "Total number of retrieval operations",
		},
		[]string{"source", "operation", "status"},
	)

	// ArticlesFetched counts articles returned to callers.
	// Labels: source
	ArticlesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newscore_articles_fetched_total",
			Help: "Total number of articles returned",
		},
		[]string{"source"},
	)

	// FetchLatency tracks retrieval latency in seconds.
	// Labels: source, operation
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newscore_fetch_latency_seconds",
			Help:    "Retrieval latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source", "operation"},
	)

	// RemainingTokens tracks the rate limiter level per source.
	// Labels: source
	RemainingTokens = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "newscore_rate_limiter_remaining_tokens",
			Help: "Tokens currently available in the source rate limiter",
		},
		[]string{"source"},
	)

	// HealthStatus reports the monitor state per source:
	// 0 healthy, 1 degraded, 2 unhealthy.
	// Labels: source
	HealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "newscore_source_health_status",
			Help: "Source health state (0 healthy, 1 degraded, 2 unhealthy)",
		},
		[]string{"source"},
	)

	// ActiveAlerts tracks the number of unacknowledged alerts
	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "newscore_active_alerts",
			Help: "Number of unacknowledged health alerts",
		},
	)

	// RetryAttempts counts retries performed by the core.
	// Labels: source, operation
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newscore_retry_attempts_total",
			Help: "Total number of retry attempts",
		},
		[]string{"source", "operation"},
	)
)

// ObserveFetch records one completed retrieval attempt
func ObserveFetch(source, operation string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	FetchesTotal.WithLabelValues(source, operation, status).Inc()
	FetchLatency.WithLabelValues(source, operation).Observe(elapsed.Seconds())
}

// Timer measures one operation duration
type Timer struct {
	start time.Time
}

// NewTimer starts timing immediately
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since creation
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
