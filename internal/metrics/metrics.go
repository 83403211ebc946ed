// Package metrics exposes Prometheus collectors for the sync engine.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncFetchAttemptsTotal   *prometheus.CounterVec
	syncBlockedPagesTotal    *prometheus.CounterVec
	syncUnitsTotal           *prometheus.CounterVec
	syncUpsertsTotal         *prometheus.CounterVec
	syncFetchDurationSeconds *prometheus.HistogramVec
	syncActiveWorkers        prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple
// times.
func Init() {
	once.Do(func() {
		syncFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_fetch_attempts_total",
				Help: "Total page fetch attempts, labeled by page kind and result.",
			},
			[]string{"kind", "result"},
		)

		syncBlockedPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_blocked_pages_total",
				Help: "Total fetches classified as anti-bot challenges, labeled by page kind.",
			},
			[]string{"kind"},
		)

		syncUnitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_units_total",
				Help: "Total sync units processed, labeled by page kind and status.",
			},
			[]string{"kind", "status"},
		)

		syncUpsertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_upserts_total",
				Help: "Total reconcile outcomes, labeled by entity kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		syncFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_fetch_duration_seconds",
				Help:    "Histogram of page load latencies, labeled by page kind.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		syncActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sync_active_workers",
				Help: "Number of unit workers currently running.",
			},
		)
	})
}

// RecordFetchAttempt counts one fetch attempt and its latency.
func RecordFetchAttempt(kind, result string, d time.Duration) {
	if syncFetchAttemptsTotal == nil {
		return
	}
	syncFetchAttemptsTotal.WithLabelValues(kind, result).Inc()
	syncFetchDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordBlocked counts one blocked-page classification.
func RecordBlocked(kind string) {
	if syncBlockedPagesTotal == nil {
		return
	}
	syncBlockedPagesTotal.WithLabelValues(kind).Inc()
}

// RecordUnit counts one finished unit.
func RecordUnit(kind, status string) {
	if syncUnitsTotal == nil {
		return
	}
	syncUnitsTotal.WithLabelValues(kind, status).Inc()
}

// RecordUpsert counts one reconcile outcome.
func RecordUpsert(kind, outcome string) {
	if syncUpsertsTotal == nil {
		return
	}
	syncUpsertsTotal.WithLabelValues(kind, outcome).Inc()
}

// WorkerStarted increments the active worker gauge.
func WorkerStarted() {
	if syncActiveWorkers != nil {
		syncActiveWorkers.Inc()
	}
}

// WorkerStopped decrements the active worker gauge.
func WorkerStopped() {
	if syncActiveWorkers != nil {
		syncActiveWorkers.Dec()
	}
}
