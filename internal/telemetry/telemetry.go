// Package telemetry exposes Prometheus metrics for the harvest pipeline.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_items_total",
			Help: "Total number of content items processed, labeled by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Histogram of detail fetch latencies, labeled by content type.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	fetchRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_fetch_retries_total",
			Help: "Total number of retried detail fetch attempts.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_rate_limit_delay_seconds",
			Help:    "Histogram of time spent waiting on the shared rate limiter.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	dumpIDsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_dump_ids_total",
			Help: "Total number of IDs parsed out of daily dump files, labeled by type.",
		},
		[]string{"type"},
	)

	pendingItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harvester_pending_items",
			Help: "Number of items currently eligible for processing, labeled by type.",
		},
		[]string{"type"},
	)

	checkpointsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_checkpoints_total",
			Help: "Total number of completion checkpoints reached.",
		},
	)
)

// IncItem records the outcome of one processed item.
func IncItem(contentType, outcome string) {
	itemsTotal.WithLabelValues(contentType, outcome).Inc()
}

// ObserveFetch records the duration of one detail fetch.
func ObserveFetch(contentType string, d time.Duration) {
	fetchDurationSeconds.WithLabelValues(contentType).Observe(d.Seconds())
}

// IncFetchRetry counts one retried fetch attempt.
func IncFetchRetry() {
	fetchRetriesTotal.Inc()
}

// ObserveRateLimitDelay records time a caller spent blocked on the limiter.
func ObserveRateLimitDelay(d time.Duration) {
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// AddDumpIDs counts IDs extracted from a dump file.
func AddDumpIDs(dumpType string, n int) {
	dumpIDsTotal.WithLabelValues(dumpType).Add(float64(n))
}

// SetPending publishes the current eligible backlog size for a content type.
func SetPending(contentType string, n int64) {
	pendingItems.WithLabelValues(contentType).Set(float64(n))
}

// IncCheckpoint counts one completion checkpoint.
func IncCheckpoint() {
	checkpointsTotal.Inc()
}
