// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	harvestItemsTotal          *prometheus.CounterVec
	harvestFetchAttemptsTotal  prometheus.Counter
	harvestBatchesTotal        prometheus.Counter
	harvestCommitFailuresTotal prometheus.Counter
	harvestAckFailuresTotal    prometheus.Counter
	harvestEnqueuedTotal       prometheus.Counter
	harvestDedupSkippedTotal   prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_items_total",
				Help: "Total work items processed, labeled by terminal outcome.",
			},
			[]string{"outcome"},
		)

		harvestFetchAttemptsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_fetch_attempts_total",
				Help: "Total detail-page fetch attempts, including retries.",
			},
		)

		harvestBatchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_queue_batches_total",
				Help: "Total queue claim rounds executed.",
			},
		)

		harvestCommitFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_commit_failures_total",
				Help: "Total record commits rejected or failed by the store.",
			},
		)

		harvestAckFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_ack_failures_total",
				Help: "Total failed queue acknowledgments (message will redeliver).",
			},
		)

		harvestEnqueuedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_enqueued_total",
				Help: "Total work items sent to the queue by the discovery phase.",
			},
		)

		harvestDedupSkippedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_dedup_skipped_total",
				Help: "Total enqueues suppressed by the per-run dedup set.",
			},
		)
	})
}

// ObserveItem records one terminal outcome.
func ObserveItem(outcome string) {
	if harvestItemsTotal != nil {
		harvestItemsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveFetchAttempts adds n fetch attempts.
func ObserveFetchAttempts(n int) {
	if harvestFetchAttemptsTotal != nil && n > 0 {
		harvestFetchAttemptsTotal.Add(float64(n))
	}
}

// ObserveBatch records one claim round.
func ObserveBatch() {
	if harvestBatchesTotal != nil {
		harvestBatchesTotal.Inc()
	}
}

// ObserveCommitFailure records one failed commit.
func ObserveCommitFailure() {
	if harvestCommitFailuresTotal != nil {
		harvestCommitFailuresTotal.Inc()
	}
}

// ObserveAckFailure records one failed acknowledgment.
func ObserveAckFailure() {
	if harvestAckFailuresTotal != nil {
		harvestAckFailuresTotal.Inc()
	}
}

// ObserveEnqueued records one successful producer-side send.
func ObserveEnqueued() {
	if harvestEnqueuedTotal != nil {
		harvestEnqueuedTotal.Inc()
	}
}

// ObserveDedupSkip records one suppressed duplicate enqueue.
func ObserveDedupSkip() {
	if harvestDedupSkippedTotal != nil {
		harvestDedupSkippedTotal.Inc()
	}
}
