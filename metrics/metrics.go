package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReplacementsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_replacements_started_total",
		Help: "Total number of segment replacements started.",
	}, []string{"table"})

	ReplacementsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_replacements_completed_total",
		Help: "Total number of segment replacements completed.",
	}, []string{"table"})

	ReplacementsReverted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_replacements_reverted_total",
		Help: "Total number of segment replacements reverted, including proactive reverts of conflicting entries.",
	}, []string{"table"})

	CASConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_cas_conflicts_total",
		Help: "Total number of lineage writes lost to a concurrent writer and retried.",
	}, []string{"table"})

	CASExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_cas_exhausted_total",
		Help: "Total number of operations that gave up after the retry budget.",
	}, []string{"table"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lineage_operation_duration_seconds",
		Help:    "Duration of lineage operations, including store round trips and retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CleanupEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_cleanup_enqueued_total",
		Help: "Total number of segment deletions handed to the cleanup trigger.",
	}, []string{"table"})

	CleanupDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lineage_cleanup_dropped_total",
		Help: "Total number of deletion requests dropped after exhausting delivery retries or overflowing the queue.",
	})

	CleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lineage_cleanup_failures_total",
		Help: "Total number of failed deletion attempts, including ones that were later retried.",
	})

	PanicsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_panics_recovered_total",
		Help: "Total number of panics recovered in background workers.",
	}, []string{"component"})
)
