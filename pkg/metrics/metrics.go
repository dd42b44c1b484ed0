// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VersionsAddedTotal tracks versions written through the gateway by origin
	VersionsAddedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "versions",
			Name:      "added_total",
			Help:      "Total number of subtitle versions added by origin",
		},
		[]string{"language_code", "origin"},
	)

	// AddVersionDuration tracks write gateway latency in seconds
	AddVersionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "versions",
			Name:      "add_duration_seconds",
			Help:      "Duration of write gateway version adds in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// RollbacksTotal tracks rollback versions created
	RollbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "versions",
			Name:      "rollbacks_total",
			Help:      "Total number of rollback versions created",
		},
	)

	// VersionConflictsTotal tracks numbering races surfaced to callers
	VersionConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "versions",
			Name:      "conflicts_total",
			Help:      "Total number of version numbering conflicts",
		},
	)

	// VersionsNukedTotal tracks versions removed by language deletion
	VersionsNukedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "versions",
			Name:      "nuked_total",
			Help:      "Total number of versions removed by language deletion",
		},
	)

	// WritelockConflictsTotal tracks writelock acquisitions denied to a session
	WritelockConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "writelock",
			Name:      "conflicts_total",
			Help:      "Total number of writelock acquisitions denied",
		},
	)

	// TipCacheHits tracks tip cache hits by view
	TipCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "tip_cache",
			Name:      "hits_total",
			Help:      "Total number of tip cache hits",
		},
		[]string{"view"},
	)

	// TipCacheMisses tracks tip cache misses by view
	TipCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "tip_cache",
			Name:      "misses_total",
			Help:      "Total number of tip cache misses",
		},
		[]string{"view"},
	)

	// SignoffRecountsTotal tracks full signoff counter recomputations
	SignoffRecountsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "collaboration",
			Name:      "signoff_recounts_total",
			Help:      "Total number of signoff counter recomputations",
		},
	)

	// EventsPublishedTotal tracks lifecycle events by type and status
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of lifecycle events published by type and status",
		},
		[]string{"event_type", "status"},
	)
)

// RecordVersionAdded records a gateway write
func RecordVersionAdded(languageCode, origin string, durationSeconds float64) {
	VersionsAddedTotal.WithLabelValues(languageCode, origin).Inc()
	AddVersionDuration.Observe(durationSeconds)
}

// RecordEventPublished records a lifecycle event publish attempt
func RecordEventPublished(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}
