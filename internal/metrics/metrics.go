// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "records"

var (
	// BackupCaptures counts capture attempts by trigger and outcome.
	BackupCaptures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backup",
		Name:      "captures_total",
		Help:      "Snapshot captures by trigger and status.",
	}, []string{"trigger", "status"})

	// CaptureDuration observes how long a full capture takes.
	CaptureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backup",
		Name:      "capture_duration_seconds",
		Help:      "Time spent enumerating collections and writing a snapshot.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// RestoredRecords counts replayed records by collection and result.
	RestoredRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "restore",
		Name:      "records_total",
		Help:      "Records replayed during restore by collection and result.",
	}, []string{"collection", "result"})

	// SkippedTicks counts scheduler ticks dropped by the overlap guard.
	SkippedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "skipped_ticks_total",
		Help:      "Scheduler ticks skipped because a capture was still running.",
	})

	// DBConnected is 1 while the storage engine is reachable.
	DBConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "connected",
		Help:      "Whether the database connection is up.",
	})

	// CollectionRecords is the latest record count per collection.
	CollectionRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "collection_records",
		Help:      "Number of records stored per collection.",
	}, []string{"collection"})

	// HostMemoryUsed is the host memory usage in percent.
	HostMemoryUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "host",
		Name:      "memory_used_percent",
		Help:      "Host memory usage in percent.",
	})
)

// SetDBConnected is a state hook for the database connector.
func SetDBConnected(connected bool) {
	if connected {
		DBConnected.Set(1)
		return
	}
	DBConnected.Set(0)
}
