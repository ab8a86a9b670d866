// Package metrics provides Prometheus metrics for filesystem operations.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editorfs_operations_total",
			Help: "Total filesystem operations by backend, operation and outcome",
		},
		[]string{"backend", "op", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "editorfs_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	archiveEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editorfs_archive_entries_total",
			Help: "Total entries reported by compress and extract tasks",
		},
		[]string{"op"},
	)

	tempFilesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "editorfs_tempfiles_removed_total",
			Help: "Stale temp files removed from the cache directory",
		},
	)
)

// Status labels for RecordOperation.
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusUnsupported = "unsupported"
	StatusCanceled    = "canceled"
)

// RecordOperation records one completed filesystem call.
func RecordOperation(backend, op, status string, duration time.Duration) {
	operationsTotal.WithLabelValues(backend, op, status).Inc()
	operationDuration.WithLabelValues(backend, op).Observe(duration.Seconds())
}

// RecordArchiveEntry counts one progress item of a compress or extract task.
func RecordArchiveEntry(op string) {
	archiveEntriesTotal.WithLabelValues(op).Inc()
}

// RecordTempFilesRemoved adds n to the janitor's removal count.
func RecordTempFilesRemoved(n int) {
	tempFilesRemoved.Add(float64(n))
}

// WriteText dumps the default registry in the Prometheus text format.
func WriteText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
