// Package metrics exposes batch conversion metrics for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksAddedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "videomorph_tasks_added_total",
			Help: "Total number of files queued for conversion",
		},
	)

	TasksRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "videomorph_tasks_rejected_total",
			Help: "Total number of files rejected as duplicate or invalid",
		},
	)

	TasksFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videomorph_tasks_finished_total",
			Help: "Total number of finished conversions by status",
		},
		[]string{"status"},
	)

	TaskBuildErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videomorph_task_build_errors_total",
			Help: "Total number of tasks skipped because their command could not be built",
		},
		[]string{"reason"},
	)

	LibraryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videomorph_library_errors_total",
			Help: "Total number of fatal encoder errors caught in its output",
		},
		[]string{"error"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "videomorph_conversion_duration_seconds",
			Help:    "Wall time spent converting one file",
			Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s to ~4.5h
		},
		[]string{"family"},
	)

	BatchRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "videomorph_batch_running",
			Help: "1 while a batch is being converted",
		},
	)

	OperationProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "videomorph_operation_progress_percent",
			Help: "Progress of the file being converted",
		},
	)

	ProcessProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "videomorph_process_progress_percent",
			Help: "Progress of the whole batch",
		},
	)
)

// RecordTaskAdded counts a queued or rejected file.
func RecordTaskAdded(added bool) {
	if added {
		TasksAddedTotal.Inc()
		return
	}
	TasksRejectedTotal.Inc()
}

// RecordTaskFinished counts a finished conversion and its wall time.
func RecordTaskFinished(status, family string, seconds float64) {
	TasksFinishedTotal.WithLabelValues(status).Inc()
	if seconds > 0 {
		ConversionDuration.WithLabelValues(family).Observe(seconds)
	}
}

// RecordBuildError counts a task skipped at command build time.
func RecordBuildError(reason string) {
	TaskBuildErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordLibraryError counts a fatal encoder error.
func RecordLibraryError(phrase string) {
	LibraryErrorsTotal.WithLabelValues(phrase).Inc()
}

// RecordProgress publishes the current progress percentages.
func RecordProgress(operation, process int) {
	OperationProgress.Set(float64(operation))
	ProcessProgress.Set(float64(process))
}

// SetBatchRunning flips the batch gauge and clears progress when a batch
// ends.
func SetBatchRunning(running bool) {
	if running {
		BatchRunning.Set(1)
		return
	}
	BatchRunning.Set(0)
	RecordProgress(0, 0)
}
