// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkerTasksTotal counts completed preprocessing tasks by final status.
	WorkerTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decipherd_worker_tasks_total",
		Help: "Total worker tasks by status (ok, timeout, error, rejected)",
	}, []string{"status"})

	// WorkerTaskDuration tracks task execution time, attempts included.
	WorkerTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "decipherd_worker_task_duration_seconds",
		Help:    "Worker task durations in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"status"})

	// WorkerRetriesTotal counts retry attempts after transient failures.
	WorkerRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decipherd_worker_retries_total",
		Help: "Total worker task retry attempts",
	})

	// WorkerActive tracks workers currently executing a task.
	WorkerActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "decipherd_worker_active",
		Help: "Number of workers currently executing a task",
	})

	// WorkerQueueDepth tracks tasks waiting in the queue.
	WorkerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "decipherd_worker_queue_depth",
		Help: "Number of tasks waiting in the worker queue",
	})
)

// ObserveWorkerTask records one finished (or rejected) task.
func ObserveWorkerTask(status string, duration time.Duration) {
	WorkerTasksTotal.WithLabelValues(status).Inc()
	WorkerTaskDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncWorkerRetry records a retry attempt.
func IncWorkerRetry() {
	WorkerRetriesTotal.Inc()
}
