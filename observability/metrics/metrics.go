// Package metrics exposes Prometheus metrics for the background-task
// connector and periodic scheduler. Register counters, histograms, and
// gauges here; Collector is constructed once during application startup via
// New(), which registers everything with the default registry using
// promauto, the same as the teacher's observability/metrics package.
//
// Exposed metrics:
//
//	backgroundtask_tasks_total             – total task outcomes (labels: type, status)
//	backgroundtask_task_duration_seconds    – task execution duration histogram (labels: type)
//	backgroundtask_task_retries_total       – total retry attempts (labels: type)
//	backgroundtask_retention_removed_total  – total tasks purged by the retention sweep
//	backgroundtask_scheduler_triggers_total – total periodic-scheduler callback firings (labels: schedule_id)
//	backgroundtask_scheduler_failures_total – total periodic-scheduler callback failures (labels: schedule_id)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector groups all Prometheus metrics exposed by the connector.
type Collector struct {
	TasksTotal        *prometheus.CounterVec
	TaskDuration      *prometheus.HistogramVec
	TaskRetriesTotal  *prometheus.CounterVec
	RetentionRemoved  prometheus.Counter
	SchedulerTriggers *prometheus.CounterVec
	SchedulerFailures *prometheus.CounterVec
}

// New registers and returns all connector Prometheus metrics.
func New() *Collector {
	return &Collector{
		TasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "backgroundtask_tasks_total",
			Help: "Total number of task outcomes recorded by the dispatcher.",
		}, []string{"type", "status"}),

		TaskDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backgroundtask_task_duration_seconds",
			Help:    "Histogram of task execution durations in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),

		TaskRetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "backgroundtask_task_retries_total",
			Help: "Total number of task retry attempts scheduled.",
		}, []string{"type"}),

		RetentionRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "backgroundtask_retention_removed_total",
			Help: "Total number of terminal tasks purged by the retention sweep.",
		}),

		SchedulerTriggers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "backgroundtask_scheduler_triggers_total",
			Help: "Total number of periodic scheduler callback firings.",
		}, []string{"schedule_id"}),

		SchedulerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "backgroundtask_scheduler_failures_total",
			Help: "Total number of periodic scheduler callback failures.",
		}, []string{"schedule_id"}),
	}
}
