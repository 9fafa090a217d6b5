// Package metrics exposes Prometheus counters/gauges for job
// lifecycle events and queue depth.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the counters/gauges the worker and dispatcher update.
type Metrics struct {
	JobsCreated   prometheus.Counter
	JobsSucceeded prometheus.Counter
	JobsFailed    prometheus.Counter
	JobsDismissed prometheus.Counter
	QueueDepth    prometheus.Gauge
	WorkersBusy   prometheus.Gauge
}

// New registers and returns a Metrics bundle against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wpys_jobs_created_total",
			Help: "Total number of jobs created by the dispatcher.",
		}),
		JobsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wpys_jobs_succeeded_total",
			Help: "Total number of jobs that reached SUCCEEDED.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wpys_jobs_failed_total",
			Help: "Total number of jobs that reached FAILED.",
		}),
		JobsDismissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wpys_jobs_dismissed_total",
			Help: "Total number of jobs that reached DISMISSED.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wpys_execute_queue_depth",
			Help: "Approximate depth of the execution queue.",
		}),
		WorkersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wpys_workers_busy",
			Help: "Number of workers currently running a job.",
		}),
	}
	reg.MustRegister(m.JobsCreated, m.JobsSucceeded, m.JobsFailed, m.JobsDismissed, m.QueueDepth, m.WorkersBusy)
	return m
}
