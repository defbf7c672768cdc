// Package metrics exposes run outcomes and queue depth to Prometheus.
// Run counters accumulate from finalized MonitoringRun records; the engine
// itself never reports through shared process state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jobwatch/jobwatch/internal/model"
)

// Collector owns its own registry so tests and embedders never fight over
// the global one.
type Collector struct {
	registry *prometheus.Registry

	runsTotal       prometheus.Counter
	runsFailed      prometheus.Counter
	jobsChecked     prometheus.Counter
	jobsUpdated     prometheus.Counter
	errorsCounted   prometheus.Counter
	queueDepth      prometheus.Gauge
	lastRunDuration prometheus.Gauge
}

// NewCollector creates and registers all monitoring metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobwatch_runs_total",
			Help: "Total number of monitoring runs executed",
		}),
		runsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobwatch_runs_failed_total",
			Help: "Total number of runs that failed at run level",
		}),
		jobsChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobwatch_jobs_checked_total",
			Help: "Total number of job checks completed",
		}),
		jobsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobwatch_jobs_updated_total",
			Help: "Total number of checks that detected at least one change",
		}),
		errorsCounted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobwatch_job_errors_total",
			Help: "Total number of per-job errors across runs",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobwatch_queue_depth",
			Help: "Current number of due jobs",
		}),
		lastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobwatch_last_run_duration_seconds",
			Help: "Wall time of the most recent run",
		}),
	}

	c.registry.MustRegister(c.runsTotal, c.runsFailed, c.jobsChecked,
		c.jobsUpdated, c.errorsCounted, c.queueDepth, c.lastRunDuration)
	return c
}

// RecordRun folds one finalized run into the counters.
func (c *Collector) RecordRun(run model.MonitoringRun) {
	c.runsTotal.Inc()
	if run.Error != "" {
		c.runsFailed.Inc()
	}
	c.jobsChecked.Add(float64(run.JobsChecked))
	c.jobsUpdated.Add(float64(run.JobsUpdated))
	c.errorsCounted.Add(float64(run.ErrorsEncountered))
	if !run.CompletedAt.IsZero() && !run.StartedAt.IsZero() {
		c.lastRunDuration.Set(run.CompletedAt.Sub(run.StartedAt).Seconds())
	}
}

// SetQueueDepth publishes the current due-job count.
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// Handler returns the /metrics endpoint handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
