// Package metrics exposes print queue and transport metrics to Prometheus.
//
//	posprint_jobs_submitted_total{job_type}   jobs accepted into the queue
//	posprint_jobs_started_total{job_type}     send attempts, retries included
//	posprint_jobs_completed_total{job_type}   jobs delivered to the printer
//	posprint_jobs_failed_total{job_type}      jobs dropped after the last retry
//	posprint_jobs_retried_total{job_type}     attempts that were requeued
//	posprint_queue_depth                      jobs waiting or printing
//	posprint_connection_state{state}          1 for the current state
//	posprint_send_duration_seconds{kind}      time spent in Send per transport
//
// Every method is safe on a nil *Collector so callers can run without
// metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "posprint"

// Collector holds the print subsystem metrics.
type Collector struct {
	jobsSubmitted *prometheus.CounterVec
	jobsStarted   *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobsRetried   *prometheus.CounterVec

	queueDepth      prometheus.Gauge
	connectionState *prometheus.GaugeVec
	sendDuration    *prometheus.HistogramVec

	mu        sync.Mutex
	lastState string
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	jobVec := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"job_type"})
	}

	c := &Collector{
		jobsSubmitted: jobVec("jobs_submitted_total", "Total number of print jobs submitted"),
		jobsStarted:   jobVec("jobs_started_total", "Total number of print attempts started"),
		jobsCompleted: jobVec("jobs_completed_total", "Total number of print jobs delivered"),
		jobsFailed:    jobVec("jobs_failed_total", "Total number of print jobs failed after all retries"),
		jobsRetried:   jobVec("jobs_retried_total", "Total number of print attempts requeued for retry"),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of jobs pending or printing",
		}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current printer connection state, 1 for the active state",
		}, []string{"state"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Time spent sending a job to the printer",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(
			c.jobsSubmitted,
			c.jobsStarted,
			c.jobsCompleted,
			c.jobsFailed,
			c.jobsRetried,
			c.queueDepth,
			c.connectionState,
			c.sendDuration,
		)
	}
	return c
}

func (c *Collector) JobSubmitted(jobType string) {
	if c == nil {
		return
	}
	c.jobsSubmitted.WithLabelValues(jobType).Inc()
}

func (c *Collector) JobStarted(jobType string) {
	if c == nil {
		return
	}
	c.jobsStarted.WithLabelValues(jobType).Inc()
}

func (c *Collector) JobCompleted(jobType string) {
	if c == nil {
		return
	}
	c.jobsCompleted.WithLabelValues(jobType).Inc()
}

func (c *Collector) JobFailed(jobType string) {
	if c == nil {
		return
	}
	c.jobsFailed.WithLabelValues(jobType).Inc()
}

func (c *Collector) JobRetried(jobType string) {
	if c == nil {
		return
	}
	c.jobsRetried.WithLabelValues(jobType).Inc()
}

func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

// SetConnectionState moves the 1 from the previous state to state.
func (c *Collector) SetConnectionState(state string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastState != "" && c.lastState != state {
		c.connectionState.WithLabelValues(c.lastState).Set(0)
	}
	c.connectionState.WithLabelValues(state).Set(1)
	c.lastState = state
}

func (c *Collector) ObserveSend(kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.sendDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// Handler serves the metrics registered with g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
