// Package metrics exposes Prometheus counters and histograms for command
// executions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "steprun"

// Recorder collects execution metrics. A nil *Recorder discards
// observations.
type Recorder struct {
	started   *prometheus.CounterVec
	handled   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	truncated *prometheus.CounterVec
	registry  *prometheus.Registry
}

// NewRecorder creates a Recorder registered on its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_started_total",
			Help:      "Total number of executions started.",
		}, []string{"kind"}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_handled_total",
			Help:      "Total number of executions completed, by status.",
		}, []string{"kind", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Histogram of execution wall time in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		truncated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_truncated_total",
			Help:      "Executions whose output streams were cut off after the drain grace period.",
		}, []string{"kind"}),
		registry: prometheus.NewRegistry(),
	}
	r.registry.MustRegister(r)
	return r
}

// Start counts an execution as started.
func (r *Recorder) Start(kind string) {
	if r == nil {
		return
	}
	r.started.WithLabelValues(kind).Inc()
}

// Observe records a finished execution.
func (r *Recorder) Observe(kind, status string, d time.Duration, truncated bool) {
	if r == nil {
		return
	}
	r.handled.WithLabelValues(kind, status).Inc()
	r.duration.WithLabelValues(kind).Observe(d.Seconds())
	if truncated {
		r.truncated.WithLabelValues(kind).Inc()
	}
}

// Registry returns the registry the recorder is registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Describe implements prometheus.Collector.
func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	r.started.Describe(ch)
	r.handled.Describe(ch)
	r.duration.Describe(ch)
	r.truncated.Describe(ch)
}

// Collect implements prometheus.Collector.
func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	r.started.Collect(ch)
	r.handled.Collect(ch)
	r.duration.Collect(ch)
	r.truncated.Collect(ch)
}
