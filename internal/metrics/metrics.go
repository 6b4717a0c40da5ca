// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joescharf/autograde/internal/pipeline"
)

// Metrics holds the pipeline collectors on a private registry so that
// several instances can coexist in tests.
type Metrics struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	transitions *prometheus.CounterVec
	duration    prometheus.Histogram
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autograde",
			Name:      "runs_total",
			Help:      "Completed pipeline runs by result and error kind.",
		}, []string{"result", "error_kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autograde",
			Name:      "stage_entries_total",
			Help:      "Number of times each pipeline stage was entered.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "autograde",
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
	}
	m.registry.MustRegister(m.runs, m.transitions, m.duration)
	return m
}

// OnTransition counts stage entries. It matches pipeline.Options.OnTransition.
func (m *Metrics) OnTransition(_, to pipeline.State) {
	m.transitions.WithLabelValues(string(to)).Inc()
}

// Observe records a finished run.
func (m *Metrics) Observe(out pipeline.Outcome) {
	result, kind := "analyzed", ""
	switch {
	case out.Failure != nil:
		result, kind = "failed", string(out.Failure.Kind)
	case out.Grade != nil:
		result = "graded"
	}
	m.runs.WithLabelValues(result, kind).Inc()
	m.duration.Observe(out.Duration.Seconds())
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
