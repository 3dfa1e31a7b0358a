// Package metrics exposes Prometheus collectors for the aggregator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kpm"

// Collectors groups the aggregator's Prometheus instruments. A nil
// *Collectors is valid and records nothing.
type Collectors struct {
	registry        *prometheus.Registry
	events          *prometheus.CounterVec
	classifications *prometheus.CounterVec
	flushes         prometheus.Counter
	flushedProjects prometheus.Counter
	submissions     *prometheus.CounterVec
	activeProjects  prometheus.Gauge
}

// New creates collectors registered on a fresh registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Editor events received, by type and outcome.",
		}, []string{"type", "outcome"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Content changes classified, by kind.",
		}, []string{"kind"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Flush ticks processed.",
		}),
		flushedProjects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushed_projects_total",
			Help:      "Project aggregates handed to the sink.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Sink submissions, by result.",
		}, []string{"result"}),
		activeProjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_projects",
			Help:      "Project aggregates in the current window.",
		}),
	}

	c.registry.MustRegister(
		c.events,
		c.classifications,
		c.flushes,
		c.flushedProjects,
		c.submissions,
		c.activeProjects,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns an http.Handler serving the /metrics scrape endpoint.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Event records one inbound event.
func (c *Collectors) Event(eventType, outcome string) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(eventType, outcome).Inc()
}

// Classified records one classified change.
func (c *Collectors) Classified(kind string) {
	if c == nil {
		return
	}
	c.classifications.WithLabelValues(kind).Inc()
}

// Flushed records a flush tick and the number of aggregates it emitted.
func (c *Collectors) Flushed(projects int) {
	if c == nil {
		return
	}
	c.flushes.Inc()
	c.flushedProjects.Add(float64(projects))
}

// Submitted records the result of one sink submission.
func (c *Collectors) Submitted(result string) {
	if c == nil {
		return
	}
	c.submissions.WithLabelValues(result).Inc()
}

// SetActiveProjects sets the active project gauge.
func (c *Collectors) SetActiveProjects(n int) {
	if c == nil {
		return
	}
	c.activeProjects.Set(float64(n))
}
