// Package metrics exposes Prometheus collectors for the chat engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parley"

// Command outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeDropped = "dropped"
)

// Metrics owns a private registry so tests can create as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connections   prometheus.Gauge
	commands      *prometheus.CounterVec
	droppedEvents *prometheus.CounterVec
	restRequests  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Live websocket connections.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Inbound channel events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Outbound events dropped because the connection was too slow.",
		}, []string{"event"}),
		restRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.commands,
		m.droppedEvents,
		m.restRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

// Command counts one inbound channel event.
func (m *Metrics) Command(kind, outcome string) {
	if m != nil {
		m.commands.WithLabelValues(kind, outcome).Inc()
	}
}

// DroppedEvent counts one outbound event that did not fit the client's buffer.
func (m *Metrics) DroppedEvent(event string) {
	if m != nil {
		m.droppedEvents.WithLabelValues(event).Inc()
	}
}

// Request counts one HTTP request or websocket session.
func (m *Metrics) Request(route, code string) {
	if m != nil {
		m.restRequests.WithLabelValues(route, code).Inc()
	}
}
