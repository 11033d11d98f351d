// Package metrics provides Prometheus metrics for nightwatch.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	SessionsOpened   prometheus.Counter
	SessionsClosed   prometheus.Counter
	MessagesCaptured prometheus.Counter
	DeletionsTotal   *prometheus.CounterVec
	TickErrorsTotal  *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_sessions_opened_total",
			Help: "Total quiet-hours sessions opened.",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_sessions_closed_total",
			Help: "Total quiet-hours sessions closed.",
		}),
		MessagesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nightwatch_messages_captured_total",
			Help: "Total messages captured during open sessions.",
		}),
		DeletionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightwatch_deletions_total",
				Help: "Total purge deletion attempts by result.",
			},
			[]string{"result"},
		),
		TickErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightwatch_tick_errors_total",
				Help: "Total per-chat errors during controller ticks by stage.",
			},
			[]string{"stage"},
		),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nightwatch_active_sessions",
			Help: "Number of currently open quiet-hours sessions.",
		}),
		registry: reg,
	}

	reg.MustRegister(m.SessionsOpened)
	reg.MustRegister(m.SessionsClosed)
	reg.MustRegister(m.MessagesCaptured)
	reg.MustRegister(m.DeletionsTotal)
	reg.MustRegister(m.TickErrorsTotal)
	reg.MustRegister(m.ActiveSessions)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDeletion increments the deletion counter with result "deleted" or
// "failed".
func (m *Metrics) RecordDeletion(result string) {
	m.DeletionsTotal.WithLabelValues(result).Inc()
}

// RecordTickError increments the per-chat tick error counter.
func (m *Metrics) RecordTickError(stage string) {
	m.TickErrorsTotal.WithLabelValues(stage).Inc()
}
