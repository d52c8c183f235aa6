// Package metrics owns the process's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so tests never need a registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	commands      *prometheus.CounterVec
	commandTime   *prometheus.HistogramVec
	txRetries     *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	outboxRelayed prometheus.Counter
	outboxErrors  prometheus.Counter
	wsClients     prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_commands_total",
				Help: "Commands handled, by name and result kind",
			},
			[]string{"command", "result"},
		),
		commandTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fulfillment_command_duration_seconds",
				Help:    "Wall time per command including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		txRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_tx_retries_total",
				Help: "Transactions re-run after a version or serialization conflict",
			},
			[]string{"command"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fulfillment_transitions_total",
				Help: "Committed state transitions by entity and target state",
			},
			[]string{"entity", "state"},
		),
		outboxRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fulfillment_outbox_relayed_total",
			Help: "Outbox events handed to sinks",
		}),
		outboxErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fulfillment_outbox_errors_total",
			Help: "Relay rounds that failed to publish or mark",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fulfillment_ws_clients",
			Help: "Connected websocket subscribers",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands, m.commandTime, m.txRetries, m.transitions,
		m.outboxRelayed, m.outboxErrors, m.wsClients,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Command(name, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name, result).Inc()
	m.commandTime.WithLabelValues(name).Observe(took.Seconds())
}

func (m *Metrics) Retry(name string) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(name).Inc()
}

func (m *Metrics) Transition(entity, state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, state).Inc()
}

func (m *Metrics) Relayed(n int) {
	if m == nil {
		return
	}
	m.outboxRelayed.Add(float64(n))
}

func (m *Metrics) RelayError() {
	if m == nil {
		return
	}
	m.outboxErrors.Inc()
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.wsClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.wsClients.Dec()
}
