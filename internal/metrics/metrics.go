// Package metrics exposes Prometheus collectors for the logon gateway.
// All methods are nil-safe: calls on a nil *Metrics are no-ops, so a
// gateway started with metrics disabled passes nil around.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "realmgate"

// Metrics holds the gateway collectors.
type Metrics struct {
	registry prometheus.Gatherer

	// ConnectionsTotal counts accepted connections.
	ConnectionsTotal prometheus.Counter

	// ConnectionsRejected counts connections refused at the limit.
	ConnectionsRejected prometheus.Counter

	// ActiveSessions tracks open sessions.
	ActiveSessions prometheus.Gauge

	// SessionPanics counts sessions torn down by a recovered panic.
	SessionPanics prometheus.Counter

	// PacketsTotal counts handled packets by opcode.
	PacketsTotal *prometheus.CounterVec

	// LogonResults counts challenge and proof outcomes.
	// Labels: step ("challenge", "proof", "reconnect"), result (protocol name).
	LogonResults *prometheus.CounterVec

	// StoreLatency observes account store query latency by operation.
	StoreLatency *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. If reg is nil,
// a private registry is used.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted client connections",
		}),
		ConnectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Total number of connections refused because the server was full",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of open logon sessions",
		}),
		SessionPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_panics_total",
			Help:      "Total number of sessions closed by a recovered panic",
		}),
		PacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Total number of handled client packets",
		}, []string{"opcode"}),
		LogonResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logon_results_total",
			Help:      "Logon step outcomes by result code",
		}, []string{"step", "result"}),
		StoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_query_seconds",
			Help:      "Account store query latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	m.ConnectionsTotal = registerOrReuse(reg, m.ConnectionsTotal).(prometheus.Counter)
	m.ConnectionsRejected = registerOrReuse(reg, m.ConnectionsRejected).(prometheus.Counter)
	m.ActiveSessions = registerOrReuse(reg, m.ActiveSessions).(prometheus.Gauge)
	m.SessionPanics = registerOrReuse(reg, m.SessionPanics).(prometheus.Counter)
	m.PacketsTotal = registerOrReuse(reg, m.PacketsTotal).(*prometheus.CounterVec)
	m.LogonResults = registerOrReuse(reg, m.LogonResults).(*prometheus.CounterVec)
	m.StoreLatency = registerOrReuse(reg, m.StoreLatency).(*prometheus.HistogramVec)

	return m
}

// registerOrReuse registers c, returning the already registered collector
// when an equal one exists. It panics on any other registration failure.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnectionOpened records an accepted connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ActiveSessions.Inc()
}

// ConnectionClosed records the end of a session.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// ConnectionRejected records a connection refused at the limit.
func (m *Metrics) ConnectionRejected() {
	if m == nil {
		return
	}
	m.ConnectionsRejected.Inc()
}

// SessionPanicked records a recovered session panic.
func (m *Metrics) SessionPanicked() {
	if m == nil {
		return
	}
	m.SessionPanics.Inc()
}

// PacketHandled records one packet.
func (m *Metrics) PacketHandled(opcode string) {
	if m == nil {
		return
	}
	m.PacketsTotal.WithLabelValues(opcode).Inc()
}

// LogonResult records a logon step outcome.
func (m *Metrics) LogonResult(step, result string) {
	if m == nil {
		return
	}
	m.LogonResults.WithLabelValues(step, result).Inc()
}

// ObserveStore records the latency of a store query.
func (m *Metrics) ObserveStore(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.StoreLatency.WithLabelValues(operation).Observe(seconds)
}
