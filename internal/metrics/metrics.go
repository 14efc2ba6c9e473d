// Package metrics exposes relay counters to Prometheus.
//
// A Metrics value is both a session.Recorder (validation results) and a
// dispatch.Observer (dispatch outcomes), and also tracks live WebSocket
// connections. Each Metrics owns its registry so tests and multiple
// instances never collide on the default one.
package metrics

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/tuya-relay/internal/command"
	"github.com/nerrad567/tuya-relay/internal/dispatch"
)

const namespace = "tuyarelay"

// Dispatch result label values.
const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	messages          *prometheus.CounterVec
	dispatches        *prometheus.CounterVec
	dispatchLatency   *prometheus.HistogramVec
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter

	// Mirrors for the JSON snapshot.
	received, accepted, malformed, unrecognized atomic.Uint64
	sent, failed                                atomic.Uint64
	active                                      atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	MessagesReceived     uint64 `json:"messages_received"`
	MessagesAccepted     uint64 `json:"messages_accepted"`
	MessagesMalformed    uint64 `json:"messages_malformed"`
	MessagesUnrecognized uint64 `json:"messages_unrecognized"`
	DispatchesSent       uint64 `json:"dispatches_sent"`
	DispatchesFailed     uint64 `json:"dispatches_failed"`
	ActiveConnections    int64  `json:"active_connections"`
}

// New creates Metrics with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "total",
			Help:      "Inbound control messages by validation result.",
		}, []string{"reason"}),
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Remote command dispatches by device type and result.",
		}, []string{"device_type", "result"}),
		dispatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Remote command round-trip time.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6.4s
		}, []string{"device_type"}),
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Currently open WebSocket connections.",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_total",
			Help:      "WebSocket connections accepted since start.",
		}),
	}
}

// RecordValidation implements session.Recorder.
func (m *Metrics) RecordValidation(_ context.Context, _ string, r command.Result) {
	m.messages.WithLabelValues(string(r.Reason)).Inc()
	m.received.Add(1)
	switch r.Reason {
	case command.ReasonAccepted:
		m.accepted.Add(1)
	case command.ReasonMalformed:
		m.malformed.Add(1)
	case command.ReasonUnrecognized:
		m.unrecognized.Add(1)
	}
}

// ObserveDispatch implements dispatch.Observer.
//
// Only catalog-validated device types reach the dispatcher, so the
// device_type label stays bounded.
func (m *Metrics) ObserveDispatch(_ context.Context, o dispatch.Outcome) {
	result := ResultSent
	if o.Success {
		m.sent.Add(1)
	} else {
		result = ResultFailed
		m.failed.Add(1)
	}
	m.dispatches.WithLabelValues(o.Meta.DeviceType, result).Inc()
	m.dispatchLatency.WithLabelValues(o.Meta.DeviceType).Observe(o.Duration.Seconds())
}

// ConnectionOpened records a new WebSocket connection.
func (m *Metrics) ConnectionOpened() {
	m.connectionsActive.Inc()
	m.connectionsTotal.Inc()
	m.active.Add(1)
}

// ConnectionClosed records a closed WebSocket connection.
func (m *Metrics) ConnectionClosed() {
	m.connectionsActive.Dec()
	m.active.Add(-1)
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		MessagesReceived:     m.received.Load(),
		MessagesAccepted:     m.accepted.Load(),
		MessagesMalformed:    m.malformed.Load(),
		MessagesUnrecognized: m.unrecognized.Load(),
		DispatchesSent:       m.sent.Load(),
		DispatchesFailed:     m.failed.Load(),
		ActiveConnections:    m.active.Load(),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
