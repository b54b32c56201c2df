// Package metrics exposes the relay's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons used with EventDropped.
const (
	DropReasonMalformed     = "malformed"
	DropReasonRateLimited   = "rate_limited"
	DropReasonNotJoined     = "not_joined"
	DropReasonAlreadyJoined = "already_joined"
	DropReasonRoomFull      = "room_full"
)

// Metrics bundles the relay's collectors. A single instance is created at
// startup and injected into the signaling server and bus; each instance owns
// its registry so tests don't collide on the global default.
type Metrics struct {
	registry *prometheus.Registry

	Connections prometheus.Gauge
	Rooms       prometheus.Gauge
	Relayed     *prometheus.CounterVec
	Dropped     *prometheus.CounterVec
	BusMessages *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_relay_connections",
			Help: "Current number of live websocket connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_relay_rooms",
			Help: "Current number of non-empty rooms.",
		}),
		Relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_relay_events_relayed_total",
			Help: "Signaling events fanned out to room members, by event type.",
		}, []string{"type"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_relay_events_dropped_total",
			Help: "Inbound events dropped without fan-out, by reason.",
		}, []string{"reason"}),
		BusMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_relay_bus_messages_total",
			Help: "Cross-instance bus messages, by direction.",
		}, []string{"direction"}),
	}

	m.registry.MustRegister(m.Connections, m.Rooms, m.Relayed, m.Dropped, m.BusMessages)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EventRelayed records a fan-out of one inbound event of the given type.
func (m *Metrics) EventRelayed(eventType string) {
	if m == nil {
		return
	}
	m.Relayed.WithLabelValues(eventType).Inc()
}

// EventDropped records an inbound event discarded for the given reason.
func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(reason).Inc()
}

// SetRooms records the current non-empty room count.
func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.Rooms.Set(float64(n))
}

// ConnOpened and ConnClosed track the live connection gauge.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

// BusPublished and BusReceived track cross-instance bus traffic.
func (m *Metrics) BusPublished() {
	if m == nil {
		return
	}
	m.BusMessages.WithLabelValues("published").Inc()
}

func (m *Metrics) BusReceived() {
	if m == nil {
		return
	}
	m.BusMessages.WithLabelValues("received").Inc()
}
