package broker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BioHazard786/flipboard/internal/protocol"
)

// Metrics is the broker's Prometheus instrumentation. A nil *Metrics
// records nothing.
type Metrics struct {
	Connections   prometheus.Gauge
	Rooms         prometheus.Gauge
	Participants  *prometheus.GaugeVec
	Registrations *prometheus.CounterVec
	Commands      *prometheus.CounterVec
}

// NewMetrics creates the broker metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flipboard_broker_connections",
			Help: "Current number of open relay websocket connections",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flipboard_broker_rooms",
			Help: "Current number of rooms with at least one participant",
		}),
		Participants: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flipboard_broker_participants",
			Help: "Current number of registered participants",
		}, []string{"role"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flipboard_broker_registrations_total",
			Help: "Registration attempts",
		}, []string{"result"}), // result = "accepted", "rejected"
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flipboard_broker_commands_total",
			Help: "Command deliveries",
		}, []string{"result"}), // result = "relayed", "dropped"
	}

	reg.MustRegister(
		m.Connections,
		m.Rooms,
		m.Participants,
		m.Registrations,
		m.Commands,
	)
	return m
}

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) roomCreated() {
	if m != nil {
		m.Rooms.Inc()
	}
}

func (m *Metrics) roomDeleted() {
	if m != nil {
		m.Rooms.Dec()
	}
}

func (m *Metrics) participantJoined(role protocol.Role) {
	if m != nil {
		m.Participants.WithLabelValues(string(role)).Inc()
		m.Registrations.WithLabelValues("accepted").Inc()
	}
}

func (m *Metrics) participantLeft(role protocol.Role) {
	if m != nil {
		m.Participants.WithLabelValues(string(role)).Dec()
	}
}

func (m *Metrics) registrationRejected() {
	if m != nil {
		m.Registrations.WithLabelValues("rejected").Inc()
	}
}

func (m *Metrics) commandRelayed() {
	if m != nil {
		m.Commands.WithLabelValues("relayed").Inc()
	}
}

func (m *Metrics) commandDropped() {
	if m != nil {
		m.Commands.WithLabelValues("dropped").Inc()
	}
}
