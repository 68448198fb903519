package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	roomsCreated    prometheus.Counter
	joins           *prometheus.CounterVec
	messagesPosted  prometheus.Counter
	sessionsStarted *prometheus.CounterVec
	sessionsStopped *prometheus.CounterVec
	airtimeSeconds  *prometheus.CounterVec
}

// NewMetrics registers the service collectors with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		roomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "onair_rooms_created_total",
			Help: "Total number of rooms created by find-or-create",
		}),
		joins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onair_room_joins_total",
			Help: "Room join attempts by outcome",
		}, []string{"outcome"}),
		messagesPosted: factory.NewCounter(prometheus.CounterOpts{
			Name: "onair_messages_posted_total",
			Help: "Total number of room messages stored",
		}),
		sessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onair_live_sessions_started_total",
			Help: "Live sessions started by source",
		}, []string{"source"}),
		sessionsStopped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onair_live_sessions_stopped_total",
			Help: "Live sessions stopped by source",
		}, []string{"source"}),
		airtimeSeconds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onair_airtime_seconds_total",
			Help: "Closed airtime in seconds by source",
		}, []string{"source"}),
	}
}

func (m *Metrics) roomCreated() {
	if m != nil {
		m.roomsCreated.Inc()
	}
}

func (m *Metrics) join(outcome string) {
	if m != nil {
		m.joins.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) messagePosted() {
	if m != nil {
		m.messagesPosted.Inc()
	}
}

func (m *Metrics) sessionStarted(source string) {
	if m != nil {
		m.sessionsStarted.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) sessionStopped(source string, seconds int64) {
	if m != nil {
		m.sessionsStopped.WithLabelValues(source).Inc()
		m.airtimeSeconds.WithLabelValues(source).Add(float64(seconds))
	}
}
