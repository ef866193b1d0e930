// Package metrics exposes Prometheus instrumentation for the server. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hanabi"

// Metrics holds every collector the server records to.
type Metrics struct {
	sessions        prometheus.Gauge
	admits          *prometheus.CounterVec
	dismisses       *prometheus.CounterVec
	welcomeDuration prometheus.Histogram
	tables          prometheus.Gauge
	actions         *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	gamesEnded      *prometheus.CounterVec
	gameEvents      *prometheus.CounterVec
	messages        *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of logged in users",
		}),
		admits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admits_total",
			Help:      "Connections processed by the lifecycle queue",
		}, []string{"result"}),
		dismisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dismisses_total",
			Help:      "Disconnections processed by the lifecycle queue",
		}, []string{"result"}),
		welcomeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "welcome_duration_seconds",
			Help:      "Time spent assembling and sending the welcome payload",
			Buckets:   prometheus.DefBuckets,
		}),
		tables: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tables",
			Help:      "Number of tables in the registry",
		}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "table_actions_total",
			Help:      "Table actions processed, by kind and result",
		}, []string{"kind", "result"}),
		actionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "table_action_duration_seconds",
			Help:      "Time spent applying a table action",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		gamesEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_ended_total",
			Help:      "Games finished, by end condition",
		}, []string{"end_condition"}),
		gameEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "game_events_total",
			Help:      "Events published by game engines, by type",
		}, []string{"type"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket commands received, by command and result",
		}, []string{"command", "result"}),
	}
}

// SetSessions records the size of the user registry.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// Admit counts a processed login.
func (m *Metrics) Admit(result string) {
	if m == nil {
		return
	}
	m.admits.WithLabelValues(result).Inc()
}

// Dismiss counts a processed logout.
func (m *Metrics) Dismiss(result string) {
	if m == nil {
		return
	}
	m.dismisses.WithLabelValues(result).Inc()
}

// ObserveWelcome records how long a welcome payload took.
func (m *Metrics) ObserveWelcome(d time.Duration) {
	if m == nil {
		return
	}
	m.welcomeDuration.Observe(d.Seconds())
}

// SetTables records the size of the table registry.
func (m *Metrics) SetTables(n int) {
	if m == nil {
		return
	}
	m.tables.Set(float64(n))
}

// Action counts a table action and its duration.
func (m *Metrics) Action(kind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind, result).Inc()
	m.actionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// GameEnded counts a finished game.
func (m *Metrics) GameEnded(endCondition string) {
	if m == nil {
		return
	}
	m.gamesEnded.WithLabelValues(endCondition).Inc()
}

// GameEvent counts an engine event such as a strike or a completed stack.
func (m *Metrics) GameEvent(eventType string) {
	if m == nil {
		return
	}
	m.gameEvents.WithLabelValues(eventType).Inc()
}

// Message counts an inbound WebSocket command.
func (m *Metrics) Message(command, result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(command, result).Inc()
}
