package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	QueueDepth      prometheus.Gauge
	ActiveMatches   prometheus.Gauge
	Connections     prometheus.Gauge
	MatchesCreated  prometheus.Counter
	RoundsCompleted prometheus.Counter
	GamesFinished   *prometheus.CounterVec
	Events          *prometheus.CounterVec
}

const (
	OutcomeWin = "win"
	OutcomeTie = "tie"
)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guessduel_queue_depth",
			Help: "Connections waiting in the matchmaking queue.",
		}),
		ActiveMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guessduel_active_matches",
			Help: "Matches held in the session registry.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guessduel_connections",
			Help: "Open websocket connections.",
		}),
		MatchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guessduel_matches_created_total",
			Help: "Matches created from queue pairings.",
		}),
		RoundsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guessduel_rounds_completed_total",
			Help: "Rounds where both guesses were scored.",
		}),
		GamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guessduel_games_finished_total",
			Help: "Matches that reached game over, by outcome.",
		}, []string{"outcome"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guessduel_events_total",
			Help: "Inbound websocket events, by name.",
		}, []string{"event"}),
	}
	reg.MustRegister(
		m.QueueDepth,
		m.ActiveMatches,
		m.Connections,
		m.MatchesCreated,
		m.RoundsCompleted,
		m.GamesFinished,
		m.Events,
	)
	return m
}
