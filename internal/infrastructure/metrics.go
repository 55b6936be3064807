package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_sessions_active",
		Help: "Number of game sessions currently running",
	})

	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_streams_started_total",
		Help: "Total number of started streaming runs",
	})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_commands_total",
		Help: "Total number of accepted trade commands",
	}, []string{"action"})

	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_rate_limit_rejections_total",
		Help: "Total number of commands rejected by the rate limiter",
	})

	Liquidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_liquidations_total",
		Help: "Total number of liquidated positions",
	})

	SessionResultsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_session_results_total",
		Help: "Total number of persisted session results",
	}, []string{"status"})
)
