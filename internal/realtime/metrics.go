package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_sessions",
			Help: "Currently registered WebSocket sessions.",
		},
	)

	sessionsReplaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_sessions_replaced_total",
			Help: "Sessions closed because the same user connected again.",
		},
	)

	// frames counts inbound frames by type and outcome
	// (ok, rejected, malformed, unknown, error, panic).
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_frames_total",
			Help: "Inbound WebSocket frames processed.",
		},
		[]string{"type", "outcome"},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Outbound frame routing attempts by outcome (live, offline, failed).",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(activeSessions, sessionsReplaced, frames, deliveries)
}
