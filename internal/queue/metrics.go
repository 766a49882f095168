package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	// enqueued counts envelopes parked for offline recipients, by frame kind.
	enqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_queue_enqueued_total",
			Help: "Envelopes appended to the offline queue.",
		},
		[]string{"kind"},
	)

	// drained counts envelopes removed by Drain, split by delivered/dropped.
	drained = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_queue_drained_total",
			Help: "Envelopes removed from the offline queue on reconnect.",
		},
		[]string{"outcome"},
	)

	backendConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "offline_queue_backend_connected",
			Help: "1 while an offline queue backend is connected, else 0.",
		},
	)
)

func init() {
	prometheus.MustRegister(enqueued, drained, backendConnected)
}
