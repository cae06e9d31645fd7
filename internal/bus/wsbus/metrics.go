package wsbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	clientsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "elastic_wsbus_clients_connected",
			Help: "Number of connected websocket bus clients",
		},
	)

	framesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elastic_wsbus_frames_received_total",
			Help: "Total number of frames received from clients",
		},
		[]string{"type"},
	)

	publishesLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "elastic_wsbus_publishes_rate_limited_total",
			Help: "Total number of client publishes dropped by the rate limiter",
		},
	)
)
