package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	valuesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elastic_bus_values_published_total",
			Help: "Total number of values accepted on a topic",
		},
		[]string{"topic"},
	)

	valuesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elastic_bus_values_delivered_total",
			Help: "Total number of values queued to subscribers",
		},
		[]string{"topic"},
	)

	valuesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elastic_bus_values_dropped_total",
			Help: "Total number of values dropped before reaching a subscriber",
		},
		[]string{"topic", "reason"},
	)

	topicsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "elastic_bus_topics_rejected_total",
			Help: "Total number of publishes and subscriptions refused by the topic limit",
		},
	)

	subscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "elastic_bus_subscribers_active",
			Help: "Number of open subscriptions across all topics",
		},
	)
)

const (
	dropDuplicate      = "duplicate"
	dropSubscriberFull = "subscriber_full"
	dropPersistFull    = "persist_full"
)
