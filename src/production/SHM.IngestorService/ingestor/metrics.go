package ingestor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shm_ingestor_messages_total",
			Help: "Telemetry messages by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shm_ingestor_batch_size",
			Help:    "Messages per flushed batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

func recordMessage(kind, outcome string) {
	messagesTotal.WithLabelValues(kind, outcome).Inc()
}
