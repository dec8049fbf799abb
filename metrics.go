package h2out

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "h2out"

var (
	totalBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "total_bytes",
			Help:      "Frame bytes handed to the transport, headers included",
		},
	)

	payloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "payload_bytes",
			Help:      "Frame payload bytes handed to the transport",
		},
	)

	queuedFrames = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queued_frames",
			Help:      "Outbound frames currently awaiting the transport",
		},
	)

	floodsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "floods_detected_total",
			Help:      "Connections torn down for exceeding the outbound frame ceiling",
		},
	)
)
