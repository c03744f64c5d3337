package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(TransferRequests, TransferDuration)
}

var (
	// op: request_payment|process_payment
	// result: ok|transport_error|malformed
	TransferRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_gateway_requests_total",
			Help: "Calls to the transfer gateway by operation and result.",
		},
		[]string{"op", "result"},
	)

	TransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transfer_gateway_duration_seconds",
			Help:    "Latency of transfer gateway calls in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"op"},
	)
)

func ObserveTransferCall(op, result string, d time.Duration) {
	TransferRequests.WithLabelValues(norm(op), norm(result)).Inc()
	TransferDuration.WithLabelValues(norm(op)).Observe(d.Seconds())
}
