package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		payoutsTotal,
		payoutAmountTotal,
		payoutConfirmAttempts,
		payoutDuration,
		payoutQueueDropsTotal,
		payoutsRequeuedTotal,
		payoutsAbandonedTotal,
	)
}

var (
	// outcome: succeeded|refused|broken
	payoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payouts_total",
			Help: "Payouts by terminal outcome.",
		},
		[]string{"outcome"},
	)

	payoutAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_amount_total",
			Help: "Total money paid out by successful payouts, labeled by currency.",
		},
		[]string{"currency"},
	)

	payoutConfirmAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payout_confirm_attempts",
			Help:    "Number of process-payment calls a payout needed.",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15},
		},
	)

	payoutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payout_duration_seconds",
			Help:    "Wall time from submission to terminal outcome.",
			Buckets: []float64{0.5, 1, 5, 30, 60, 120, 300, 600, 900},
		},
		[]string{"outcome"},
	)

	payoutQueueDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payout_queue_drops_total",
			Help: "Payouts rejected because the worker queue was full.",
		},
	)

	payoutsRequeuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payouts_requeued_total",
			Help: "Stale queued payouts handed back to the worker pool by the reconciler.",
		},
	)

	payoutsAbandonedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payouts_abandoned_total",
			Help: "Payouts left in processing by a dead worker and closed as broken.",
		},
	)
)

func ObservePayout(outcome string, attempts int, d time.Duration) {
	payoutsTotal.WithLabelValues(norm(outcome)).Inc()
	if attempts > 0 {
		payoutConfirmAttempts.Observe(float64(attempts))
	}
	payoutDuration.WithLabelValues(norm(outcome)).Observe(d.Seconds())
}

func AddPayoutAmount(currency string, amount float64) {
	payoutAmountTotal.WithLabelValues(norm(currency)).Add(amount)
}

func IncQueueDrop() {
	payoutQueueDropsTotal.Inc()
}

func AddPayoutsRequeued(n int) {
	payoutsRequeuedTotal.Add(float64(n))
}

func AddPayoutsAbandoned(n int) {
	payoutsAbandonedTotal.Add(float64(n))
}
