package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(payoutDMTotal) }

// kind: outcome of the payout; status: sent|error
var payoutDMTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payout_dm_total",
		Help: "Telegram DMs about payout outcomes by kind and delivery status.",
	},
	[]string{"kind", "status"},
)

func IncPayoutDM(kind, status string) {
	payoutDMTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}
