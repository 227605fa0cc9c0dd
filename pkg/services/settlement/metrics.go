package settlement

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bet outcome labels
const (
	outcomeWin      = "win"
	outcomeLoss     = "loss"
	outcomeReplayed = "replayed"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

var (
	betsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spinz_bets_total",
		Help: "Bets handled by the settlement engine, labeled by outcome",
	}, []string{"outcome"})

	settlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spinz_settlement_duration_seconds",
		Help:    "Latency distribution of bet settlement",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	payoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spinz_payout_minor_total",
		Help: "Payouts credited in minor units, labeled by currency",
	}, []string{"currency"})

	sinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spinz_sink_failures_total",
		Help: "Result deliveries that a sink rejected",
	}, []string{"sink"})
)

func observe(outcome string, start time.Time) {
	betsTotal.WithLabelValues(outcome).Inc()
	settlementDuration.Observe(time.Since(start).Seconds())
}
