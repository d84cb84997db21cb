package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// xpAwarded counts XP granted, labelled by award reason.
	xpAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "ledger",
		Name:      "xp_awarded_total",
		Help:      "Total XP granted by reason",
	}, []string{"reason"})

	// levelUps counts awards that crossed a level boundary.
	levelUps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "ledger",
		Name:      "level_ups_total",
		Help:      "Total awards that raised a level",
	})

	// streakEvents counts study events by outcome (noop, continued, started, reset).
	streakEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "ledger",
		Name:      "streak_events_total",
		Help:      "Study events by streak outcome",
	}, []string{"outcome"})

	conflictRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "ledger",
		Name:      "conflict_retries_total",
		Help:      "Write conflicts that triggered a re-read",
	}, []string{"op"})

	conflictExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "ledger",
		Name:      "conflict_exhausted_total",
		Help:      "Writes that gave up after the retry bound",
	}, []string{"op"})

	// opDuration measures ledger operation latency.
	// Labels: op, status (ok, error)
	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "progression",
		Subsystem: "ledger",
		Name:      "operation_duration_seconds",
		Help:      "Ledger operation latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"op", "status"})
)

func observeOp(op string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	opDuration.WithLabelValues(op, status).Observe(seconds)
}
