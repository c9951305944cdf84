package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncCycleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_sync_cycle_total",
			Help: "Total number of reconciliation cycles",
		},
		[]string{"status"},
	)

	syncCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meridian_sync_cycle_duration_seconds",
			Help:    "Reconciliation cycle duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
	)

	positionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_positions_created_total",
			Help: "Total number of ledger positions created by reconciliation",
		},
	)

	positionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_positions_closed_total",
			Help: "Total number of ledger positions closed",
		},
		[]string{"reason"},
	)

	mutationsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_mutations_skipped_total",
			Help: "Total number of per-position mutations skipped due to write failures",
		},
	)

	openPositions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meridian_open_positions",
			Help: "Number of open ledger positions after the last cycle",
		},
	)

	totalEquity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meridian_total_equity",
			Help: "Account equity from the last portfolio snapshot",
		},
	)

	exposurePct = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meridian_exposure_pct",
			Help: "Portfolio exposure percentage from the last snapshot",
		},
	)

	transitionActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meridian_transition_active",
			Help: "1 when a venue transition is pending or in progress, 0 otherwise",
		},
	)

	transitionStepTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_transition_step_total",
			Help: "Total number of per-position migration steps",
		},
		[]string{"status"},
	)
)

// RecordSyncCycle records the outcome and duration of one reconciliation cycle.
func RecordSyncCycle(status string, duration time.Duration) {
	syncCycleTotal.WithLabelValues(status).Inc()
	syncCycleDuration.Observe(duration.Seconds())
}

// RecordPositionCreated increments the created-positions counter.
func RecordPositionCreated() {
	positionsCreatedTotal.Inc()
}

// RecordPositionClosed increments the closed-positions counter for a reason.
func RecordPositionClosed(reason string) {
	positionsClosedTotal.WithLabelValues(reason).Inc()
}

// RecordMutationSkipped increments the skipped-mutations counter.
func RecordMutationSkipped() {
	mutationsSkippedTotal.Inc()
}

// SetOpenPositions sets the open-position gauge.
func SetOpenPositions(n int) {
	openPositions.Set(float64(n))
}

// SetPortfolio updates the portfolio gauges from a snapshot.
func SetPortfolio(equity, exposure float64) {
	totalEquity.Set(equity)
	exposurePct.Set(exposure)
}

// SetTransitionActive flips the transition gauge.
func SetTransitionActive(active bool) {
	if active {
		transitionActive.Set(1)
	} else {
		transitionActive.Set(0)
	}
}

// RecordTransitionStep records a migration step outcome ("success" or "failure").
func RecordTransitionStep(status string) {
	transitionStepTotal.WithLabelValues(status).Inc()
}
