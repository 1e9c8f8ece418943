package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TradesTotal tracks successful executions.
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polysentry_execution_trades_total",
			Help: "Total number of trades executed",
		},
		[]string{"mode", "outcome"},
	)

	// ExecutionDurationSeconds tracks execution latency.
	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polysentry_execution_duration_seconds",
		Help:    "Duration of trade execution",
		Buckets: prometheus.DefBuckets,
	})

	// ExecutionErrorsTotal tracks failed executions.
	ExecutionErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_execution_errors_total",
		Help: "Total number of execution errors",
	})

	// RetriesTotal tracks submission retries.
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_execution_retries_total",
		Help: "Total number of order submission retries",
	})

	// DuplicatesRejectedTotal tracks intents rejected by the dedup window.
	DuplicatesRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_execution_duplicates_rejected_total",
		Help: "Total number of duplicate intents rejected",
	})

	// UnpairedLegsTotal tracks two-leg executions where one leg failed.
	UnpairedLegsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_execution_unpaired_legs_total",
		Help: "Total number of arbitrage executions left with an unpaired leg",
	})
)
