package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpportunitiesDetectedTotal counts opportunities returned by scans.
	OpportunitiesDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_arbitrage_opportunities_detected_total",
		Help: "Total number of arbitrage opportunities detected",
	})

	// OpportunitiesRejectedTotal counts candidates discarded during detection.
	OpportunitiesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polysentry_arbitrage_opportunities_rejected_total",
			Help: "Total number of opportunity candidates rejected",
		},
		[]string{"reason"},
	)

	// ScanDurationSeconds tracks full-market scan latency.
	ScanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polysentry_arbitrage_scan_duration_seconds",
		Help:    "Duration of arbitrage market scans",
		Buckets: prometheus.DefBuckets,
	})
)
