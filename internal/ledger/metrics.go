package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PositionsOpenedTotal counts first fills.
	PositionsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_ledger_positions_opened_total",
		Help: "Total number of positions opened",
	})

	// PositionsClosedTotal counts full closes.
	PositionsClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polysentry_ledger_positions_closed_total",
		Help: "Total number of positions closed",
	})

	// RealizedPnLTotal accumulates realized PnL in USD. Gauge because
	// losses move it down.
	RealizedPnLTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polysentry_ledger_realized_pnl_usd",
		Help: "Cumulative realized PnL in USD",
	})

	// CurrentCapitalUSD tracks derived current capital.
	CurrentCapitalUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polysentry_ledger_current_capital_usd",
		Help: "Current capital derived from the ledger",
	})

	// TotalExposureUSD tracks the sum of open-position notional.
	TotalExposureUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polysentry_ledger_total_exposure_usd",
		Help: "Sum of open-position notional in USD",
	})

	// OpenPositionsCount tracks the number of open positions.
	OpenPositionsCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polysentry_ledger_open_positions",
		Help: "Number of open positions",
	})
)
