package types

import "time"

// Position is an open holding in a single market outcome.
// Owned exclusively by the ledger: created on first fill, averaged on
// additional fills, archived to trade history on full close.
type Position struct {
	MarketID     string
	TokenID      string
	Outcome      string
	Side         Side
	Size         float64 // shares (outcome tokens)
	EntryPrice   float64 // size-weighted average entry price
	CurrentPrice float64
	HighestPrice float64 // running high-water mark since entry
	OpenedAt     time.Time
	UpdatedAt    time.Time
}

// UnrealizedPnL is (current - entry) * size for a long position and the
// mirror image for a short.
func (p *Position) UnrealizedPnL() float64 {
	if p.Side == SideSell {
		return (p.EntryPrice - p.CurrentPrice) * p.Size
	}
	return (p.CurrentPrice - p.EntryPrice) * p.Size
}

// Notional is the USD value committed at entry.
func (p *Position) Notional() float64 {
	return p.EntryPrice * p.Size
}

// CapitalState is derived on demand from the ledger; it is never stored
// and never mutated directly.
type CapitalState struct {
	StartingCapital float64
	CurrentCapital  float64
	DailyPnL        float64
	DailyPnLPct     float64
	TotalPnL        float64
	TotalPnLPct     float64
	OpenPositions   int
	TotalExposure   float64 // sum of open-position notional
}
