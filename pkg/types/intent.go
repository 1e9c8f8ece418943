package types

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether the side is one of the two enumerated values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// TradeIntent is a proposed trade awaiting validation and risk approval.
// It is immutable after creation and consumed exactly once by the pipeline.
type TradeIntent struct {
	ID        string
	SourceID  string // trader or signal-source identity
	MarketID  string
	TokenID   string
	Outcome   string // "YES", "NO", or a multi-outcome label
	Side      Side
	Price     float64 // limit price in [0,1]
	Size      float64 // USD notional
	Strategy  string
	CreatedAt time.Time
}

// NewIntent creates an intent with a time-sortable ULID.
func NewIntent(sourceID, marketID, tokenID, outcome string, side Side, price, size float64, strategy string) *TradeIntent {
	now := time.Now().UTC()
	return &TradeIntent{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		SourceID:  sourceID,
		MarketID:  marketID,
		TokenID:   tokenID,
		Outcome:   outcome,
		Side:      side,
		Price:     price,
		Size:      size,
		Strategy:  strategy,
		CreatedAt: now,
	}
}
