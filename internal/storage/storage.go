package storage

import (
	"context"
	"time"

	"github.com/polysentry/polysentry/pkg/types"
)

// SchemaVersion is the ledger schema this binary understands. A persisted
// version that differs causes startup to fail; stores never migrate silently.
const SchemaVersion = 1

// TradeRecord is one append-only row of trade history. Every execution
// attempt lands here, including failures, duplicates and unpaired legs.
type TradeRecord struct {
	ID             string
	IntentID       string
	MarketID       string
	TokenID        string
	Outcome        string
	Side           types.Side
	Price          float64
	Size           float64
	Status         string // types.Status* constants
	Detail         string // rejection reason or risk-decision detail
	IdempotencyKey string
	DryRun         bool

	// RequiresReconciliation marks an executed fill whose sibling leg
	// failed. The status stays executed so dedup and budget queries
	// still see the fill.
	RequiresReconciliation bool

	RealizedPnL float64
	ExecutedAt  time.Time
}

// IntentRecord is one append-only row of the intent log: every accepted
// and rejected intent, with the rejection code when declined.
type IntentRecord struct {
	IntentID string
	SourceID string
	MarketID string
	Side     types.Side
	Price    float64
	Size     float64
	Accepted bool
	Code     string
	Detail   string
	LoggedAt time.Time
}

// RiskEvent is a persisted stop/kill trip with a PnL snapshot.
type RiskEvent struct {
	ID          string
	Kind        string // "daily_stop", "kill", "anomaly_kill", "auth_kill", "reset", "reconciliation"
	Reason      string
	DailyPnLPct float64
	TotalPnLPct float64
	CreatedAt   time.Time
}

// Store is the persistence contract behind the position ledger and the
// risk kernel. All mutations are transactional: a crash mid-write must
// never leave a position partially updated or a kill state unrecorded.
type Store interface {
	// Positions, unique per market+side.
	UpsertPosition(ctx context.Context, pos *types.Position) error
	GetPosition(ctx context.Context, marketID string, side types.Side) (*types.Position, error)
	ListOpenPositions(ctx context.Context) ([]*types.Position, error)

	// ClosePosition atomically removes the open position and appends the
	// closing trade to history in one transaction.
	ClosePosition(ctx context.Context, marketID string, side types.Side, trade *TradeRecord) error

	AppendTrade(ctx context.Context, trade *TradeRecord) error
	AppendIntent(ctx context.Context, rec *IntentRecord) error
	AppendRiskEvent(ctx context.Context, ev *RiskEvent) error

	// SumRealizedPnL sums realized PnL over executed trades since the cutoff.
	SumRealizedPnL(ctx context.Context, since time.Time) (float64, error)

	// SumExecutedNotional sums price*size of successful executions since
	// the cutoff. Budget checks read this.
	SumExecutedNotional(ctx context.Context, since time.Time) (float64, error)

	// ExecutedHashSince reports whether an idempotency key maps to a
	// successful execution at or after the cutoff.
	ExecutedHashSince(ctx context.Context, hash string, since time.Time) (bool, error)

	// GetKillSwitch returns the singleton kill-switch row, or nil if it
	// has never been written (first run).
	GetKillSwitch(ctx context.Context) (*types.KillSwitchState, error)

	// SaveKillSwitch persists the kill-switch row, optionally with the
	// triggering risk event in the same transaction.
	SaveKillSwitch(ctx context.Context, state *types.KillSwitchState, ev *RiskEvent) error

	Close() error
}
