package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/polysentry/polysentry/internal/storage"
	"github.com/polysentry/polysentry/pkg/types"
	"go.uber.org/zap"
)

// Ledger owns all open positions and the derived capital state. It is a
// single-writer component: every mutation is serialized behind one mutex
// and persisted through the store before the call returns.
type Ledger struct {
	mu              sync.Mutex
	store           storage.Store
	startingCapital float64
	logger          *zap.Logger
	now             func() time.Time
}

// Config holds ledger configuration.
type Config struct {
	StartingCapital float64
	Logger          *zap.Logger
}

// New creates a position ledger over the given store.
func New(cfg Config, store storage.Store) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.StartingCapital <= 0 {
		return nil, fmt.Errorf("starting capital must be positive, got %f", cfg.StartingCapital)
	}

	return &Ledger{
		store:           store,
		startingCapital: cfg.StartingCapital,
		logger:          cfg.Logger,
		now:             time.Now,
	}, nil
}

// Open records a fill, creating the position on first fill or folding an
// additional fill into the existing one at the size-weighted average price.
func (l *Ledger) Open(ctx context.Context, marketID, tokenID, outcome string, side types.Side, price, size float64) (*types.Position, error) {
	if size <= 0 {
		return nil, fmt.Errorf("fill size must be positive, got %f", size)
	}
	if price <= 0 || price >= 1 {
		return nil, fmt.Errorf("fill price must be in (0,1), got %f", price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()

	existing, err := l.store.GetPosition(ctx, marketID, side)
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}

	var pos *types.Position
	if existing == nil {
		pos = &types.Position{
			MarketID:     marketID,
			TokenID:      tokenID,
			Outcome:      outcome,
			Side:         side,
			Size:         size,
			EntryPrice:   price,
			CurrentPrice: price,
			HighestPrice: price,
			OpenedAt:     now,
			UpdatedAt:    now,
		}
		PositionsOpenedTotal.Inc()
	} else {
		pos = existing
		pos.EntryPrice = (pos.Size*pos.EntryPrice + size*price) / (pos.Size + size)
		pos.Size += size
		pos.CurrentPrice = price
		if price > pos.HighestPrice {
			pos.HighestPrice = price
		}
		pos.UpdatedAt = now
	}

	err = l.store.UpsertPosition(ctx, pos)
	if err != nil {
		return nil, fmt.Errorf("persist position: %w", err)
	}

	l.logger.Info("position-filled",
		zap.String("market-id", marketID),
		zap.String("side", string(side)),
		zap.Float64("fill-price", price),
		zap.Float64("fill-size", size),
		zap.Float64("avg-entry", pos.EntryPrice),
		zap.Float64("total-size", pos.Size))

	cp := *pos
	return &cp, nil
}

// UpdatePrice marks all open positions in the market to the given price and
// returns their combined unrealized PnL.
func (l *Ledger) UpdatePrice(ctx context.Context, marketID string, price float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	updated := false

	for _, side := range []types.Side{types.SideBuy, types.SideSell} {
		pos, err := l.store.GetPosition(ctx, marketID, side)
		if err != nil {
			return 0, fmt.Errorf("load position: %w", err)
		}
		if pos == nil {
			continue
		}

		pos.CurrentPrice = price
		if price > pos.HighestPrice {
			pos.HighestPrice = price
		}
		pos.UpdatedAt = l.now().UTC()

		err = l.store.UpsertPosition(ctx, pos)
		if err != nil {
			return 0, fmt.Errorf("persist position: %w", err)
		}

		total += pos.UnrealizedPnL()
		updated = true
	}

	if !updated {
		return 0, fmt.Errorf("no open position for market %s", marketID)
	}

	return total, nil
}

// Close realizes PnL at the exit price and archives the position to trade
// history in one transaction. Returns the realized PnL.
func (l *Ledger) Close(ctx context.Context, marketID string, side types.Side, exitPrice float64, reason string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, err := l.store.GetPosition(ctx, marketID, side)
	if err != nil {
		return 0, fmt.Errorf("load position: %w", err)
	}
	if pos == nil {
		return 0, fmt.Errorf("no open position for market %s side %s", marketID, side)
	}

	realized := (exitPrice - pos.EntryPrice) * pos.Size
	if side == types.SideSell {
		realized = -realized
	}

	closeSide := types.SideSell
	if side == types.SideSell {
		closeSide = types.SideBuy
	}

	trade := &storage.TradeRecord{
		ID:          uuid.New().String(),
		IntentID:    "",
		MarketID:    marketID,
		TokenID:     pos.TokenID,
		Outcome:     pos.Outcome,
		Side:        closeSide,
		Price:       exitPrice,
		Size:        pos.Size,
		Status:      types.StatusExecuted,
		Detail:      reason,
		RealizedPnL: realized,
		ExecutedAt:  l.now().UTC(),
	}

	err = l.store.ClosePosition(ctx, marketID, side, trade)
	if err != nil {
		return 0, fmt.Errorf("close position: %w", err)
	}

	PositionsClosedTotal.Inc()
	RealizedPnLTotal.Add(realized)

	l.logger.Info("position-closed",
		zap.String("market-id", marketID),
		zap.String("side", string(side)),
		zap.Float64("entry-price", pos.EntryPrice),
		zap.Float64("exit-price", exitPrice),
		zap.Float64("realized-pnl", realized),
		zap.String("reason", reason))

	return realized, nil
}

// GetOpen returns copies of all open positions.
func (l *Ledger) GetOpen(ctx context.Context) ([]*types.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.ListOpenPositions(ctx)
}

// CapitalState recomputes capital, exposure and PnL from the store.
// It is derived state: nothing here is ever written back.
func (l *Ledger) CapitalState(ctx context.Context) (*types.CapitalState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	totalRealized, err := l.store.SumRealizedPnL(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("sum total pnl: %w", err)
	}

	dailyRealized, err := l.store.SumRealizedPnL(ctx, dayStart)
	if err != nil {
		return nil, fmt.Errorf("sum daily pnl: %w", err)
	}

	positions, err := l.store.ListOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	var unrealized, exposure float64
	for _, pos := range positions {
		unrealized += pos.UnrealizedPnL()
		exposure += pos.Notional()
	}

	state := &types.CapitalState{
		StartingCapital: l.startingCapital,
		CurrentCapital:  l.startingCapital + totalRealized + unrealized,
		DailyPnL:        dailyRealized,
		DailyPnLPct:     dailyRealized / l.startingCapital * 100,
		TotalPnL:        totalRealized + unrealized,
		TotalPnLPct:     (totalRealized + unrealized) / l.startingCapital * 100,
		OpenPositions:   len(positions),
		TotalExposure:   exposure,
	}

	CurrentCapitalUSD.Set(state.CurrentCapital)
	TotalExposureUSD.Set(state.TotalExposure)
	OpenPositionsCount.Set(float64(state.OpenPositions))

	return state, nil
}

// Store exposes the backing store for append-only records written by the
// orchestrator and the risk kernel.
func (l *Ledger) Store() storage.Store {
	return l.store
}
