package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysentry/polysentry/pkg/types"
)

func testPosition(marketID string, side types.Side) *types.Position {
	now := time.Now().UTC()
	return &types.Position{
		MarketID:     marketID,
		TokenID:      marketID + "-tok",
		Outcome:      "YES",
		Side:         side,
		Size:         10,
		EntryPrice:   0.40,
		CurrentPrice: 0.40,
		HighestPrice: 0.40,
		OpenedAt:     now,
		UpdatedAt:    now,
	}
}

func TestMemory_PositionRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	got, err := m.GetPosition(ctx, "mkt-1", types.SideBuy)
	require.NoError(t, err)
	assert.Nil(t, got, "missing position is nil, not an error")

	pos := testPosition("mkt-1", types.SideBuy)
	require.NoError(t, m.UpsertPosition(ctx, pos))

	got, err = m.GetPosition(ctx, "mkt-1", types.SideBuy)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pos.TokenID, got.TokenID)

	// The store hands out copies; mutating them must not leak back.
	got.Size = 999
	again, err := m.GetPosition(ctx, "mkt-1", types.SideBuy)
	require.NoError(t, err)
	assert.Equal(t, 10.0, again.Size)
}

func TestMemory_PositionsKeyedByMarketAndSide(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.UpsertPosition(ctx, testPosition("mkt-1", types.SideBuy)))
	require.NoError(t, m.UpsertPosition(ctx, testPosition("mkt-1", types.SideSell)))
	require.NoError(t, m.UpsertPosition(ctx, testPosition("mkt-2", types.SideBuy)))

	open, err := m.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 3)

	// Upserting an existing key replaces, not appends.
	updated := testPosition("mkt-1", types.SideBuy)
	updated.Size = 20
	require.NoError(t, m.UpsertPosition(ctx, updated))

	open, err = m.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 3)
}

func TestMemory_ClosePositionArchivesTrade(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.UpsertPosition(ctx, testPosition("mkt-1", types.SideBuy)))

	trade := &TradeRecord{
		ID:          "t1",
		MarketID:    "mkt-1",
		Side:        types.SideSell,
		Price:       0.70,
		Size:        10,
		Status:      types.StatusExecuted,
		RealizedPnL: 3,
		ExecutedAt:  time.Now().UTC(),
	}
	require.NoError(t, m.ClosePosition(ctx, "mkt-1", types.SideBuy, trade))

	got, err := m.GetPosition(ctx, "mkt-1", types.SideBuy)
	require.NoError(t, err)
	assert.Nil(t, got)

	trades := m.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "t1", trades[0].ID)
}

func TestMemory_SumsFilterByStatusAndCutoff(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, tr := range []*TradeRecord{
		{ID: "t1", Status: types.StatusExecuted, Price: 0.5, Size: 100, RealizedPnL: 10, ExecutedAt: now},
		{ID: "t2", Status: types.StatusExecuted, Price: 0.5, Size: 100, RealizedPnL: -4, ExecutedAt: now.Add(-2 * time.Hour)},
		{ID: "t3", Status: types.StatusFailed, Price: 0.5, Size: 100, RealizedPnL: 99, ExecutedAt: now},
	} {
		require.NoError(t, m.AppendTrade(ctx, tr))
	}

	total, err := m.SumRealizedPnL(ctx, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 6.0, total, 1e-9, "failed trades never count")

	recent, err := m.SumRealizedPnL(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 10.0, recent, 1e-9)

	notional, err := m.SumExecutedNotional(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, notional, 1e-9)
}

func TestMemory_ExecutedHashSince(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, m.AppendTrade(ctx, &TradeRecord{
		ID: "t1", IdempotencyKey: "h1", Status: types.StatusExecuted, ExecutedAt: now.Add(-10 * time.Minute),
	}))
	require.NoError(t, m.AppendTrade(ctx, &TradeRecord{
		ID: "t2", IdempotencyKey: "h2", Status: types.StatusFailed, ExecutedAt: now,
	}))

	found, err := m.ExecutedHashSince(ctx, "h1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = m.ExecutedHashSince(ctx, "h1", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, found, "outside the window")

	found, err = m.ExecutedHashSince(ctx, "h2", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, found, "failed executions never consume the hash")
}

func TestMemory_KillSwitchRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	got, err := m.GetKillSwitch(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "first run has no persisted state")

	state := &types.KillSwitchState{
		Active:                true,
		Reason:                "total drawdown",
		TriggeredAt:           time.Now().UTC(),
		RequiresManualRestart: true,
	}
	ev := &RiskEvent{ID: "e1", Kind: "kill", Reason: "total drawdown", CreatedAt: time.Now().UTC()}
	require.NoError(t, m.SaveKillSwitch(ctx, state, ev))

	got, err = m.GetKillSwitch(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Active)
	assert.Equal(t, "total drawdown", got.Reason)

	events := m.RiskEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "kill", events[0].Kind)

	// Saving without an event writes only the state.
	state.Active = false
	require.NoError(t, m.SaveKillSwitch(ctx, state, nil))
	assert.Len(t, m.RiskEvents(), 1)
}
