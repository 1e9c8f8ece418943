package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/polysentry/polysentry/pkg/types"
)

func hashIntent(mutate func(*types.TradeIntent)) string {
	it := &types.TradeIntent{
		ID:        "intent-1",
		MarketID:  "mkt-1",
		TokenID:   "tok-1",
		Outcome:   "YES",
		Side:      types.SideBuy,
		Price:     0.50,
		Size:      25,
		Strategy:  "arbitrage",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(it)
	}
	return IntentHash(it)
}

func TestIntentHash_Deterministic(t *testing.T) {
	assert.Equal(t, hashIntent(nil), hashIntent(nil))
}

func TestIntentHash_IgnoresIntentID(t *testing.T) {
	// A re-sent intent gets a fresh ULID but must hash identically.
	assert.Equal(t,
		hashIntent(nil),
		hashIntent(func(it *types.TradeIntent) { it.ID = "intent-2" }))
}

func TestIntentHash_SubSecondTimestampsCollapse(t *testing.T) {
	assert.Equal(t,
		hashIntent(nil),
		hashIntent(func(it *types.TradeIntent) { it.CreatedAt = it.CreatedAt.Add(500 * time.Millisecond) }))
}

func TestIntentHash_DistinguishesContent(t *testing.T) {
	base := hashIntent(nil)

	mutations := map[string]func(*types.TradeIntent){
		"market":    func(it *types.TradeIntent) { it.MarketID = "mkt-2" },
		"token":     func(it *types.TradeIntent) { it.TokenID = "tok-2" },
		"side":      func(it *types.TradeIntent) { it.Side = types.SideSell },
		"price":     func(it *types.TradeIntent) { it.Price = 0.51 },
		"size":      func(it *types.TradeIntent) { it.Size = 30 },
		"strategy":  func(it *types.TradeIntent) { it.Strategy = "copy" },
		"timestamp": func(it *types.TradeIntent) { it.CreatedAt = it.CreatedAt.Add(time.Second) },
	}

	for name, mutate := range mutations {
		assert.NotEqual(t, base, hashIntent(mutate), "field %s must affect the hash", name)
	}
}

func TestIndex_MarkAndCheck(t *testing.T) {
	x := NewIndex(time.Hour)

	assert.False(t, x.Executed("h1"))

	x.MarkExecuted("h1")
	assert.True(t, x.Executed("h1"))
	assert.False(t, x.Executed("h2"))
}

func TestIndex_EntriesExpire(t *testing.T) {
	x := NewIndex(time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	x.now = func() time.Time { return base }
	x.MarkExecuted("h1")

	x.now = func() time.Time { return base.Add(30 * time.Minute) }
	assert.True(t, x.Executed("h1"))

	x.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.False(t, x.Executed("h1"))
}
