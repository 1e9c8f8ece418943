package testutil

import (
	"time"

	"github.com/polysentry/polysentry/internal/arbitrage"
	"github.com/polysentry/polysentry/pkg/types"
)

// CreateTestIntent creates a fresh buy intent for the given market.
func CreateTestIntent(marketID string, price, size float64) *types.TradeIntent {
	return types.NewIntent("test-source", marketID, marketID+"-yes", "YES",
		types.SideBuy, price, size, "copy")
}

// CreateTestMarket creates a test market with YES and NO tokens.
func CreateTestMarket(id, slug, question string) *types.Market {
	return &types.Market{
		ID:         id,
		Slug:       slug,
		Question:   question,
		Closed:     false,
		Active:     true,
		Outcomes:   `["Yes", "No"]`,
		ClobTokens: `["` + id + `-yes", "` + id + `-no"]`,
		Tokens: []types.Token{
			{TokenID: id + "-yes", Outcome: "Yes"},
			{TokenID: id + "-no", Outcome: "No"},
		},
		CreatedAt:   time.Now(),
		Description: "Test market: " + question,
	}
}

// CreateTestMarketPrices creates binary detector input with the given
// ask prices and 100 shares of depth per side.
func CreateTestMarketPrices(marketID string, yesPrice, noPrice float64) arbitrage.MarketPrices {
	return arbitrage.MarketPrices{
		MarketID: marketID,
		Outcomes: []arbitrage.OutcomePrice{
			{TokenID: marketID + "-yes", Outcome: "Yes", Price: yesPrice, Liquidity: 100},
			{TokenID: marketID + "-no", Outcome: "No", Price: noPrice, Liquidity: 100},
		},
	}
}

// CreateTestCapitalState creates a healthy capital state with no open
// positions.
func CreateTestCapitalState(starting float64) *types.CapitalState {
	return &types.CapitalState{
		StartingCapital: starting,
		CurrentCapital:  starting,
	}
}
