package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/polysentry/polysentry/internal/alert"
	"github.com/polysentry/polysentry/internal/arbitrage"
	"github.com/polysentry/polysentry/internal/storage"
	"github.com/polysentry/polysentry/pkg/types"
	"go.uber.org/zap"
)

const scannerSource = "arb-scanner"

// runScanner periodically scans allowlisted markets for arbitrage and
// feeds any opportunities through the same serialized pipeline external
// intents use.
func (a *App) runScanner() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.ArbScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.scanOnce(a.ctx)
		}
	}
}

func (a *App) scanOnce(ctx context.Context) {
	resp, err := a.markets.FetchActiveMarkets(ctx, a.cfg.MarketLimit)
	if err != nil {
		a.logger.Warn("scan-fetch-markets-failed", zap.Error(err))
		return
	}

	for i := range resp.Data {
		m := &resp.Data[i]
		if !a.allowlist.Contains(m.ID) {
			continue
		}

		prices, err := a.markets.FetchMarketPrices(ctx, m)
		if err != nil {
			a.logger.Debug("scan-fetch-prices-failed",
				zap.String("market-id", m.ID),
				zap.Error(err))
			continue
		}

		opps := a.detector.ScanMarket(*prices)
		if len(opps) == 0 {
			continue
		}

		// Opportunities are sorted best-first; taking more than one per
		// market per scan would double-spend the same orderbook depth.
		best := opps[0]
		a.logger.Info("opportunity-detected",
			zap.String("id", best.ID),
			zap.String("kind", string(best.Kind)),
			zap.Float64("profit-pct", best.ProfitPct),
			zap.Float64("total-cost", best.TotalCost))

		if !a.legsMeetVenueMinimums(ctx, best) {
			continue
		}
		a.executeOpportunity(ctx, best)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// legsMeetVenueMinimums checks each leg's notional against the venue's
// per-token minimum order size.
func (a *App) legsMeetVenueMinimums(ctx context.Context, opp *arbitrage.Opportunity) bool {
	for _, leg := range opp.Legs {
		_, minOrderSize, err := a.metadata.GetTokenMetadata(ctx, leg.TokenID)
		if err != nil {
			continue
		}
		if leg.Price*opp.Size < minOrderSize {
			a.logger.Debug("opportunity-below-venue-minimum",
				zap.String("id", opp.ID),
				zap.String("token-id", leg.TokenID),
				zap.Float64("notional", leg.Price*opp.Size),
				zap.Float64("min-order-size", minOrderSize))
			return false
		}
	}
	return true
}

// executeOpportunity turns an opportunity into intents and runs them
// through the pipeline. Two-leg combinations execute as a pair; larger
// sets run leg by leg with partial fills flagged for reconciliation.
func (a *App) executeOpportunity(ctx context.Context, opp *arbitrage.Opportunity) {
	intents := make([]*types.TradeIntent, 0, len(opp.Legs))
	for _, leg := range opp.Legs {
		intents = append(intents, types.NewIntent(
			scannerSource, opp.MarketID, leg.TokenID, leg.Outcome,
			types.SideBuy, leg.Price, leg.Price*opp.Size, "arbitrage"))
	}

	switch len(intents) {
	case 1:
		a.await(ctx, &task{legA: intents[0], done: make(chan []*types.ExecutionResult, 1)})
	case 2:
		a.await(ctx, &task{legA: intents[0], legB: intents[1], done: make(chan []*types.ExecutionResult, 1)})
	default:
		a.executeSet(ctx, opp, intents)
	}
}

// executeSet runs a multi-outcome set leg by leg, stopping at the first
// failure. A set that partially filled is a real unhedged position and
// gets the same reconciliation treatment as an unpaired pair leg.
func (a *App) executeSet(ctx context.Context, opp *arbitrage.Opportunity, intents []*types.TradeIntent) {
	executed := 0
	for _, it := range intents {
		results := a.await(ctx, &task{legA: it, done: make(chan []*types.ExecutionResult, 1)})
		if len(results) == 0 || !results[0].Success {
			break
		}
		executed++
	}

	if executed == 0 || executed == len(intents) {
		return
	}

	reason := fmt.Sprintf("multi-outcome set on market %s filled %d of %d legs",
		opp.MarketID, executed, len(intents))

	ev := &storage.RiskEvent{
		ID:        uuid.New().String(),
		Kind:      "reconciliation",
		Reason:    reason,
		CreatedAt: a.nowUTC(),
	}
	if err := a.store.AppendRiskEvent(ctx, ev); err != nil {
		a.logger.Error("append-risk-event-failed", zap.Error(err))
	}

	a.alerts.Notify(ctx, alert.Event{
		Severity: alert.SeverityCritical,
		Title:    "partial multi-outcome fill",
		Message:  reason,
		At:       a.nowUTC(),
	})
}

// await submits a task and blocks until the pipeline finishes it or the
// context ends.
func (a *App) await(ctx context.Context, t *task) []*types.ExecutionResult {
	done, err := a.submit(t)
	if err != nil {
		a.logger.Warn("opportunity-not-submitted", zap.Error(err))
		return nil
	}

	select {
	case results := <-done:
		return results
	case <-ctx.Done():
		return nil
	}
}
