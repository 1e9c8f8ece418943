package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/polysentry/polysentry/internal/alert"
	"github.com/polysentry/polysentry/internal/risk"
	"github.com/polysentry/polysentry/internal/storage"
	"github.com/polysentry/polysentry/pkg/types"
	"go.uber.org/zap"
)

// ErrShuttingDown is returned by SubmitIntent once draining has begun.
var ErrShuttingDown = errors.New("pipeline is shutting down")

// ErrQueueFull is returned when the intent queue has no room. Intents are
// time-sensitive; blocking the producer would only deliver stale ones.
var ErrQueueFull = errors.New("intent queue is full")

// ErrBelowViableCopySize is returned when the sized copy of a source trade
// falls below the minimum viable size.
var ErrBelowViableCopySize = errors.New("copy size below viable minimum")

// SubmitIntent queues one intent for the pipeline. The result arrives on
// the returned channel when the intent has been fully processed.
func (a *App) SubmitIntent(it *types.TradeIntent) (<-chan []*types.ExecutionResult, error) {
	return a.submit(&task{legA: it, done: make(chan []*types.ExecutionResult, 1)})
}

// SubmitCopyIntent sizes a trade observed from a followed source and queues
// the copy. The copied notional is CopyRatio of the source size, capped by
// the per-trade cap and the capital not already committed to positions.
func (a *App) SubmitCopyIntent(ctx context.Context, sourceID, marketID, tokenID, outcome string, side types.Side, price, sourceSize float64) (<-chan []*types.ExecutionResult, error) {
	capital, err := a.ledger.CapitalState(ctx)
	if err != nil {
		return nil, fmt.Errorf("capital state: %w", err)
	}

	size := risk.PositionSize(sourceSize, capital.CurrentCapital-capital.TotalExposure, risk.SizingConfig{
		CopyRatio:     a.cfg.CopyRatio,
		PerTradeCap:   a.cfg.MaxPositionSize,
		MinViableSize: a.cfg.MinViableSize,
	})
	if size == 0 {
		return nil, ErrBelowViableCopySize
	}

	it := types.NewIntent(sourceID, marketID, tokenID, outcome, side, price, size, "copy")
	return a.SubmitIntent(it)
}

func (a *App) submit(t *task) (<-chan []*types.ExecutionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.draining {
		return nil, ErrShuttingDown
	}

	select {
	case a.tasks <- t:
		return t.done, nil
	default:
		return nil, ErrQueueFull
	}
}

// runPipeline is the single consumer of the task queue. One goroutine
// processes every intent, so each risk decision sees the capital state
// left by the previous trade.
func (a *App) runPipeline() {
	defer a.wg.Done()
	defer close(a.pipelineDone)

	for t := range a.tasks {
		var results []*types.ExecutionResult
		if t.legB == nil {
			results = []*types.ExecutionResult{a.processIntent(a.ctx, t.legA)}
		} else {
			results = a.processPair(a.ctx, t.legA, t.legB)
		}
		t.done <- results
	}
}

// processIntent runs one intent through validation, risk approval and
// execution, recording every outcome in the intent log.
func (a *App) processIntent(ctx context.Context, it *types.TradeIntent) *types.ExecutionResult {
	approved, size := a.gate(ctx, it)
	if !approved {
		return &types.ExecutionResult{IntentID: it.ID, Success: false}
	}

	sized := *it
	sized.Size = size

	result := a.executor.Execute(ctx, &sized)
	a.recordResult(ctx, &sized, result)
	return result
}

// gate runs the validator and the risk kernel for one intent and logs
// the outcome. Returns whether the intent may execute and at what size.
func (a *App) gate(ctx context.Context, it *types.TradeIntent) (bool, float64) {
	capital, err := a.ledger.CapitalState(ctx)
	if err != nil {
		a.logger.Error("capital-state-failed", zap.Error(err))
		return false, 0
	}

	vr := a.validator.Validate(it, a.allowlist.Snapshot(), capital.OpenPositions, a.nowUTC())
	if !vr.Valid {
		a.logIntent(ctx, it, false, vr.Code, vr.Detail)
		a.logger.Info("intent-rejected",
			zap.String("intent-id", it.ID),
			zap.String("code", vr.Code),
			zap.String("detail", vr.Detail))
		return false, 0
	}

	decision, err := a.kernel.ApproveTrade(ctx, it, capital)
	if err != nil {
		// A store failure here means safety state can no longer be
		// persisted. Trading halts.
		a.logger.Error("risk-kernel-store-failure", zap.Error(err))
		a.alerts.Notify(ctx, alert.Event{
			Severity: alert.SeverityCritical,
			Title:    "risk kernel storage failure",
			Message:  err.Error(),
			At:       a.nowUTC(),
		})
		a.cancel()
		return false, 0
	}

	if !decision.Approved() {
		a.logIntent(ctx, it, false, decision.Code, decision.Reason)
		a.logger.Info("intent-blocked",
			zap.String("intent-id", it.ID),
			zap.String("kind", string(decision.Kind)),
			zap.String("code", decision.Code),
			zap.String("reason", decision.Reason))
		if decision.Kind == types.DecisionKilled {
			a.alerts.Notify(ctx, alert.Event{
				Severity: alert.SeverityCritical,
				Title:    "trading halted",
				Message:  decision.Reason,
				At:       a.nowUTC(),
			})
		}
		return false, 0
	}

	a.logIntent(ctx, it, true, "", "")
	return true, decision.AdjustedSize
}

// processPair executes both legs of an arbitrage pair. Both legs must
// clear the gate before either order goes out.
func (a *App) processPair(ctx context.Context, legA, legB *types.TradeIntent) []*types.ExecutionResult {
	okA, sizeA := a.gate(ctx, legA)
	if !okA {
		a.logIntent(ctx, legB, false, types.CodePairAborted, "sibling leg rejected")
		return []*types.ExecutionResult{
			{IntentID: legA.ID},
			{IntentID: legB.ID},
		}
	}
	okB, sizeB := a.gate(ctx, legB)
	if !okB {
		// Leg A cleared the gate but will not execute without its sibling.
		a.logIntent(ctx, legA, false, types.CodePairAborted, "sibling leg rejected")
		return []*types.ExecutionResult{
			{IntentID: legA.ID},
			{IntentID: legB.ID},
		}
	}

	sizedA, sizedB := *legA, *legB
	sizedA.Size = sizeA
	sizedB.Size = sizeB

	resA, resB := a.executor.ExecutePair(ctx, &sizedA, &sizedB)
	a.recordResult(ctx, &sizedA, resA)
	a.recordResult(ctx, &sizedB, resB)

	if resA.RequiresReconciliation || resB.RequiresReconciliation {
		a.flagUnpairedLeg(ctx, &sizedA, &sizedB, resA, resB)
	}

	return []*types.ExecutionResult{resA, resB}
}

// recordResult appends the trade record and, on success, folds the fill
// into the position ledger.
func (a *App) recordResult(ctx context.Context, it *types.TradeIntent, result *types.ExecutionResult) {
	// An unpaired leg is still a successful execution: its status stays
	// executed so the persisted idempotency hash and budget sums see the
	// fill, and the reconciliation flag rides alongside.
	status := types.StatusFailed
	detail := ""
	switch {
	case result.Duplicate:
		status = types.StatusDuplicate
	case result.Success:
		status = types.StatusExecuted
	}
	if result.Error != nil {
		detail = result.Error.Error()
	}

	err := a.store.AppendTrade(ctx, &storage.TradeRecord{
		ID:                     uuid.New().String(),
		IntentID:               it.ID,
		MarketID:               it.MarketID,
		TokenID:                it.TokenID,
		Outcome:                it.Outcome,
		Side:                   it.Side,
		Price:                  result.FillPrice,
		Size:                   result.FillSize,
		Status:                 status,
		Detail:                 detail,
		IdempotencyKey:         result.IdempotencyKey,
		DryRun:                 result.DryRun,
		RequiresReconciliation: result.RequiresReconciliation,
		ExecutedAt:             result.ExecutedAt,
	})
	if err != nil {
		a.logger.Error("append-trade-failed",
			zap.String("intent-id", it.ID),
			zap.Error(err))
	}

	if !result.Success {
		return
	}

	// Fills are recorded in shares; intents carry USD notional.
	shares := result.FillSize / result.FillPrice
	_, err = a.ledger.Open(ctx, it.MarketID, it.TokenID, it.Outcome, it.Side, result.FillPrice, shares)
	if err != nil {
		a.logger.Error("ledger-open-failed",
			zap.String("intent-id", it.ID),
			zap.Error(err))
	}
}

// flagUnpairedLeg records the reconciliation risk event and alerts the
// operator. The surviving position stays open; nothing is auto-reversed.
func (a *App) flagUnpairedLeg(ctx context.Context, legA, legB *types.TradeIntent, resA, resB *types.ExecutionResult) {
	survivor, failed := legA, legB
	if resB.RequiresReconciliation {
		survivor, failed = legB, legA
	}

	reason := fmt.Sprintf("unpaired arbitrage leg on market %s: %s %s filled, %s %s failed",
		survivor.MarketID, survivor.Side, survivor.Outcome, failed.Side, failed.Outcome)

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
		Title:    "unpaired arbitrage leg",
		Message:  reason,
		At:       a.nowUTC(),
	})
}

// ClosePosition realizes a position through the ledger and feeds the
// outcome back to the risk kernel for loss-anomaly detection.
func (a *App) ClosePosition(ctx context.Context, marketID string, side types.Side, exitPrice float64, reason string) (float64, error) {
	realized, err := a.ledger.Close(ctx, marketID, side, exitPrice, reason)
	if err != nil {
		return 0, err
	}

	capital, err := a.ledger.CapitalState(ctx)
	if err != nil {
		return realized, fmt.Errorf("capital state after close: %w", err)
	}

	err = a.kernel.RecordTradeClose(ctx, marketID, realized, capital)
	if err != nil {
		return realized, fmt.Errorf("record trade close: %w", err)
	}

	if killState := a.kernel.State(); killState.Active {
		a.alerts.Notify(ctx, alert.Event{
			Severity: alert.SeverityCritical,
			Title:    "trading halted",
			Message:  killState.Reason,
			At:       a.nowUTC(),
		})
	}

	return realized, nil
}

func (a *App) logIntent(ctx context.Context, it *types.TradeIntent, accepted bool, code, detail string) {
	err := a.store.AppendIntent(ctx, &storage.IntentRecord{
		IntentID: it.ID,
		SourceID: it.SourceID,
		MarketID: it.MarketID,
		Side:     it.Side,
		Price:    it.Price,
		Size:     it.Size,
		Accepted: accepted,
		Code:     code,
		Detail:   detail,
		LoggedAt: a.nowUTC(),
	})
	if err != nil {
		a.logger.Error("append-intent-failed",
			zap.String("intent-id", it.ID),
			zap.Error(err))
	}
}
