package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/polysentry/polysentry/pkg/types"
	"go.uber.org/zap"
)

// OrderAck is the venue's acknowledgment of a submitted order.
type OrderAck struct {
	OrderID string
	Price   float64
	Size    float64
	Status  string
}

// OrderSubmitter is the external execution collaborator. The live
// implementation signs and posts CLOB orders; tests use mocks.
type OrderSubmitter interface {
	SubmitMarketOrder(ctx context.Context, tokenID string, side types.Side, price, size float64) (*OrderAck, error)
}

// HistoryChecker answers whether an idempotency key already maps to a
// successful execution. The ledger store satisfies it.
type HistoryChecker interface {
	ExecutedHashSince(ctx context.Context, hash string, since time.Time) (bool, error)
}

// Config holds executor configuration.
type Config struct {
	DryRun            bool
	MinPrice          float64
	MaxPrice          float64
	MinSize           float64
	MaxRetries        int
	RetryDelay        time.Duration
	IdempotencyWindow time.Duration
	Logger            *zap.Logger
}

// Executor turns approved intents into orders. Failures at any step come
// back as failed results, never as panics past this boundary.
type Executor struct {
	cfg       Config
	submitter OrderSubmitter
	history   HistoryChecker
	idem      *Index
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an executor. A submitter is required unless running dry.
func New(cfg Config, submitter OrderSubmitter, history HistoryChecker) (*Executor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if !cfg.DryRun && submitter == nil {
		return nil, fmt.Errorf("order submitter is required in live mode")
	}
	if history == nil {
		return nil, fmt.Errorf("history checker cannot be nil")
	}
	if cfg.IdempotencyWindow <= 0 {
		return nil, fmt.Errorf("idempotency window must be positive")
	}

	return &Executor{
		cfg:       cfg,
		submitter: submitter,
		history:   history,
		idem:      NewIndex(cfg.IdempotencyWindow),
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// Execute runs one intent through validation, dedup and submission.
func (e *Executor) Execute(ctx context.Context, it *types.TradeIntent) *types.ExecutionResult {
	start := e.now()
	result := e.execute(ctx, it)
	ExecutionDurationSeconds.Observe(e.now().Sub(start).Seconds())

	if result.Success {
		mode := "live"
		if result.DryRun {
			mode = "dry-run"
		}
		TradesTotal.WithLabelValues(mode, it.Outcome).Inc()
	} else if result.Duplicate {
		DuplicatesRejectedTotal.Inc()
	} else {
		ExecutionErrorsTotal.Inc()
	}

	return result
}

func (e *Executor) execute(ctx context.Context, it *types.TradeIntent) *types.ExecutionResult {
	now := e.now().UTC()
	result := &types.ExecutionResult{
		IntentID:   it.ID,
		DryRun:     e.cfg.DryRun,
		ExecutedAt: now,
	}

	// 1. Field validation. Failures are final, never retried.
	err := e.validateFields(it)
	if err != nil {
		result.Error = err
		return result
	}

	// 2. Idempotency. A hash that already executed successfully inside
	// the window is a duplicate; it is rejected, not re-submitted.
	hash := IntentHash(it)
	result.IdempotencyKey = hash

	dup, err := e.isDuplicate(ctx, hash, now)
	if err != nil {
		result.Error = fmt.Errorf("idempotency check: %w", err)
		return result
	}
	if dup {
		result.Duplicate = true
		result.Error = types.ErrDuplicateIntent
		return result
	}

	// 3. Execute.
	if e.cfg.DryRun {
		result.Success = true
		result.OrderID = uuid.New().String()
		result.FillPrice = it.Price
		result.FillSize = it.Size
		e.idem.MarkExecuted(hash)

		e.logger.Info("dry-run-order-filled",
			zap.String("intent-id", it.ID),
			zap.String("market-id", it.MarketID),
			zap.String("side", string(it.Side)),
			zap.Float64("price", it.Price),
			zap.Float64("size", it.Size))
		return result
	}

	ack, err := e.submitWithRetry(ctx, it)
	if err != nil {
		result.Error = err
		return result
	}

	// 4. Record: the hash is consumed only on success.
	result.Success = true
	result.OrderID = ack.OrderID
	result.FillPrice = ack.Price
	result.FillSize = ack.Size
	e.idem.MarkExecuted(hash)

	e.logger.Info("order-executed",
		zap.String("intent-id", it.ID),
		zap.String("order-id", ack.OrderID),
		zap.String("market-id", it.MarketID),
		zap.Float64("fill-price", ack.Price),
		zap.Float64("fill-size", ack.Size))

	return result
}

func (e *Executor) validateFields(it *types.TradeIntent) error {
	if it.MarketID == "" || it.TokenID == "" {
		return &types.OrderError{Code: "VALIDATION", Message: "market and token ids must be non-empty", Outcome: it.Outcome}
	}
	if !it.Side.Valid() {
		return &types.OrderError{Code: "VALIDATION", Message: fmt.Sprintf("invalid side %q", it.Side), Outcome: it.Outcome}
	}
	if it.Price < e.cfg.MinPrice || it.Price > e.cfg.MaxPrice {
		return &types.OrderError{
			Code:    "VALIDATION",
			Message: fmt.Sprintf("price %.4f outside [%.4f, %.4f]", it.Price, e.cfg.MinPrice, e.cfg.MaxPrice),
			Outcome: it.Outcome,
		}
	}
	if it.Size < e.cfg.MinSize {
		return &types.OrderError{
			Code:    "VALIDATION",
			Message: fmt.Sprintf("size %.2f below minimum %.2f", it.Size, e.cfg.MinSize),
			Outcome: it.Outcome,
		}
	}
	return nil
}

func (e *Executor) isDuplicate(ctx context.Context, hash string, now time.Time) (bool, error) {
	if e.idem.Executed(hash) {
		return true, nil
	}
	// The in-process index is empty after a restart; the persisted trade
	// history is authoritative.
	return e.history.ExecutedHashSince(ctx, hash, now.Add(-e.cfg.IdempotencyWindow))
}

// submitWithRetry retries only transient failures, with an increasing delay
// between attempts. No shared lock is held while waiting.
func (e *Executor) submitWithRetry(ctx context.Context, it *types.TradeIntent) (*OrderAck, error) {
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxRetries+1; attempt++ {
		ack, err := e.submitter.SubmitMarketOrder(ctx, it.TokenID, it.Side, it.Price, it.Size)
		if err == nil {
			return ack, nil
		}
		lastErr = err

		if !types.IsTransient(err) {
			return nil, err
		}
		if attempt > e.cfg.MaxRetries {
			break
		}

		RetriesTotal.Inc()
		delay := time.Duration(attempt) * e.cfg.RetryDelay

		e.logger.Warn("order-submission-retrying",
			zap.String("intent-id", it.ID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("order submission failed after %d attempts: %w", e.cfg.MaxRetries+1, lastErr)
}

// ExecutePair executes both legs of a two-leg arbitrage independently and
// reports each result. When exactly one leg fails, the surviving leg is
// flagged for reconciliation. It is never silently treated as success and
// never automatically reversed.
func (e *Executor) ExecutePair(ctx context.Context, a, b *types.TradeIntent) (*types.ExecutionResult, *types.ExecutionResult) {
	ra := e.Execute(ctx, a)
	rb := e.Execute(ctx, b)

	if ra.Success != rb.Success {
		survivor := ra
		failed := rb
		if rb.Success {
			survivor, failed = rb, ra
		}
		survivor.RequiresReconciliation = true
		UnpairedLegsTotal.Inc()

		e.logger.Error("arbitrage-leg-unpaired",
			zap.String("surviving-intent", survivor.IntentID),
			zap.String("failed-intent", failed.IntentID),
			zap.NamedError("leg-error", failed.Error))
	}

	return ra, rb
}
