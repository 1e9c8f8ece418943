package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polysentry/polysentry/internal/storage"
	"github.com/polysentry/polysentry/pkg/types"
)

// scriptedSubmitter pops errors from the front of errs; once the script is
// exhausted it fills at the requested price and size. failToken makes every
// call for that token fail permanently.
type scriptedSubmitter struct {
	errs      []error
	failToken string
	calls     int
}

func (s *scriptedSubmitter) SubmitMarketOrder(_ context.Context, tokenID string, _ types.Side, price, size float64) (*OrderAck, error) {
	s.calls++
	if tokenID == s.failToken {
		return nil, &types.OrderError{Code: types.ErrCodeNotEnoughBalance, Message: "insufficient balance", Outcome: "NO"}
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &OrderAck{OrderID: "ord-1", Price: price, Size: size, Status: "matched"}, nil
}

func testExecutorConfig() Config {
	return Config{
		MinPrice:          0.01,
		MaxPrice:          0.99,
		MinSize:           1,
		MaxRetries:        2,
		RetryDelay:        time.Millisecond,
		IdempotencyWindow: time.Hour,
		Logger:            zap.NewNop(),
	}
}

func freshIntent(marketID, tokenID string) *types.TradeIntent {
	return types.NewIntent("test-source", marketID, tokenID, "YES", types.SideBuy, 0.50, 25, "arbitrage")
}

func TestNew_Validation(t *testing.T) {
	store := storage.NewMemory()

	cfg := testExecutorConfig()
	cfg.Logger = nil
	_, err := New(cfg, &scriptedSubmitter{}, store)
	assert.Error(t, err)

	_, err = New(testExecutorConfig(), nil, store)
	assert.Error(t, err, "live mode requires a submitter")

	cfg = testExecutorConfig()
	cfg.DryRun = true
	_, err = New(cfg, nil, store)
	assert.NoError(t, err, "dry run needs no submitter")

	_, err = New(testExecutorConfig(), &scriptedSubmitter{}, nil)
	assert.Error(t, err)

	cfg = testExecutorConfig()
	cfg.IdempotencyWindow = 0
	_, err = New(cfg, &scriptedSubmitter{}, store)
	assert.Error(t, err)
}

func TestExecute_DryRunFillsAtIntentPrice(t *testing.T) {
	cfg := testExecutorConfig()
	cfg.DryRun = true
	e, err := New(cfg, nil, storage.NewMemory())
	require.NoError(t, err)

	it := freshIntent("mkt-1", "tok-1")
	result := e.Execute(context.Background(), it)

	assert.True(t, result.Success)
	assert.True(t, result.DryRun)
	assert.NotEmpty(t, result.OrderID)
	assert.Equal(t, it.Price, result.FillPrice)
	assert.Equal(t, it.Size, result.FillSize)
	assert.NotEmpty(t, result.IdempotencyKey)
}

func TestExecute_LiveFillsFromAck(t *testing.T) {
	sub := &scriptedSubmitter{}
	e, err := New(testExecutorConfig(), sub, storage.NewMemory())
	require.NoError(t, err)

	result := e.Execute(context.Background(), freshIntent("mkt-1", "tok-1"))

	assert.True(t, result.Success)
	assert.False(t, result.DryRun)
	assert.Equal(t, "ord-1", result.OrderID)
	assert.Equal(t, 1, sub.calls)
}

func TestExecute_ValidationFailuresNeverReachVenue(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.TradeIntent)
	}{
		{"empty market id", func(it *types.TradeIntent) { it.MarketID = "" }},
		{"empty token id", func(it *types.TradeIntent) { it.TokenID = "" }},
		{"invalid side", func(it *types.TradeIntent) { it.Side = "HOLD" }},
		{"price too low", func(it *types.TradeIntent) { it.Price = 0.001 }},
		{"price too high", func(it *types.TradeIntent) { it.Price = 0.999 }},
		{"size below minimum", func(it *types.TradeIntent) { it.Size = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &scriptedSubmitter{}
			e, err := New(testExecutorConfig(), sub, storage.NewMemory())
			require.NoError(t, err)

			it := freshIntent("mkt-1", "tok-1")
			tt.mutate(it)

			result := e.Execute(context.Background(), it)

			assert.False(t, result.Success)
			var oe *types.OrderError
			require.ErrorAs(t, result.Error, &oe)
			assert.Equal(t, "VALIDATION", oe.Code)
			assert.Zero(t, sub.calls)
		})
	}
}

func TestExecute_DuplicateRejected(t *testing.T) {
	sub := &scriptedSubmitter{}
	e, err := New(testExecutorConfig(), sub, storage.NewMemory())
	require.NoError(t, err)

	it := freshIntent("mkt-1", "tok-1")

	first := e.Execute(context.Background(), it)
	require.True(t, first.Success)

	second := e.Execute(context.Background(), it)
	assert.False(t, second.Success)
	assert.True(t, second.Duplicate)
	assert.ErrorIs(t, second.Error, types.ErrDuplicateIntent)
	assert.Equal(t, 1, sub.calls, "duplicates never reach the venue")
}

func TestExecute_FailedAttemptDoesNotConsumeHash(t *testing.T) {
	sub := &scriptedSubmitter{errs: []error{
		&types.OrderError{Code: types.ErrCodeMarketNotReady, Message: "market not ready"},
	}}
	e, err := New(testExecutorConfig(), sub, storage.NewMemory())
	require.NoError(t, err)

	it := freshIntent("mkt-1", "tok-1")

	first := e.Execute(context.Background(), it)
	require.False(t, first.Success)

	second := e.Execute(context.Background(), it)
	assert.True(t, second.Success)
	assert.False(t, second.Duplicate)
}

func TestExecute_PersistedHistoryBacksDedupAcrossRestart(t *testing.T) {
	store := storage.NewMemory()
	it := freshIntent("mkt-1", "tok-1")

	require.NoError(t, store.AppendTrade(context.Background(), &storage.TradeRecord{
		ID:             "t1",
		IdempotencyKey: IntentHash(it),
		Status:         types.StatusExecuted,
		ExecutedAt:     time.Now().UTC(),
	}))

	// Fresh executor simulates a restart: its in-process index is empty.
	sub := &scriptedSubmitter{}
	e, err := New(testExecutorConfig(), sub, store)
	require.NoError(t, err)

	result := e.Execute(context.Background(), it)
	assert.True(t, result.Duplicate)
	assert.Zero(t, sub.calls)
}

func TestExecute_ReconciliationFlaggedFillDedupsAcrossRestart(t *testing.T) {
	store := storage.NewMemory()
	it := freshIntent("mkt-1", "tok-1")

	// The surviving leg of a half-failed pair: executed, flagged.
	require.NoError(t, store.AppendTrade(context.Background(), &storage.TradeRecord{
		ID:                     "t1",
		IdempotencyKey:         IntentHash(it),
		Status:                 types.StatusExecuted,
		RequiresReconciliation: true,
		ExecutedAt:             time.Now().UTC(),
	}))

	sub := &scriptedSubmitter{}
	e, err := New(testExecutorConfig(), sub, store)
	require.NoError(t, err)

	result := e.Execute(context.Background(), it)
	assert.True(t, result.Duplicate)
	assert.False(t, result.Success)
	assert.Zero(t, sub.calls, "an unpaired fill must not execute again")
}

func TestExecute_RetriesTransientFailures(t *testing.T) {
	sub := &scriptedSubmitter{errs: []error{
		&types.TransientError{Err: errors.New("connection reset")},
		&types.TransientError{Err: errors.New("gateway timeout")},
	}}
	e, err := New(testExecutorConfig(), sub, storage.NewMemory())
	require.NoError(t, err)

	result := e.Execute(context.Background(), freshIntent("mkt-1", "tok-1"))

	assert.True(t, result.Success)
	assert.Equal(t, 3, sub.calls)
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	sub := &scriptedSubmitter{errs: []error{
		&types.TransientError{Err: errors.New("down")},
		&types.TransientError{Err: errors.New("down")},
		&types.TransientError{Err: errors.New("down")},
	}}
	e, err := New(testExecutorConfig(), sub, storage.NewMemory())
	require.NoError(t, err)

	result := e.Execute(context.Background(), freshIntent("mkt-1", "tok-1"))

	assert.False(t, result.Success)
	assert.Equal(t, 3, sub.calls, "initial attempt plus two retries")
}

func TestExecute_PermanentErrorNotRetried(t *testing.T) {
	sub := &scriptedSubmitter{errs: []error{
		&types.OrderError{Code: types.ErrCodeNotEnoughBalance, Message: "insufficient balance"},
	}}
	e, err := New(testExecutorConfig(), sub, storage.NewMemory())
	require.NoError(t, err)

	result := e.Execute(context.Background(), freshIntent("mkt-1", "tok-1"))

	assert.False(t, result.Success)
	assert.Equal(t, 1, sub.calls)
}

func TestExecutePair_BothLegsSucceed(t *testing.T) {
	e, err := New(testExecutorConfig(), &scriptedSubmitter{}, storage.NewMemory())
	require.NoError(t, err)

	ra, rb := e.ExecutePair(context.Background(),
		freshIntent("mkt-1", "tok-yes"),
		freshIntent("mkt-1", "tok-no"))

	assert.True(t, ra.Success)
	assert.True(t, rb.Success)
	assert.False(t, ra.RequiresReconciliation)
	assert.False(t, rb.RequiresReconciliation)
}

func TestExecutePair_UnpairedLegFlagged(t *testing.T) {
	sub := &scriptedSubmitter{failToken: "tok-no"}
	e, err := New(testExecutorConfig(), sub, storage.NewMemory())
	require.NoError(t, err)

	ra, rb := e.ExecutePair(context.Background(),
		freshIntent("mkt-1", "tok-yes"),
		freshIntent("mkt-1", "tok-no"))

	assert.True(t, ra.Success)
	assert.True(t, ra.RequiresReconciliation, "surviving leg is flagged, never silently a success")
	assert.False(t, rb.Success)
	assert.False(t, rb.RequiresReconciliation)
}

func TestExecutePair_BothLegsFailNoFlag(t *testing.T) {
	sub := &scriptedSubmitter{errs: []error{
		&types.OrderError{Code: types.ErrCodeMarketNotReady, Message: "not ready"},
		&types.OrderError{Code: types.ErrCodeMarketNotReady, Message: "not ready"},
	}}
	e, err := New(testExecutorConfig(), sub, storage.NewMemory())
	require.NoError(t, err)

	ra, rb := e.ExecutePair(context.Background(),
		freshIntent("mkt-1", "tok-yes"),
		freshIntent("mkt-1", "tok-no"))

	assert.False(t, ra.Success)
	assert.False(t, rb.Success)
	assert.False(t, ra.RequiresReconciliation)
	assert.False(t, rb.RequiresReconciliation)
}
