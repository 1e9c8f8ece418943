package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polysentry/polysentry/internal/storage"
	"github.com/polysentry/polysentry/pkg/types"
)

func testKernelConfig() Config {
	return Config{
		PerTradeCap:         100,
		MinViableSize:       5,
		MaxPositions:        5,
		MaxTotalExposure:    500,
		DailyBudget:         1000,
		HourlyBudget:        500,
		DailyStopPct:        5,
		HardKillPct:         20,
		MaxConsecutiveStops: 3,
		SingleTradeLossPct:  5,
		CooldownAfterLoss:   2 * time.Minute,
		Logger:              zap.NewNop(),
	}
}

func newTestKernel(t *testing.T, cfg Config) (*Kernel, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemory()
	k, err := NewKernel(context.Background(), cfg, store)
	require.NoError(t, err)
	return k, store
}

func healthyCapital() *types.CapitalState {
	return &types.CapitalState{
		StartingCapital: 1000,
		CurrentCapital:  1000,
	}
}

func testIntent(size float64) *types.TradeIntent {
	return &types.TradeIntent{
		ID:       "intent-1",
		SourceID: "copy-source",
		MarketID: "mkt-1",
		TokenID:  "tok-1",
		Side:     types.SideBuy,
		Price:    0.50,
		Size:     size,
	}
}

func TestApproveTrade_Approves(t *testing.T) {
	k, _ := newTestKernel(t, testKernelConfig())

	d, err := k.ApproveTrade(context.Background(), testIntent(50), healthyCapital())
	require.NoError(t, err)

	assert.True(t, d.Approved())
	assert.Equal(t, 50.0, d.AdjustedSize)
}

func TestApproveTrade_ClampsToPerTradeCap(t *testing.T) {
	k, _ := newTestKernel(t, testKernelConfig())

	d, err := k.ApproveTrade(context.Background(), testIntent(250), healthyCapital())
	require.NoError(t, err)

	assert.True(t, d.Approved())
	assert.Equal(t, 100.0, d.AdjustedSize)
}

func TestApproveTrade_ClampsToAvailableCapital(t *testing.T) {
	k, _ := newTestKernel(t, testKernelConfig())

	cap := healthyCapital()
	cap.CurrentCapital = 100
	cap.TotalExposure = 60

	d, err := k.ApproveTrade(context.Background(), testIntent(80), cap)
	require.NoError(t, err)

	assert.True(t, d.Approved())
	assert.Equal(t, 40.0, d.AdjustedSize)
}

func TestApproveTrade_RejectsBelowViableSize(t *testing.T) {
	k, _ := newTestKernel(t, testKernelConfig())

	cap := healthyCapital()
	cap.CurrentCapital = 100
	cap.TotalExposure = 98

	d, err := k.ApproveTrade(context.Background(), testIntent(50), cap)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionRejected, d.Kind)
	assert.Equal(t, types.CodeBelowViableSize, d.Code)
}

func TestApproveTrade_RejectsAtPositionLimit(t *testing.T) {
	k, _ := newTestKernel(t, testKernelConfig())

	cap := healthyCapital()
	cap.OpenPositions = 5

	d, err := k.ApproveTrade(context.Background(), testIntent(50), cap)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionRejected, d.Kind)
	assert.Equal(t, types.CodePositionLimitReached, d.Code)
}

func TestApproveTrade_RejectsAtExposureLimit(t *testing.T) {
	k, _ := newTestKernel(t, testKernelConfig())

	cap := healthyCapital()
	cap.TotalExposure = 480

	d, err := k.ApproveTrade(context.Background(), testIntent(50), cap)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionRejected, d.Kind)
	assert.Equal(t, types.CodeExposureLimitReached, d.Code)
}

func TestApproveTrade_UnauthorizedSourceTripsKill(t *testing.T) {
	cfg := testKernelConfig()
	cfg.AllowedSources = []string{"trusted-source"}
	k, store := newTestKernel(t, cfg)

	d, err := k.ApproveTrade(context.Background(), testIntent(50), healthyCapital())
	require.NoError(t, err)

	assert.Equal(t, types.DecisionKilled, d.Kind)
	assert.Equal(t, types.CodeUnauthorized, d.Code)
	assert.True(t, k.State().Active)
	assert.True(t, k.State().RequiresManualRestart)

	events := store.RiskEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "auth_kill", events[0].Kind)

	// The kill is absorbing even for authorized sources.
	authorized := testIntent(50)
	authorized.SourceID = "trusted-source"
	d, err = k.ApproveTrade(context.Background(), authorized, healthyCapital())
	require.NoError(t, err)
	assert.Equal(t, types.CodeKillSwitchActive, d.Code)
}

func TestApproveTrade_KillSurvivesRestart(t *testing.T) {
	cfg := testKernelConfig()
	cfg.AllowedSources = []string{"trusted-source"}
	k, store := newTestKernel(t, cfg)

	_, err := k.ApproveTrade(context.Background(), testIntent(50), healthyCapital())
	require.NoError(t, err)
	require.True(t, k.State().Active)

	restarted, err := NewKernel(context.Background(), cfg, store)
	require.NoError(t, err)
	assert.True(t, restarted.State().Active)
}

func TestApproveTrade_DailyStop(t *testing.T) {
	k, store := newTestKernel(t, testKernelConfig())

	cap := healthyCapital()
	cap.DailyPnL = -50
	cap.DailyPnLPct = -5

	d, err := k.ApproveTrade(context.Background(), testIntent(50), cap)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionRejected, d.Kind)
	assert.Equal(t, types.CodeDailyStopped, d.Code)
	assert.False(t, k.State().Active, "daily stop is soft, not a kill")
	assert.Equal(t, 1, k.State().ConsecutiveStopDays)

	events := store.RiskEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "daily_stop", events[0].Kind)

	// Re-triggering on the same day does not duplicate the event.
	_, err = k.ApproveTrade(context.Background(), testIntent(50), cap)
	require.NoError(t, err)
	assert.Len(t, store.RiskEvents(), 1)
}

func TestApproveTrade_ConsecutiveStopsEscalateToKill(t *testing.T) {
	k, _ := newTestKernel(t, testKernelConfig())

	cap := healthyCapital()
	cap.DailyPnLPct = -6

	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	for day := 0; day < 2; day++ {
		k.now = func() time.Time { return base.AddDate(0, 0, day) }
		d, err := k.ApproveTrade(context.Background(), testIntent(50), cap)
		require.NoError(t, err)
		require.Equal(t, types.CodeDailyStopped, d.Code)
	}

	k.now = func() time.Time { return base.AddDate(0, 0, 2) }
	d, err := k.ApproveTrade(context.Background(), testIntent(50), cap)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionKilled, d.Kind)
	assert.True(t, k.State().Active)
}

func TestApproveTrade_GapResetsConsecutiveStops(t *testing.T) {
	k, _ := newTestKernel(t, testKernelConfig())

	cap := healthyCapital()
	cap.DailyPnLPct = -6

	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	k.now = func() time.Time { return base }
	_, err := k.ApproveTrade(context.Background(), testIntent(50), cap)
	require.NoError(t, err)
	require.Equal(t, 1, k.State().ConsecutiveStopDays)

	// A profitable day in between resets the streak.
	k.now = func() time.Time { return base.AddDate(0, 0, 2) }
	_, err = k.ApproveTrade(context.Background(), testIntent(50), cap)
	require.NoError(t, err)
	assert.Equal(t, 1, k.State().ConsecutiveStopDays)
	assert.False(t, k.State().Active)
}

func TestApproveTrade_TotalDrawdownKills(t *testing.T) {
	k, store := newTestKernel(t, testKernelConfig())

	cap := healthyCapital()
	cap.TotalPnLPct = -25

	d, err := k.ApproveTrade(context.Background(), testIntent(50), cap)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionKilled, d.Kind)
	assert.Equal(t, types.CodeTotalDrawdown, d.Code)
	assert.True(t, k.State().Active)

	events := store.RiskEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "kill", events[0].Kind)
	assert.Equal(t, -25.0, events[0].TotalPnLPct)
}

func TestApproveTrade_DailyBudget(t *testing.T) {
	k, store := newTestKernel(t, testKernelConfig())

	err := store.AppendTrade(context.Background(), &storage.TradeRecord{
		ID:         "t1",
		Status:     types.StatusExecuted,
		Price:      1.0,
		Size:       990,
		ExecutedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	d, err := k.ApproveTrade(context.Background(), testIntent(20), healthyCapital())
	require.NoError(t, err)

	assert.Equal(t, types.DecisionRejected, d.Kind)
	assert.Equal(t, types.CodeBudgetExceeded, d.Code)
}

func TestApproveTrade_HourlyBudgetIgnoresOldSpend(t *testing.T) {
	cfg := testKernelConfig()
	cfg.DailyBudget = 10000
	k, store := newTestKernel(t, cfg)

	now := time.Now().UTC()
	for _, tr := range []*storage.TradeRecord{
		{ID: "t1", Status: types.StatusExecuted, Price: 1.0, Size: 490, ExecutedAt: now.Add(-30 * time.Minute)},
		{ID: "t2", Status: types.StatusExecuted, Price: 1.0, Size: 490, ExecutedAt: now.Add(-2 * time.Hour)},
	} {
		require.NoError(t, store.AppendTrade(context.Background(), tr))
	}

	d, err := k.ApproveTrade(context.Background(), testIntent(20), healthyCapital())
	require.NoError(t, err)

	assert.Equal(t, types.CodeBudgetExceeded, d.Code)

	d, err = k.ApproveTrade(context.Background(), testIntent(8), healthyCapital())
	require.NoError(t, err)
	assert.True(t, d.Approved())
}

func TestRecordTradeClose_ArmsCooldown(t *testing.T) {
	k, _ := newTestKernel(t, testKernelConfig())

	err := k.RecordTradeClose(context.Background(), "mkt-1", -10, healthyCapital())
	require.NoError(t, err)
	require.False(t, k.State().Active, "a small loss does not kill")

	d, err := k.ApproveTrade(context.Background(), testIntent(50), healthyCapital())
	require.NoError(t, err)
	assert.Equal(t, types.CodeCooldownActive, d.Code)

	// Past the cooldown window the kernel approves again.
	k.now = func() time.Time { return time.Now().UTC().Add(3 * time.Minute) }
	d, err = k.ApproveTrade(context.Background(), testIntent(50), healthyCapital())
	require.NoError(t, err)
	assert.True(t, d.Approved())
}

func TestRecordTradeClose_ProfitDoesNotArmCooldown(t *testing.T) {
	k, _ := newTestKernel(t, testKernelConfig())

	err := k.RecordTradeClose(context.Background(), "mkt-1", 25, healthyCapital())
	require.NoError(t, err)

	d, err := k.ApproveTrade(context.Background(), testIntent(50), healthyCapital())
	require.NoError(t, err)
	assert.True(t, d.Approved())
}

func TestRecordTradeClose_AnomalousLossKills(t *testing.T) {
	k, store := newTestKernel(t, testKernelConfig())

	// -60 on 1000 starting capital is 6%, past the 5% single-trade limit.
	err := k.RecordTradeClose(context.Background(), "mkt-1", -60, healthyCapital())
	require.NoError(t, err)

	assert.True(t, k.State().Active)

	events := store.RiskEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "anomaly_kill", events[0].Kind)
}

func TestReset(t *testing.T) {
	cfg := testKernelConfig()
	cfg.AllowedSources = []string{"trusted-source"}
	k, store := newTestKernel(t, cfg)

	_, err := k.ApproveTrade(context.Background(), testIntent(50), healthyCapital())
	require.NoError(t, err)
	require.True(t, k.State().Active)

	err = k.Reset(context.Background(), "alice")
	require.NoError(t, err)

	assert.False(t, k.State().Active)

	events := store.RiskEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "reset", events[1].Kind)

	// Trading resumes for authorized sources.
	authorized := testIntent(50)
	authorized.SourceID = "trusted-source"
	d, err := k.ApproveTrade(context.Background(), authorized, healthyCapital())
	require.NoError(t, err)
	assert.True(t, d.Approved())
}

func TestReset_ErrorsWhenNotActive(t *testing.T) {
	k, _ := newTestKernel(t, testKernelConfig())

	err := k.Reset(context.Background(), "alice")
	assert.Error(t, err)
}

func TestNewKernel_Validation(t *testing.T) {
	store := storage.NewMemory()

	_, err := NewKernel(context.Background(), testKernelConfig(), nil)
	assert.Error(t, err)

	cfg := testKernelConfig()
	cfg.Logger = nil
	_, err = NewKernel(context.Background(), cfg, store)
	assert.Error(t, err)

	cfg = testKernelConfig()
	cfg.PerTradeCap = 0
	_, err = NewKernel(context.Background(), cfg, store)
	assert.Error(t, err)
}

func TestNewKernel_InitializesInactiveState(t *testing.T) {
	store := storage.NewMemory()

	k, err := NewKernel(context.Background(), testKernelConfig(), store)
	require.NoError(t, err)

	assert.False(t, k.State().Active)

	persisted, err := store.GetKillSwitch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.False(t, persisted.Active)
}
