package risk

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

// Kernel is the single gatekeeper in front of execution. It is a state
// machine over one persisted flag plus transient per-call checks:
//
//	ACTIVE -> DAILY_STOPPED   soft; clears at the next calendar day
//	ACTIVE -> KILLED          absorbing; only an operator reset clears it
//
// Every transition into DAILY_STOPPED or KILLED is persisted with its
// triggering reason before the decision is returned, so a crash immediately
// after cannot lose the state.
type Kernel struct {
	mu     sync.Mutex
	cfg    Config
	store  storage.Store
	state  types.KillSwitchState
	logger *zap.Logger

	lastLossAt time.Time
	now        func() time.Time
}

// Config holds the kernel's limits.
type Config struct {
	PerTradeCap         float64
	MinViableSize       float64
	MaxPositions        int
	MaxTotalExposure    float64
	DailyBudget         float64
	HourlyBudget        float64
	DailyStopPct        float64 // stop trading for the day at -N% daily PnL
	HardKillPct         float64 // kill at -N% total PnL
	MaxConsecutiveStops int     // N stopped days in a row escalates to KILLED
	SingleTradeLossPct  float64 // post-trade anomaly threshold
	CooldownAfterLoss   time.Duration
	AllowedSources      []string // empty means any source is authorized
	Logger              *zap.Logger
}

// NewKernel loads the persisted kill-switch state (creating an inactive row
// on first run) and returns a ready kernel.
func NewKernel(ctx context.Context, cfg Config, store storage.Store) (*Kernel, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.PerTradeCap <= 0 {
		return nil, fmt.Errorf("per-trade cap must be positive")
	}
	if cfg.MaxPositions <= 0 {
		return nil, fmt.Errorf("max positions must be positive")
	}

	k := &Kernel{
		cfg:    cfg,
		store:  store,
		logger: cfg.Logger,
		now:    time.Now,
	}

	state, err := store.GetKillSwitch(ctx)
	if err != nil {
		return nil, fmt.Errorf("load kill switch: %w", err)
	}
	if state == nil {
		k.state = types.KillSwitchState{}
		err = store.SaveKillSwitch(ctx, &k.state, nil)
		if err != nil {
			return nil, fmt.Errorf("initialize kill switch: %w", err)
		}
	} else {
		k.state = *state
	}

	if k.state.Active {
		cfg.Logger.Warn("kill-switch-active-at-startup",
			zap.String("reason", k.state.Reason),
			zap.Time("triggered-at", k.state.TriggeredAt))
	}
	setKillSwitchMetric(k.state.Active)

	return k, nil
}

// ApproveTrade runs the ordered risk checks against the current capital
// state. The first failing check returns immediately; reasons are never
// combined. A non-nil error means the store failed and trading must halt.
func (k *Kernel) ApproveTrade(ctx context.Context, it *types.TradeIntent, cap *types.CapitalState) (types.RiskDecision, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	// 1. Kill switch.
	if k.state.Active {
		return k.reject(types.DecisionKilled, types.CodeKillSwitchActive,
			fmt.Sprintf("kill switch active since %s: %s",
				k.state.TriggeredAt.Format(time.RFC3339), k.state.Reason)), nil
	}

	// 2. Authorization. A mismatch is a security incident, not a
	// retryable rejection: it trips the kill switch.
	if len(k.cfg.AllowedSources) > 0 && !k.sourceAllowed(it.SourceID) {
		reason := fmt.Sprintf("unauthorized trade source %q for market %s", it.SourceID, it.MarketID)
		err := k.trip(ctx, "auth_kill", reason, cap)
		if err != nil {
			return types.RiskDecision{}, err
		}
		return k.reject(types.DecisionKilled, types.CodeUnauthorized, reason), nil
	}

	// 3. Position-count and exposure limits. Reject, no kill.
	if cap.OpenPositions >= k.cfg.MaxPositions {
		return k.reject(types.DecisionRejected, types.CodePositionLimitReached,
			fmt.Sprintf("%d open positions, limit %d", cap.OpenPositions, k.cfg.MaxPositions)), nil
	}
	if cap.TotalExposure+it.Size > k.cfg.MaxTotalExposure {
		return k.reject(types.DecisionRejected, types.CodeExposureLimitReached,
			fmt.Sprintf("exposure %.2f + trade %.2f exceeds max %.2f",
				cap.TotalExposure, it.Size, k.cfg.MaxTotalExposure)), nil
	}

	// 4. Per-trade cap: clamp rather than reject, unless even the
	// clamped size is below the minimum viable trade.
	size := it.Size
	if size > k.cfg.PerTradeCap {
		size = k.cfg.PerTradeCap
	}
	if available := cap.CurrentCapital - cap.TotalExposure; size > available {
		size = available
	}
	if size < k.cfg.MinViableSize {
		return k.reject(types.DecisionRejected, types.CodeBelowViableSize,
			fmt.Sprintf("clamped size %.2f is below minimum viable %.2f", size, k.cfg.MinViableSize)), nil
	}

	// 5. Spending budgets (rolling day and hour of executed notional).
	now := k.now().UTC()
	decision, err := k.checkBudgets(ctx, now, size)
	if err != nil {
		return types.RiskDecision{}, err
	}
	if decision != nil {
		return *decision, nil
	}

	// 6. Cooldown after a realized loss.
	if k.cfg.CooldownAfterLoss > 0 && !k.lastLossAt.IsZero() {
		if since := now.Sub(k.lastLossAt); since < k.cfg.CooldownAfterLoss {
			return k.reject(types.DecisionRejected, types.CodeCooldownActive,
				fmt.Sprintf("cooling down after loss, %s remaining", (k.cfg.CooldownAfterLoss - since).Round(time.Second))), nil
		}
	}

	// 7. Daily drawdown soft stop, escalating to KILLED after N
	// consecutive stopped days.
	if cap.DailyPnLPct <= -k.cfg.DailyStopPct {
		decision, err := k.dailyStop(ctx, cap)
		if err != nil {
			return types.RiskDecision{}, err
		}
		return decision, nil
	}

	// 8. Total drawdown hard kill.
	if cap.TotalPnLPct <= -k.cfg.HardKillPct {
		reason := fmt.Sprintf("total PnL %.2f%% breached hard kill threshold -%.2f%%",
			cap.TotalPnLPct, k.cfg.HardKillPct)
		err := k.trip(ctx, "kill", reason, cap)
		if err != nil {
			return types.RiskDecision{}, err
		}
		return k.reject(types.DecisionKilled, types.CodeTotalDrawdown, reason), nil
	}

	DecisionsTotal.WithLabelValues(string(types.DecisionApproved), "").Inc()
	return types.RiskDecision{Kind: types.DecisionApproved, AdjustedSize: size}, nil
}

func (k *Kernel) sourceAllowed(source string) bool {
	for _, s := range k.cfg.AllowedSources {
		if s == source {
			return true
		}
	}
	return false
}

func (k *Kernel) checkBudgets(ctx context.Context, now time.Time, size float64) (*types.RiskDecision, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	daySpent, err := k.store.SumExecutedNotional(ctx, dayStart)
	if err != nil {
		return nil, fmt.Errorf("read daily spend: %w", err)
	}
	if k.cfg.DailyBudget > 0 && daySpent+size > k.cfg.DailyBudget {
		d := k.reject(types.DecisionRejected, types.CodeBudgetExceeded,
			fmt.Sprintf("daily budget: spent %.2f + trade %.2f exceeds %.2f", daySpent, size, k.cfg.DailyBudget))
		return &d, nil
	}

	hourSpent, err := k.store.SumExecutedNotional(ctx, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("read hourly spend: %w", err)
	}
	if k.cfg.HourlyBudget > 0 && hourSpent+size > k.cfg.HourlyBudget {
		d := k.reject(types.DecisionRejected, types.CodeBudgetExceeded,
			fmt.Sprintf("hourly budget: spent %.2f + trade %.2f exceeds %.2f", hourSpent, size, k.cfg.HourlyBudget))
		return &d, nil
	}

	return nil, nil
}

// dailyStop persists the stop (and its consecutive-day bookkeeping) before
// returning the decision. N consecutive stopped days means the strategy is
// judged broken and the kernel escalates to KILLED.
func (k *Kernel) dailyStop(ctx context.Context, cap *types.CapitalState) (types.RiskDecision, error) {
	now := k.now().UTC()
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	firstTriggerToday := k.state.LastStopDay != today
	if firstTriggerToday {
		if k.state.LastStopDay == yesterday {
			k.state.ConsecutiveStopDays++
		} else {
			k.state.ConsecutiveStopDays = 1
		}
		k.state.LastStopDay = today
	}

	reason := fmt.Sprintf("daily PnL %.2f%% breached stop threshold -%.2f%% (consecutive stop days: %d)",
		cap.DailyPnLPct, k.cfg.DailyStopPct, k.state.ConsecutiveStopDays)

	if k.cfg.MaxConsecutiveStops > 0 && k.state.ConsecutiveStopDays >= k.cfg.MaxConsecutiveStops {
		killReason := fmt.Sprintf("%d consecutive daily stops, strategy judged broken", k.state.ConsecutiveStopDays)
		err := k.trip(ctx, "kill", killReason, cap)
		if err != nil {
			return types.RiskDecision{}, err
		}
		return k.reject(types.DecisionKilled, types.CodeTotalDrawdown, killReason), nil
	}

	if firstTriggerToday {
		ev := &storage.RiskEvent{
			ID:          uuid.New().String(),
			Kind:        "daily_stop",
			Reason:      reason,
			DailyPnLPct: cap.DailyPnLPct,
			TotalPnLPct: cap.TotalPnLPct,
			CreatedAt:   now,
		}
		err := k.store.SaveKillSwitch(ctx, &k.state, ev)
		if err != nil {
			return types.RiskDecision{}, fmt.Errorf("persist daily stop: %w", err)
		}

		k.logger.Warn("daily-stop-triggered",
			zap.Float64("daily-pnl-pct", cap.DailyPnLPct),
			zap.Int("consecutive-stop-days", k.state.ConsecutiveStopDays))
	}

	return k.reject(types.DecisionRejected, types.CodeDailyStopped, reason), nil
}

// RecordTradeClose is the post-trade entry point, called after a position
// closes. It arms the loss cooldown and treats an outsized single-trade
// loss as a sizing or pricing bug, tripping the kill switch.
func (k *Kernel) RecordTradeClose(ctx context.Context, marketID string, realizedPnL float64, cap *types.CapitalState) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if realizedPnL >= 0 {
		return nil
	}

	k.lastLossAt = k.now().UTC()

	lossPct := -realizedPnL / cap.StartingCapital * 100
	if k.cfg.SingleTradeLossPct > 0 && lossPct > k.cfg.SingleTradeLossPct {
		reason := fmt.Sprintf("single trade on %s lost %.2f%% of capital (threshold %.2f%%)",
			marketID, lossPct, k.cfg.SingleTradeLossPct)
		err := k.trip(ctx, "anomaly_kill", reason, cap)
		if err != nil {
			return err
		}
	}

	return nil
}

// trip sets KILLED and persists the state atomically with the triggering
// event. Callers hold the mutex.
func (k *Kernel) trip(ctx context.Context, kind, reason string, cap *types.CapitalState) error {
	k.state.Active = true
	k.state.Reason = reason
	k.state.TriggeredAt = k.now().UTC()
	k.state.RequiresManualRestart = true

	ev := &storage.RiskEvent{
		ID:        uuid.New().String(),
		Kind:      kind,
		Reason:    reason,
		CreatedAt: k.state.TriggeredAt,
	}
	if cap != nil {
		ev.DailyPnLPct = cap.DailyPnLPct
		ev.TotalPnLPct = cap.TotalPnLPct
	}

	err := k.store.SaveKillSwitch(ctx, &k.state, ev)
	if err != nil {
		return fmt.Errorf("persist kill switch: %w", err)
	}

	KillSwitchTrippedTotal.Inc()
	setKillSwitchMetric(true)

	k.logger.Error("kill-switch-tripped",
		zap.String("kind", kind),
		zap.String("reason", reason))

	return nil
}

// Reset clears the kill switch. This is the only path that may clear it,
// and it exists solely for the explicit operator command.
func (k *Kernel) Reset(ctx context.Context, operator string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.state.Active {
		return fmt.Errorf("kill switch is not active")
	}

	previous := k.state.Reason
	k.state = types.KillSwitchState{}

	ev := &storage.RiskEvent{
		ID:        uuid.New().String(),
		Kind:      "reset",
		Reason:    fmt.Sprintf("kill switch cleared by operator %q (was: %s)", operator, previous),
		CreatedAt: k.now().UTC(),
	}

	err := k.store.SaveKillSwitch(ctx, &k.state, ev)
	if err != nil {
		return fmt.Errorf("persist kill-switch reset: %w", err)
	}

	setKillSwitchMetric(false)
	k.logger.Warn("kill-switch-reset", zap.String("operator", operator))

	return nil
}

// State returns a copy of the persisted kill-switch state.
func (k *Kernel) State() types.KillSwitchState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

func (k *Kernel) reject(kind types.DecisionKind, code, reason string) types.RiskDecision {
	DecisionsTotal.WithLabelValues(string(kind), code).Inc()
	return types.RiskDecision{Kind: kind, Code: code, Reason: reason}
}
