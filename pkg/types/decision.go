package types

import "time"

// DecisionKind is the closed set of risk-decision variants.
type DecisionKind string

const (
	DecisionApproved DecisionKind = "approved"
	DecisionRejected DecisionKind = "rejected"
	DecisionKilled   DecisionKind = "killed"
)

// Rejection codes shared by the intent validator and the risk kernel.
// Every code maps to a human-readable reason suitable for alerting.
const (
	CodeStale                = "STALE"
	CodeAllowlistEmpty       = "ALLOWLIST_EMPTY"
	CodeNotOnAllowlist       = "NOT_ON_ALLOWLIST"
	CodePositionLimitReached = "POSITION_LIMIT_REACHED"
	CodeExposureLimitReached = "EXPOSURE_LIMIT_REACHED"
	CodeUnauthorized         = "UNAUTHORIZED_SOURCE"
	CodeBelowViableSize      = "BELOW_VIABLE_SIZE"
	CodeBudgetExceeded       = "BUDGET_EXCEEDED"
	CodeCooldownActive       = "COOLDOWN_ACTIVE"
	CodeDailyStopped         = "DAILY_STOPPED"
	CodeKillSwitchActive     = "KILL_SWITCH_ACTIVE"
	CodeTotalDrawdown        = "TOTAL_DRAWDOWN"
	CodePairAborted          = "PAIR_ABORTED"
)

// RiskDecision is the pure output of the risk kernel. It is never persisted
// itself; the risk events behind stops and kills are.
type RiskDecision struct {
	Kind         DecisionKind
	Code         string // rejection code, empty when approved
	Reason       string // human-readable
	AdjustedSize float64 // approved size, possibly clamped to the per-trade cap
}

// Approved reports whether the trade may proceed.
func (d RiskDecision) Approved() bool {
	return d.Kind == DecisionApproved
}

// KillSwitchState is the persisted singleton halting all trading.
// Once RequiresManualRestart is set, no automated path may clear it.
type KillSwitchState struct {
	Active                bool
	Reason                string
	TriggeredAt           time.Time
	RequiresManualRestart bool

	// Daily-stop bookkeeping, persisted in the same row so that a
	// crash cannot lose escalation state.
	ConsecutiveStopDays int
	LastStopDay         string // "2006-01-02", UTC
}
