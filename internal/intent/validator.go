package intent

import (
	"fmt"
	"time"

	"github.com/polysentry/polysentry/pkg/types"
)

// Result is a validation outcome. Rejections are values, not errors:
// an invalid intent is an expected business condition.
type Result struct {
	Valid  bool
	Code   string
	Detail string
}

// Config holds validator thresholds.
type Config struct {
	StaleThreshold time.Duration
	MaxPositions   int
}

// Validator is the pure intent gate in front of the risk kernel. It has no
// side effects and does no logging; the orchestrator records every outcome.
type Validator struct {
	cfg Config
}

// NewValidator creates an intent validator.
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate runs the ordered checks; the first failure wins.
//
// Order: staleness, fail-closed allowlist, membership, position limit.
// An empty allowlist rejects everything; a missing market feed must never
// silently allow trades through.
func (v *Validator) Validate(it *types.TradeIntent, allowlist map[string]struct{}, openPositions int, now time.Time) Result {
	if age := now.Sub(it.CreatedAt); age > v.cfg.StaleThreshold {
		return Result{
			Code:   types.CodeStale,
			Detail: fmt.Sprintf("intent is %s old, threshold %s", age.Round(time.Millisecond), v.cfg.StaleThreshold),
		}
	}

	if len(allowlist) == 0 {
		return Result{
			Code:   types.CodeAllowlistEmpty,
			Detail: "allowlist is empty; refusing all trades",
		}
	}

	if _, ok := allowlist[it.MarketID]; !ok {
		return Result{
			Code:   types.CodeNotOnAllowlist,
			Detail: fmt.Sprintf("market %s is not tradeable", it.MarketID),
		}
	}

	if openPositions >= v.cfg.MaxPositions {
		return Result{
			Code:   types.CodePositionLimitReached,
			Detail: fmt.Sprintf("%d open positions, limit %d", openPositions, v.cfg.MaxPositions),
		}
	}

	return Result{Valid: true}
}
