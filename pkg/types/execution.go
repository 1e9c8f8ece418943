package types

import "time"

// Trade execution statuses recorded in trade history.
const (
	StatusExecuted  = "executed"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
	StatusDuplicate = "duplicate"
)

// ExecutionResult is the outcome of one execution attempt.
type ExecutionResult struct {
	IntentID       string
	OrderID        string
	Success        bool
	DryRun         bool
	Duplicate      bool
	FillPrice      float64
	FillSize       float64
	IdempotencyKey string
	ExecutedAt     time.Time
	Error          error

	// RequiresReconciliation marks the surviving leg of a two-leg
	// execution whose sibling failed. The position is real but unpaired;
	// it is surfaced, never silently treated as success.
	RequiresReconciliation bool
}
