package types

import (
	"errors"
	"fmt"
)

// ErrSchemaMismatch is returned by stores when the persisted schema version
// does not match the binary's. The process must refuse to start on it;
// silent migration is never attempted.
var ErrSchemaMismatch = errors.New("ledger schema version mismatch")

// ErrDuplicateIntent marks an intent whose idempotency hash already maps to
// a successful execution inside the dedup window. Never retried.
var ErrDuplicateIntent = errors.New("duplicate intent within idempotency window")

// OrderError is a failure reported by the execution venue.
type OrderError struct {
	Code    string // venue error code or internal code
	Message string
	OrderID string
	Outcome string
}

func (e *OrderError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s order failed (ID: %s): %s (%s)", e.Outcome, e.OrderID, e.Message, e.Code)
	}
	return fmt.Sprintf("%s order failed: %s (%s)", e.Outcome, e.Message, e.Code)
}

// TransientError wraps a network or venue failure that is safe to retry.
// Validation and idempotency failures are never wrapped in it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err may be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Known venue error codes.
const (
	ErrCodeNotEnoughBalance = "INVALID_ORDER_NOT_ENOUGH_BALANCE"
	ErrCodeFOKNotFilled     = "FOK_ORDER_NOT_FILLED_ERROR"
	ErrCodeMarketNotReady   = "MARKET_NOT_READY"
	ErrCodeUnmatched        = "UNMATCHED"
	ErrCodeUnknownStatus    = "UNKNOWN_STATUS"
)
