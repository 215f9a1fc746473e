package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrMarketNotFound    = errors.New("market_not_found")
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrPurchaserNotFound = errors.New("purchaser_not_found")
	ErrPositionNotFound  = errors.New("position_not_found")

	// State errors: the operation is legal in general but not for the
	// entity's current status.
	ErrMarketNotOpen           = errors.New("market_not_open")
	ErrMarketLocked            = errors.New("market_locked")
	ErrInvalidStatusTransition = errors.New("invalid_status_transition")
	ErrOutcomeNotSet           = errors.New("winning_outcome_not_set")
	ErrQueueNotEmpty           = errors.New("matching_queue_not_empty")
	ErrCountersNotZero         = errors.New("dependent_accounts_outstanding")
	ErrOrderAlreadyFinal       = errors.New("order_already_final")

	// Settling or closing a terminal entity. Batch callers treat these as
	// no-ops, not failures.
	ErrAlreadySettled = errors.New("already_settled")
	ErrAlreadyClosed  = errors.New("already_closed")

	ErrInsufficientLiquidity = errors.New("insufficient_liquidity")
	ErrInsufficientFunds     = errors.New("insufficient_funds")

	ErrCrossMatchingDisabled  = errors.New("cross_matching_disabled")
	ErrNoViableCrossLiquidity = errors.New("no_viable_cross_liquidity")

	ErrNotAuthorized          = errors.New("not_authorized")
	ErrPurchaserAlreadyExists = errors.New("purchaser_already_exists")
)

// ValidationError represents a request validation failure, rejected before
// any state is mutated.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
