package domain

import "errors"

// Sentinel errors used across stores, services, and handlers. Handlers map
// them to HTTP status codes; callers distinguish retriable temporal failures
// (too early, betting closed, refund window not open) from permanent state
// conflicts (already resolved / claimed / refunded, refunds started).
var (
	ErrNotFound    = errors.New("not found")
	ErrBetNotFound = errors.New("bet not found")

	ErrInvalidDeadline = errors.New("deadline must be in the future and within the allowed horizon")
	ErrInvalidResolver = errors.New("resolver address is missing or invalid")
	ErrZeroAmount      = errors.New("amount must be positive")

	ErrBettingClosed   = errors.New("betting closed: deadline has passed")
	ErrAlreadyResolved = errors.New("bet already resolved")
	ErrUnauthorized    = errors.New("caller is not the designated resolver")
	ErrTooEarly        = errors.New("too early: deadline has not passed")
	ErrRefundsStarted  = errors.New("refunds already started; bet can no longer be resolved")

	ErrBetNotResolved  = errors.New("bet not resolved")
	ErrAlreadyClaimed  = errors.New("already claimed")
	ErrAlreadyRefunded = errors.New("already refunded")
	ErrNothingToClaim  = errors.New("nothing to claim")
	ErrNothingToRefund = errors.New("nothing to refund")
	ErrRefundTooEarly  = errors.New("refund window not open yet")

	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrLockHeld          = errors.New("lock already held")
)
