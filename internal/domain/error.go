package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Gateway errors
	ErrTransport         = errors.New("transfer gateway transport error")
	ErrMalformedResponse = errors.New("malformed transfer gateway response")

	// Payout flow
	ErrPayoutInFlight  = errors.New("a payout for this account is already in flight")
	ErrPayoutNotQueued = errors.New("payout is not queued")
	ErrQueueFull       = errors.New("payout queue is full")
	ErrRateLimited     = errors.New("rate limit exceeded")

	// Storage
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")
)
