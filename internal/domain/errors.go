package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by stores and
// services to communicate error conditions across package boundaries.
// -----------------------------------------------------------------------------

// Simulation errors
var (
	ErrSessionNotFound   = errors.New("simulation session not found")
	ErrSessionAbandoned  = errors.New("simulation session abandoned")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Content errors
var (
	ErrContentItemNotFound = errors.New("content item not found")
	ErrNoPredefinedContent = errors.New("no predefined content loaded")
)

// Response errors
var (
	ErrAlreadyAnswered = errors.New("item already answered")
	ErrUnexpectedItem  = errors.New("item is not the one awaiting an answer")
)

// Persistence errors
var (
	// ErrPersistence marks a store failure. The operation did not take effect
	// and can be retried by the caller.
	ErrPersistence = errors.New("persistence failure")
)

// General errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("service unavailable")
)

// IsNotFound reports whether err is any of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrContentItemNotFound)
}
