package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicate        = errors.New("duplicate entry")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")

	// ErrPrecondition marks a caller or internal bug, e.g. removing a key
	// that was never entered. Never retried.
	ErrPrecondition = errors.New("precondition violated")

	// ErrCorrupt aborts the operation that observed inconsistent state
	// (wrong row counts after a delete, dirty set not drained).
	ErrCorrupt = errors.New("inconsistent state")

	// ErrIrrelevant marks a recording the relevance rules refuse.
	ErrIrrelevant = errors.New("irrelevant recording")

	// ErrInsufficientData is returned when there is not enough data to
	// produce a meaningful answer.
	ErrInsufficientData = errors.New("insufficient data")
)
