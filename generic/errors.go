/*
errors.go - Centralized error types for the generic engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages should wrap these errors with additional context.

ERROR CATEGORIES:
  1. Ledger errors - Event persistence failures and version conflicts
  2. Validation errors - Malformed dates and periods
  3. Projection errors - Missing streams, exhausted step budgets

USAGE:
  Domain packages can wrap generic errors:

    if errors.Is(err, generic.ErrStreamNotFound) {
        return loan.ErrLoanNotFound
    }

SEE ALSO:
  - ledger.go: Uses these errors
  - store.go: Uses these errors
  - loan/errors.go: Domain errors layered on top
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned by a Store when an event with the
	// same idempotency key already exists in the stream. The ledger turns this
	// into a replay of the stored event.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrStreamNotFound is returned when a stream has no events.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrSnapshotNotFound is returned when no snapshot exists for a stream.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrStepBudgetExceeded is returned when a fold or walk runs past its
	// iteration cap.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")

	// ErrEmptyStreamID is returned when an event is appended without a stream.
	ErrEmptyStreamID = errors.New("event has no stream id")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConcurrencyConflictError is returned when the caller's expected version no
// longer matches the stream head.
type ConcurrencyConflictError struct {
	StreamID StreamID
	Expected int64
	Actual   int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on %s: expected version %d, actual %d",
		e.StreamID, e.Expected, e.Actual)
}

func (e *ConcurrencyConflictError) Unwrap() error {
	return ErrConcurrentModification
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var dateErr *MalformedDateError
	return errors.As(err, &dateErr) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrEmptyStreamID)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStreamNotFound) ||
		errors.Is(err, ErrSnapshotNotFound)
}
