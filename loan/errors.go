package loan

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidPrincipal = errors.New("invalid principal")
	ErrInvalidRate      = errors.New("invalid rate")
	ErrInvalidTerm      = errors.New("invalid term")

	// ErrRatePeriodCoverage is the root of every *RatePeriodCoverageError.
	ErrRatePeriodCoverage = errors.New("rate periods do not cover the loan term")

	// ErrEventOutOfRange is the root of every *EventRangeError.
	ErrEventOutOfRange = errors.New("event outside the loan schedule")

	// ErrInvalidAmount is the root of every *AmountError.
	ErrInvalidAmount = errors.New("invalid amount")

	ErrLoanNotFound = errors.New("loan not found")
	ErrLoanArchived = errors.New("loan is archived")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InputValidationError names the offending field.
type InputValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *InputValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidInput
	}
	return e.Err
}

// CoverageKind classifies a rate period coverage failure.
type CoverageKind string

const (
	CoverageGap         CoverageKind = "gap"
	CoverageOverlap     CoverageKind = "overlap"
	CoverageMissingHead CoverageKind = "missing-head"
	CoverageMissingTail CoverageKind = "missing-tail"
)

// RatePeriodCoverageError names the uncovered or doubly covered range.
type RatePeriodCoverageError struct {
	Kind  CoverageKind
	Range generic.Period
}

func (e *RatePeriodCoverageError) Error() string {
	switch e.Kind {
	case CoverageMissingHead:
		return fmt.Sprintf("rate periods start late: %s is not covered", e.Range)
	case CoverageMissingTail:
		return fmt.Sprintf("rate periods end early: %s is not covered", e.Range)
	case CoverageOverlap:
		return fmt.Sprintf("rate periods overlap on %s", e.Range)
	default:
		return fmt.Sprintf("rate periods have a gap: %s is not covered", e.Range)
	}
}

func (e *RatePeriodCoverageError) Unwrap() error { return ErrRatePeriodCoverage }

// EventRangeError is returned for scenario events dated outside
// [first payment date, payoff date].
type EventRangeError struct {
	Kind  EventKind
	Date  generic.TimePoint
	Range generic.Period
}

func (e *EventRangeError) Error() string {
	return fmt.Sprintf("%s dated %s is outside the schedule %s", e.Kind, e.Date, e.Range)
}

func (e *EventRangeError) Unwrap() error { return ErrEventOutOfRange }

// AmountError is returned for non-positive extra payments and extras that
// would cover more than the outstanding balance.
type AmountError struct {
	Amount decimal.Decimal
	Limit  decimal.Decimal // zero when the amount is simply not positive
	Reason string
}

func (e *AmountError) Error() string {
	if e.Limit.IsZero() {
		return fmt.Sprintf("amount %s %s", e.Amount.StringFixed(2), e.Reason)
	}
	return fmt.Sprintf("amount %s %s (%s)", e.Amount.StringFixed(2), e.Reason, e.Limit.StringFixed(2))
}

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidationError reports errors caused by bad input, which callers may
// fix and resubmit.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPrincipal) ||
		errors.Is(err, ErrInvalidRate) ||
		errors.Is(err, ErrInvalidTerm) ||
		errors.Is(err, ErrRatePeriodCoverage) ||
		errors.Is(err, ErrEventOutOfRange) ||
		errors.Is(err, ErrInvalidAmount) ||
		generic.IsClientError(err)
}
