/*
errors.go - Error to HTTP status mapping

PURPOSE:
  Every handler reports failures through writeError. The mapping lives in
  one place so that the same domain error always yields the same status
  and the same machine-readable code.

MAPPING:
  400  validation family (dates, periods, amounts, rates, coverage, range)
  404  unknown loan
  409  version conflict, archived loan
  422  schedule exceeded its step budget
  429  rate limit (ratelimit.go)
  503  request timed out or was cancelled
  500  everything else

SEE ALSO:
  - loan/errors.go: Domain error taxonomy
  - generic/errors.go: Ledger and date errors
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/loan"
)

// errMalformedBody wraps JSON decoding and query parsing failures.
var errMalformedBody = errors.New("malformed request")

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errMalformedBody, fmt.Sprintf(format, args...))
}

// classify returns the status, code and structured details for err.
func classify(err error) (int, string, map[string]any) {
	var (
		dateErr     *generic.MalformedDateError
		coverageErr *loan.RatePeriodCoverageError
		rangeErr    *loan.EventRangeError
		amountErr   *loan.AmountError
		fieldErr    *loan.InputValidationError
		conflictErr *generic.ConcurrencyConflictError
	)

	switch {
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest, "malformed_request", nil
	case errors.As(err, &dateErr):
		return http.StatusBadRequest, "invalid_date", map[string]any{"value": dateErr.Input}
	case errors.As(err, &coverageErr):
		return http.StatusBadRequest, "rate_period_coverage", map[string]any{
			"kind":  coverageErr.Kind,
			"start": coverageErr.Range.Start,
			"end":   coverageErr.Range.End,
		}
	case errors.As(err, &rangeErr):
		return http.StatusBadRequest, "event_out_of_range", map[string]any{
			"event": rangeErr.Kind,
			"date":  rangeErr.Date,
			"start": rangeErr.Range.Start,
			"end":   rangeErr.Range.End,
		}
	case errors.As(err, &amountErr):
		details := map[string]any{"amount": amountErr.Amount}
		if !amountErr.Limit.IsZero() {
			details["limit"] = amountErr.Limit
		}
		return http.StatusBadRequest, "invalid_amount", details
	case errors.Is(err, generic.ErrInvalidPeriod):
		return http.StatusBadRequest, "invalid_period", nil
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest, fieldCode(fieldErr), map[string]any{"field": fieldErr.Field}
	case loan.IsValidationError(err):
		return http.StatusBadRequest, "invalid_input", nil

	case errors.Is(err, loan.ErrLoanNotFound), generic.IsNotFound(err):
		return http.StatusNotFound, "not_found", nil

	case errors.As(err, &conflictErr):
		return http.StatusConflict, "version_conflict", map[string]any{
			"expected_version": conflictErr.Expected,
			"actual_version":   conflictErr.Actual,
		}
	case errors.Is(err, generic.ErrConcurrentModification):
		return http.StatusConflict, "version_conflict", nil
	case errors.Is(err, loan.ErrLoanArchived):
		return http.StatusConflict, "loan_archived", nil

	case errors.Is(err, generic.ErrStepBudgetExceeded):
		return http.StatusUnprocessableEntity, "step_budget_exceeded", nil

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "timeout", nil
	}
	return http.StatusInternalServerError, "internal", nil
}

func fieldCode(e *loan.InputValidationError) string {
	switch {
	case errors.Is(e, loan.ErrInvalidPrincipal):
		return "invalid_principal"
	case errors.Is(e, loan.ErrInvalidRate):
		return "invalid_rate"
	case errors.Is(e, loan.ErrInvalidTerm):
		return "invalid_term"
	}
	return "invalid_input"
}

// writeError logs err at a level matching its status and writes the JSON body.
// Internal errors are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, details := classify(err)
	logger := zerolog.Ctx(r.Context())

	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		message = http.StatusText(status)
	} else {
		logger.Debug().Err(err).Int("status", status).Str("code", code).Msg("request rejected")
	}

	writeJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
