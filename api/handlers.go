/*
handlers.go - HTTP API handlers for the loan engine

PURPOSE:
  Exposes loan.Service via REST API. Handles HTTP request/response and
  JSON serialization, and delegates everything else to the loan package.

ENDPOINTS:
  Loans:
    GET    /api/loans                       List loans (?include_archived=true)
    POST   /api/loans                       Create loan (optionally with events)
    GET    /api/loans/{id}                  Loan summary
    DELETE /api/loans/{id}                  Archive loan
    GET    /api/loans/{id}/schedule         Paged schedule (?page=&page_size=)
    GET    /api/loans/{id}/schedule.csv     Schedule export
    GET    /api/loans/{id}/events           Committed event history

  Scenarios:
    POST   /api/loans/{id}/preview                  What-if, nothing stored
    POST   /api/loans/{id}/events/extra-payment     Commit extra payment
    POST   /api/loans/{id}/events/rate-change       Commit rate change
    POST   /api/loans/{id}/events/holiday           Commit payment holiday

  Tools:
    GET    /api/loans/{id}/tips             Savings tips
    POST   /api/loans/{id}/refinance        Refinance comparison
    POST   /api/loans/{id}/optimize         Smallest extra payment for a goal
    POST   /api/calculator                  Stand-alone calculator

  Actual payments (never change the schedule):
    GET    /api/loans/{id}/actual-payments  Booked payments with totals
    POST   /api/loans/{id}/actual-payments  Book a payment

  Demo (demo.go):
    GET    /api/demo                        List demo portfolios
    POST   /api/demo/load                   Load a demo portfolio

REQUEST HEADERS:
  Idempotency-Key   Replays of a write return the first result (created=false)
  X-User-ID         Recorded as created_by; keys the rate limiter

REQUEST FLOW:
  1. Parse HTTP request (factory.LoanFactory for loan and event JSON)
  2. Call loan.Service, which validates before anything is appended
  3. Serialize response
  4. Map errors through writeError (errors.go)

SECURITY NOTE:
  No authentication. X-User-ID is trusted as sent.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/loan"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderUserID         = "X-User-ID"

	maxBodyBytes = 1 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Database is the part of the store the HTTP layer touches directly.
type Database interface {
	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service     *loan.Service
	DB          Database
	LoanFactory *factory.LoanFactory
	// DemoEnabled exposes /api/demo. Off in production.
	DemoEnabled bool
}

// NewHandler creates a handler over a service and the store behind it.
func NewHandler(svc *loan.Service, db Database) *Handler {
	return &Handler{
		Service:     svc,
		DB:          db,
		LoanFactory: factory.NewLoanFactory(),
		DemoEnabled: true,
	}
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ListLoans returns loan summaries, oldest first.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	includeArchived, err := boolQuery(r, "include_archived")
	if err != nil {
		writeError(w, r, err)
		return
	}
	loans, err := h.Service.ListLoans(r.Context(), includeArchived)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoanListDTO{Loans: loans, Total: len(loans)})
}

// CreateLoan stores a loan and commits the events listed in the body.
// The service checks every event before the loan is written, so a bad event
// leaves nothing behind.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	l, events, err := h.LoanFactory.FromJSON(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	created, isNew, err := h.Service.CreateLoanWithEvents(ctx, l, events, commitOptions(r, nil, ""))
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := h.Service.GetLoanSummary(ctx, created.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, CreateLoanDTO{LoanID: created.ID, Created: isNew, Summary: summary})
}

// GetLoan returns the loan summary.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.GetLoanSummary(r.Context(), loanID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ArchiveLoan hides the loan from the default listing. Its history stays.
func (h *Handler) ArchiveLoan(w http.ResponseWriter, r *http.Request) {
	expected, err := int64Query(r, "expected_version")
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.Service.ArchiveLoan(r.Context(), loanID(r), commitOptions(r, expected, ""))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetSchedule returns one page of the committed schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pageSize, err := intQuery(r, "page_size", loan.DefaultPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.Service.GetSchedule(r.Context(), loanID(r), page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ExportSchedule streams the committed schedule as CSV.
func (h *Handler) ExportSchedule(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	name, err := h.Service.ExportScheduleCSV(r.Context(), loanID(r), &buf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// ListEvents returns the committed events, oldest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := loanID(r)
	events, err := h.Service.ListEvents(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []loan.CommittedEvent{}
	}
	writeJSON(w, http.StatusOK, EventsDTO{LoanID: id, Events: events})
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// PreviewScenario runs hypothetical events on top of the committed ones.
func (h *Handler) PreviewScenario(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Events) == 0 {
		writeError(w, r, badRequest("events must not be empty"))
		return
	}
	events := make([]loan.Event, 0, len(req.Events))
	for i, ej := range req.Events {
		e, err := h.LoanFactory.ParseEvent(ej)
		if err != nil {
			writeError(w, r, fmt.Errorf("events[%d]: %w", i, err))
			return
		}
		events = append(events, e)
	}

	preview, err := h.Service.PreviewScenario(r.Context(), loanID(r), events)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewDTO(preview))
}

// CommitEvent returns a handler committing one event of the given kind.
func (h *Handler) CommitEvent(kind loan.EventKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CommitRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.Type = string(kind)
		e, err := h.LoanFactory.ParseEvent(req.EventJSON)
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := r.Context()
		id := loanID(r)
		opts := commitOptions(r, req.ExpectedVersion, req.IdempotencyKey)

		var result *loan.CommitResult
		if kind == loan.EventExtraPayment {
			result, err = h.Service.CommitExtraPayment(ctx, id, *e.ExtraPayment, opts)
		} else {
			result, err = h.Service.CommitEvent(ctx, id, e, opts)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, result)
	}
}

// =============================================================================
// TOOL HANDLERS
// =============================================================================

// GetTips returns savings tips computed from what-if scenarios.
func (h *Handler) GetTips(w http.ResponseWriter, r *http.Request) {
	id := loanID(r)
	tips, err := h.Service.GetTips(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tips == nil {
		tips = []loan.Tip{}
	}
	writeJSON(w, http.StatusOK, TipsDTO{LoanID: id, Tips: tips})
}

// Refinance compares the rest of the loan with a new one.
func (h *Handler) Refinance(w http.ResponseWriter, r *http.Request) {
	var req RefinanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.Service.Refinance(r.Context(), loanID(r), loan.RefinanceInput{
		NewAnnualRate: req.NewAnnualRate,
		NewTermMonths: req.NewTermMonths,
		Cost:          req.Cost,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Optimize finds the smallest extra payment that reaches the goal.
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.Service.Optimize(r.Context(), loanID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// ACTUAL PAYMENT HANDLERS
// =============================================================================

// ListActualPayments returns the booked payments with their totals.
func (h *Handler) ListActualPayments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListActualPayments(r.Context(), loanID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// RecordActualPayment books a payment. It never changes the schedule.
func (h *Handler) RecordActualPayment(w http.ResponseWriter, r *http.Request) {
	var req ActualPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	opts := commitOptions(r, req.ExpectedVersion, req.IdempotencyKey)
	result, err := h.Service.RecordActualPayment(r.Context(), loanID(r), req.payment(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// Calculate simulates a loan without storing it. Rate periods and events
// in the body are honoured.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculatorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name == "" {
		req.Name = "calculator"
	}
	l, events, err := h.LoanFactory.FromJSON(req.LoanJSON)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var schedule loan.Schedule
	if len(events) > 0 {
		result, err := loan.PreviewScenario(r.Context(), l, nil, events)
		if err != nil {
			writeError(w, r, err)
			return
		}
		schedule = result.Schedule
	} else {
		schedule, err = loan.GenerateSchedule(r.Context(), l)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toCalculatorDTO(l, schedule, req.IncludeSchedule))
}

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Ping(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok", Database: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func loanID(r *http.Request) generic.StreamID {
	return generic.StreamID(chi.URLParam(r, "id"))
}

// commitOptions reads the write headers. The Idempotency-Key header wins
// over a key given in the body.
func commitOptions(r *http.Request, expected *int64, bodyKey string) loan.CommitOptions {
	key := r.Header.Get(HeaderIdempotencyKey)
	if key == "" {
		key = bodyKey
	}
	return loan.CommitOptions{
		IdempotencyKey:  key,
		ExpectedVersion: expected,
		CreatedBy:       r.Header.Get(HeaderUserID),
	}
}

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", name)
	}
	return v, nil
}

func int64Query(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, badRequest("%s must be an integer", name)
	}
	return &v, nil
}

func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("%s must be true or false", name)
	}
	return v, nil
}
