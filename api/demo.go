/*
demo.go - Demo portfolio loaders

PURPOSE:
  Populates the store with realistic loans for demos and manual testing.
  Each demo creates loans from factory presets and commits a few events,
  going through loan.Service exactly like a client would.

AVAILABLE DEMOS:
  mortgage:   20-year annuity mortgage with a rate cut and a payment holiday
  car:        3-year differentiated car loan
  consumer:   18-month consumer loan with a monthly extra payment
  portfolio:  All of the above

HOW DEMOS WORK:
  1. Optionally reset the database (reset=true)
  2. Parse preset JSON via factory
  3. Create loans with idempotency keys derived from the demo ID,
     so loading the same demo twice returns the same loans
  4. Commit the demo's events, all checked before the loan is written

USAGE VIA API:
  POST /api/demo/load
  {"demo_id": "portfolio", "reset": true}

NOTE:
  Disabled when ENV=production.

SEE ALSO:
  - factory/presets.go: Preset loan JSON
  - handlers.go: Handler
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// DEMO DEFINITIONS
// =============================================================================

var demos = []DemoDTO{
	{ID: "mortgage", Name: "Mortgage", Description: "20-year annuity mortgage with a rate cut after two years and a three-month interest-only holiday"},
	{ID: "car", Name: "Car loan", Description: "3-year differentiated car loan"},
	{ID: "consumer", Name: "Consumer loan", Description: "18-month consumer loan paying 5000 extra every month"},
	{ID: "portfolio", Name: "Portfolio", Description: "Mortgage, car and consumer loans together"},
}

// demoLoan is one preset plus events committed after it is created.
type demoLoan struct {
	key    string
	json   string
	events func(first generic.TimePoint) []loan.Event
}

func demoLoans(id string, first generic.TimePoint) ([]demoLoan, error) {
	start := first.String()
	mortgage := demoLoan{
		key:  "mortgage",
		json: factory.MortgageJSON("Apartment", "5000000", "9.5", 240, start),
		events: func(first generic.TimePoint) []loan.Event {
			return []loan.Event{
				loan.NewRateChange(first.AddMonths(24), decimal.RequireFromString("7.5")),
				loan.NewHoliday(first.AddMonths(36), first.AddMonths(38), loan.HolidayInterestOnly),
			}
		},
	}
	car := demoLoan{key: "car", json: factory.CarLoanJSON("Car", "1800000", "14", 36, start)}
	consumer := demoLoan{key: "consumer", json: factory.ConsumerLoanJSON("Sofa", "250000", "19.9", 18, start, "5000")}

	switch id {
	case "mortgage":
		return []demoLoan{mortgage}, nil
	case "car":
		return []demoLoan{car}, nil
	case "consumer":
		return []demoLoan{consumer}, nil
	case "portfolio":
		return []demoLoan{mortgage, car, consumer}, nil
	}
	return nil, badRequest("unknown demo %q", id)
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListDemos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, demos)
}

// LoadDemo creates the loans of one demo. Loans start paying on the 15th of
// next month.
func (h *Handler) LoadDemo(w http.ResponseWriter, r *http.Request) {
	var req LoadDemoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()

	today := generic.Today()
	first := generic.NewTimePoint(today.Year(), today.Month(), 15).AddMonths(1)
	loans, err := demoLoans(req.DemoID, first)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if req.Reset {
		if err := h.DB.Reset(ctx); err != nil {
			writeError(w, r, fmt.Errorf("reset database: %w", err))
			return
		}
		h.Service.ForgetProjections()
	}

	ids := make([]generic.StreamID, 0, len(loans))
	for _, d := range loans {
		id, err := h.loadDemoLoan(ctx, req.DemoID, d, first)
		if err != nil {
			writeError(w, r, fmt.Errorf("demo %s/%s: %w", req.DemoID, d.key, err))
			return
		}
		ids = append(ids, id)
	}
	writeJSON(w, http.StatusOK, LoadDemoDTO{DemoID: req.DemoID, LoanIDs: ids})
}

func (h *Handler) loadDemoLoan(ctx context.Context, demoID string, d demoLoan, first generic.TimePoint) (generic.StreamID, error) {
	l, events, err := h.LoanFactory.ParseLoan(d.json)
	if err != nil {
		return "", err
	}
	if d.events != nil {
		events = append(events, d.events(first)...)
	}

	key := "demo/" + demoID + "/" + d.key
	created, _, err := h.Service.CreateLoanWithEvents(ctx, l, events, loan.CommitOptions{IdempotencyKey: key, CreatedBy: "demo"})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}
