/*
Package factory provides JSON to Go loan conversion.

PURPOSE:
  Converts JSON loan definitions into loan.Loan and its scenario events.
  Demo data, fixtures and bulk imports describe loans in JSON; the factory
  turns them into validated Go structs ready for Service.CreateLoan and
  Service.CommitEvent.

JSON SCHEMA:
  {
    "name": "Apartment",
    "principal": "5000000",
    "current_principal": "4200000",
    "annual_rate": "9.5",
    "payment_type": "ANNUITY",
    "term_months": 240,
    "first_payment_date": "2025-02-15",
    "currency": "RUB",
    "rate_periods": [
      {"start_date": "2025-02-15", "end_date": "2027-02-14", "annual_rate": "6"},
      {"start_date": "2027-02-15", "end_date": "2045-01-15", "annual_rate": "9.5"}
    ],
    "events": [
      {"type": "EXTRA_PAYMENT", "date": "2025-06-15", "amount": "300000",
       "mode": "ONE_TIME", "strategy": "REDUCE_TERM"},
      {"type": "HOLIDAY", "start_date": "2026-01-01", "end_date": "2026-03-31",
       "holiday_type": "INTEREST_ONLY"}
    ]
  }

  Amounts and rates are strings or numbers; both decode into decimals
  without going through float64.

KEY FEATURES:
  - Sets defaults (currency, current principal, single rate period)
  - Validates the loan and every event on its own
  - Round-trips with ToJSON

USAGE:
  f := factory.NewLoanFactory()
  l, events, err := f.ParseLoan(factory.MortgageJSON("Flat", "5000000", "9.5", 240, "2025-02-15"))

SEE ALSO:
  - loan/types.go: Loan
  - loan/events.go: Event
  - api/demo.go: Seeds demo loans from presets
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// LoanJSON is the JSON representation of a loan with optional events.
type LoanJSON struct {
	Name             string              `json:"name"`
	Principal        decimal.Decimal     `json:"principal"`
	CurrentPrincipal decimal.NullDecimal `json:"current_principal"`
	AnnualRate       decimal.Decimal     `json:"annual_rate"`
	PaymentType      string              `json:"payment_type,omitempty"` // Default ANNUITY
	TermMonths       int                 `json:"term_months"`
	FirstPaymentDate string              `json:"first_payment_date"`
	IssueDate        string              `json:"issue_date,omitempty"`
	Currency         string              `json:"currency,omitempty"`
	RatePeriods      []RatePeriodJSON    `json:"rate_periods,omitempty"`
	Events           []EventJSON         `json:"events,omitempty"`
}

type RatePeriodJSON struct {
	StartDate  string          `json:"start_date"`
	EndDate    string          `json:"end_date"`
	AnnualRate decimal.Decimal `json:"annual_rate"`
}

// EventJSON is a flat scenario event. Which fields apply depends on Type.
type EventJSON struct {
	Type string `json:"type"` // EXTRA_PAYMENT, RATE_CHANGE, HOLIDAY

	// EXTRA_PAYMENT and RATE_CHANGE
	Date string `json:"date,omitempty"`

	// EXTRA_PAYMENT
	Amount   decimal.NullDecimal `json:"amount"`
	Mode     string              `json:"mode,omitempty"`     // Default ONE_TIME
	Strategy string              `json:"strategy,omitempty"` // Default REDUCE_TERM

	// RATE_CHANGE
	AnnualRate decimal.NullDecimal `json:"annual_rate"`

	// HOLIDAY
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	HolidayType string `json:"holiday_type,omitempty"`
}

// =============================================================================
// LOAN FACTORY
// =============================================================================

// LoanFactory converts JSON loans to Go structs.
type LoanFactory struct{}

func NewLoanFactory() *LoanFactory {
	return &LoanFactory{}
}

// ParseLoan parses a JSON string into a validated Loan and its events.
func (f *LoanFactory) ParseLoan(jsonStr string) (loan.Loan, []loan.Event, error) {
	var lj LoanJSON
	if err := json.Unmarshal([]byte(jsonStr), &lj); err != nil {
		return loan.Loan{}, nil, fmt.Errorf("failed to parse loan JSON: %w", err)
	}
	return f.FromJSON(lj)
}

// FromJSON converts LoanJSON to loan.Loan and []loan.Event.
func (f *LoanFactory) FromJSON(lj LoanJSON) (loan.Loan, []loan.Event, error) {
	first, err := generic.ParseDate(lj.FirstPaymentDate)
	if err != nil {
		return loan.Loan{}, nil, fmt.Errorf("first_payment_date: %w", err)
	}

	l := loan.Loan{
		Name:             lj.Name,
		Principal:        lj.Principal,
		AnnualRate:       lj.AnnualRate,
		PaymentType:      parsePaymentType(lj.PaymentType),
		TermMonths:       lj.TermMonths,
		FirstPaymentDate: first,
		Currency:         lj.Currency,
	}
	if lj.CurrentPrincipal.Valid {
		l.CurrentPrincipal = lj.CurrentPrincipal.Decimal
	}
	if lj.IssueDate != "" {
		issue, err := generic.ParseDate(lj.IssueDate)
		if err != nil {
			return loan.Loan{}, nil, fmt.Errorf("issue_date: %w", err)
		}
		l.IssueDate = &issue
	}
	for i, rj := range lj.RatePeriods {
		rp, err := parseRatePeriod(rj)
		if err != nil {
			return loan.Loan{}, nil, fmt.Errorf("rate_periods[%d]: %w", i, err)
		}
		l.RatePeriods = append(l.RatePeriods, rp)
	}

	l = l.WithDefaults()
	if err := l.Validate(); err != nil {
		return loan.Loan{}, nil, err
	}

	events := make([]loan.Event, 0, len(lj.Events))
	for i, ej := range lj.Events {
		e, err := f.ParseEvent(ej)
		if err != nil {
			return loan.Loan{}, nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		events = append(events, e)
	}
	return l, events, nil
}

// ParseEvent converts a flat EventJSON into a loan.Event and validates it.
func (f *LoanFactory) ParseEvent(ej EventJSON) (loan.Event, error) {
	var e loan.Event
	switch strings.ToUpper(ej.Type) {
	case string(loan.EventExtraPayment):
		date, err := generic.ParseDate(ej.Date)
		if err != nil {
			return loan.Event{}, err
		}
		e = loan.NewExtraPayment(date, ej.Amount.Decimal, parseMode(ej.Mode), parseStrategy(ej.Strategy))
	case string(loan.EventRateChange):
		date, err := generic.ParseDate(ej.Date)
		if err != nil {
			return loan.Event{}, err
		}
		if !ej.AnnualRate.Valid {
			return loan.Event{}, &loan.InputValidationError{Field: "annual_rate", Reason: "is required", Err: loan.ErrInvalidRate}
		}
		e = loan.NewRateChange(date, ej.AnnualRate.Decimal)
	case string(loan.EventHoliday):
		start, err := generic.ParseDate(ej.StartDate)
		if err != nil {
			return loan.Event{}, err
		}
		end, err := generic.ParseDate(ej.EndDate)
		if err != nil {
			return loan.Event{}, err
		}
		e = loan.NewHoliday(start, end, loan.HolidayType(strings.ToUpper(ej.HolidayType)))
	default:
		e = loan.Event{Kind: loan.EventKind(ej.Type)}
	}
	if err := e.Validate(); err != nil {
		return loan.Event{}, err
	}
	return e, nil
}

// ToJSON converts a Loan and its events back to LoanJSON.
func (f *LoanFactory) ToJSON(l loan.Loan, events []loan.Event) LoanJSON {
	lj := LoanJSON{
		Name:             l.Name,
		Principal:        l.Principal,
		AnnualRate:       l.AnnualRate,
		PaymentType:      string(l.PaymentType),
		TermMonths:       l.TermMonths,
		FirstPaymentDate: l.FirstPaymentDate.String(),
		Currency:         l.Currency,
	}
	if !l.CurrentPrincipal.Equal(l.Principal) {
		lj.CurrentPrincipal = decimal.NewNullDecimal(l.CurrentPrincipal)
	}
	if l.IssueDate != nil {
		lj.IssueDate = l.IssueDate.String()
	}
	for _, rp := range l.RatePeriods {
		lj.RatePeriods = append(lj.RatePeriods, RatePeriodJSON{
			StartDate:  rp.StartDate.String(),
			EndDate:    rp.EndDate.String(),
			AnnualRate: rp.AnnualRate,
		})
	}

	for _, e := range events {
		ej := EventJSON{Type: string(e.Kind)}
		switch e.Kind {
		case loan.EventExtraPayment:
			x := e.ExtraPayment
			ej.Date = x.Date.String()
			ej.Amount = decimal.NewNullDecimal(x.Amount)
			ej.Mode = string(x.Mode)
			ej.Strategy = string(x.Strategy)
		case loan.EventRateChange:
			ej.Date = e.RateChange.Date.String()
			ej.AnnualRate = decimal.NewNullDecimal(e.RateChange.AnnualRate)
		case loan.EventHoliday:
			ej.StartDate = e.Holiday.StartDate.String()
			ej.EndDate = e.Holiday.EndDate.String()
			ej.HolidayType = string(e.Holiday.Type)
		}
		lj.Events = append(lj.Events, ej)
	}
	return lj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseRatePeriod(rj RatePeriodJSON) (loan.RatePeriod, error) {
	start, err := generic.ParseDate(rj.StartDate)
	if err != nil {
		return loan.RatePeriod{}, err
	}
	end, err := generic.ParseDate(rj.EndDate)
	if err != nil {
		return loan.RatePeriod{}, err
	}
	return loan.RatePeriod{StartDate: start, EndDate: end, AnnualRate: rj.AnnualRate}, nil
}

func parsePaymentType(s string) loan.PaymentType {
	if s == "" {
		return loan.PaymentAnnuity
	}
	return loan.PaymentType(strings.ToUpper(s))
}

func parseMode(s string) loan.ExtraMode {
	if s == "" {
		return loan.ExtraOneTime
	}
	return loan.ExtraMode(strings.ToUpper(s))
}

func parseStrategy(s string) loan.ExtraStrategy {
	if s == "" {
		return loan.StrategyReduceTerm
	}
	return loan.ExtraStrategy(strings.ToUpper(s))
}
