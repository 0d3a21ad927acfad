/*
Package loan implements loan amortization on top of the generic event engine.

PURPOSE:
  A loan is a stream of events. The first event records the loan terms;
  later events record extra payments, rate changes and payment holidays.
  The schedule is never stored as truth: it is re-simulated from the loan
  terms plus the committed events whenever the stream version moves.

KEY CONCEPTS:
  - Loan: principal, term, payment type, first payment date, rate periods
  - RatePeriod: a contiguous, non-overlapping slice of the rate timeline
  - Schedule: one ScheduleEntry per payment date until the balance is zero
  - Event: EXTRA_PAYMENT | RATE_CHANGE | HOLIDAY, committed or hypothetical

MONEY:
  All amounts are decimal.Decimal rounded half-even to cents at every step
  that produces a payable figure (interest, payment, principal part).

SEE ALSO:
  - amortization.go: Closed-form payment formulas
  - schedule.go: Period-by-period walker
  - scenario.go: What-if comparison against the baseline
  - service.go: Operations exposed over HTTP
*/
package loan

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// LIMITS
// =============================================================================

const (
	MaxTermMonths = 600
	// MaxSchedulePeriods caps the walker no matter how many holiday months
	// extend the loan. It is twice MaxTermMonths rather than the 600-period
	// cap one would expect, so a maximum-term loan can still take holidays.
	MaxSchedulePeriods = 1200
	DefaultCurrency    = "RUB"
)

var (
	MaxAnnualRate = decimal.NewFromInt(100)
	hundred       = decimal.NewFromInt(100)
	monthsPerYear = decimal.NewFromInt(12)
)

// =============================================================================
// PAYMENT TYPE
// =============================================================================

type PaymentType string

const (
	// PaymentAnnuity keeps the payment level constant.
	PaymentAnnuity PaymentType = "ANNUITY"
	// PaymentDifferentiated keeps the principal part constant; interest falls.
	PaymentDifferentiated PaymentType = "DIFFERENTIATED"
)

func (p PaymentType) Valid() bool {
	return p == PaymentAnnuity || p == PaymentDifferentiated
}

// =============================================================================
// LOAN
// =============================================================================

// RatePeriod is one slice of the rate timeline, inclusive on both ends.
type RatePeriod struct {
	StartDate  generic.TimePoint `json:"start_date"`
	EndDate    generic.TimePoint `json:"end_date"`
	AnnualRate decimal.Decimal   `json:"annual_rate"`
}

func (rp RatePeriod) Period() generic.Period {
	return generic.Period{Start: rp.StartDate, End: rp.EndDate}
}

// Loan holds the terms a loan was created with. It is immutable: changes
// happen through events.
type Loan struct {
	ID               generic.StreamID   `json:"id"`
	Name             string             `json:"name"`
	Principal        decimal.Decimal    `json:"principal"`
	CurrentPrincipal decimal.Decimal    `json:"current_principal"`
	AnnualRate       decimal.Decimal    `json:"annual_rate"`
	PaymentType      PaymentType        `json:"payment_type"`
	TermMonths       int                `json:"term_months"`
	FirstPaymentDate generic.TimePoint  `json:"first_payment_date"`
	IssueDate        *generic.TimePoint `json:"issue_date,omitempty"`
	Currency         string             `json:"currency"`
	RatePeriods      []RatePeriod       `json:"rate_periods"`
	CreatedAt        time.Time          `json:"created_at"`
}

// LastPlannedDate is the date of the final payment of the original term.
func (l Loan) LastPlannedDate() generic.TimePoint {
	return l.FirstPaymentDate.AddMonths(l.TermMonths - 1)
}

// OpeningBalance is the balance the schedule starts from.
func (l Loan) OpeningBalance() decimal.Decimal {
	if l.CurrentPrincipal.IsPositive() {
		return l.CurrentPrincipal
	}
	return l.Principal
}

// WithDefaults fills optional fields: current principal, currency and the
// single rate period spanning the whole term.
func (l Loan) WithDefaults() Loan {
	if l.CurrentPrincipal.IsZero() {
		l.CurrentPrincipal = l.Principal
	}
	l.Currency = strings.ToUpper(strings.TrimSpace(l.Currency))
	if l.Currency == "" {
		l.Currency = DefaultCurrency
	}
	l.Name = strings.TrimSpace(l.Name)
	if len(l.RatePeriods) == 0 && l.TermMonths > 0 && !l.FirstPaymentDate.IsZero() {
		l.RatePeriods = []RatePeriod{{
			StartDate:  l.FirstPaymentDate,
			EndDate:    l.LastPlannedDate(),
			AnnualRate: l.AnnualRate,
		}}
	}
	return l
}

// Validate checks the loan terms. Call WithDefaults first.
func (l Loan) Validate() error {
	if l.Name == "" {
		return &InputValidationError{Field: "name", Reason: "must not be empty", Err: ErrInvalidInput}
	}
	if !l.Principal.IsPositive() {
		return &InputValidationError{Field: "principal", Reason: "must be > 0", Err: ErrInvalidPrincipal}
	}
	if !l.CurrentPrincipal.IsPositive() || l.CurrentPrincipal.GreaterThan(l.Principal) {
		return &InputValidationError{Field: "current_principal", Reason: "must be > 0 and <= principal", Err: ErrInvalidPrincipal}
	}
	if err := validateRate("annual_rate", l.AnnualRate); err != nil {
		return err
	}
	if l.TermMonths < 1 || l.TermMonths > MaxTermMonths {
		return &InputValidationError{Field: "term_months", Reason: "must be between 1 and 600", Err: ErrInvalidTerm}
	}
	if !l.PaymentType.Valid() {
		return &InputValidationError{Field: "payment_type", Reason: "must be ANNUITY or DIFFERENTIATED", Err: ErrInvalidInput}
	}
	if l.FirstPaymentDate.IsZero() {
		return &InputValidationError{Field: "first_payment_date", Reason: "is required", Err: ErrInvalidInput}
	}
	if l.IssueDate != nil && !l.IssueDate.Before(l.FirstPaymentDate) {
		return &InputValidationError{Field: "issue_date", Reason: "must be before first_payment_date", Err: ErrInvalidInput}
	}
	if len(l.Currency) != 3 {
		return &InputValidationError{Field: "currency", Reason: "must be a 3-letter code", Err: ErrInvalidInput}
	}
	if _, err := ValidateRatePeriods(l.RatePeriods, l.FirstPaymentDate, l.LastPlannedDate()); err != nil {
		return err
	}
	return nil
}

func validateRate(field string, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(MaxAnnualRate) {
		return &InputValidationError{Field: field, Reason: "must be between 0 and 100", Err: ErrInvalidRate}
	}
	return nil
}

// =============================================================================
// SCHEDULE
// =============================================================================

// ScheduleEntry is one payment date. Payment always equals Interest +
// Principal. Extra is the prepaid share of Principal. During a FULL
// holiday Payment is zero and Principal is the negated, capitalized
// interest.
type ScheduleEntry struct {
	Period     int               `json:"period"`
	Date       generic.TimePoint `json:"date"`
	Payment    decimal.Decimal   `json:"payment"`
	Interest   decimal.Decimal   `json:"interest"`
	Principal  decimal.Decimal   `json:"principal"`
	Extra      decimal.Decimal   `json:"extra"`
	Balance    decimal.Decimal   `json:"balance"`
	AnnualRate decimal.Decimal   `json:"annual_rate"`
	Holiday    HolidayType       `json:"holiday,omitempty"`
	Events     []string          `json:"events,omitempty"`
}

// RegularPayment is the payment without the prepaid part.
func (e ScheduleEntry) RegularPayment() decimal.Decimal {
	return e.Payment.Sub(e.Extra)
}

// OpeningBalance is the balance before this entry was paid.
func (e ScheduleEntry) OpeningBalance() decimal.Decimal {
	return e.Balance.Add(e.Principal)
}

type Schedule []ScheduleEntry

func (s Schedule) TotalInterest() decimal.Decimal {
	total := decimal.Zero
	for _, e := range s {
		total = total.Add(e.Interest)
	}
	return total
}

func (s Schedule) TotalPrincipal() decimal.Decimal {
	total := decimal.Zero
	for _, e := range s {
		total = total.Add(e.Principal)
	}
	return total
}

func (s Schedule) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for _, e := range s {
		total = total.Add(e.Payment)
	}
	return total
}

// PayoffDate is the date of the last entry, zero for an empty schedule.
func (s Schedule) PayoffDate() generic.TimePoint {
	if len(s) == 0 {
		return generic.TimePoint{}
	}
	return s[len(s)-1].Date
}

// FirstRegularPayment is the payment of the first non-holiday entry.
func (s Schedule) FirstRegularPayment() decimal.Decimal {
	for _, e := range s {
		if e.Holiday == "" {
			return e.RegularPayment()
		}
	}
	return decimal.Zero
}

// Page returns a 1-based page of the schedule. Out-of-range pages are empty.
func (s Schedule) Page(page, size int) Schedule {
	start := (page - 1) * size
	if start < 0 || start >= len(s) {
		return Schedule{}
	}
	end := start + size
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}
