package loan

import (
	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// LOAN SUMMARY - Where the loan stands on a given day
// =============================================================================

type NextPayment struct {
	Date      generic.TimePoint `json:"date"`
	Payment   decimal.Decimal   `json:"payment"`
	Interest  decimal.Decimal   `json:"interest"`
	Principal decimal.Decimal   `json:"principal"`
	Balance   decimal.Decimal   `json:"balance"`
}

type LoanSummary struct {
	LoanID              generic.StreamID  `json:"loan_id"`
	Name                string            `json:"name"`
	Currency            string            `json:"currency"`
	PaymentType         PaymentType       `json:"payment_type"`
	Principal           decimal.Decimal   `json:"principal"`
	RemainingBalance    decimal.Decimal   `json:"remaining_balance"`
	MonthlyPayment      decimal.Decimal   `json:"monthly_payment"`
	TotalInterest       decimal.Decimal   `json:"total_interest"`
	TotalPaid           decimal.Decimal   `json:"total_paid"`
	PayoffDate          generic.TimePoint `json:"payoff_date"`
	PaidPrincipalToDate decimal.Decimal   `json:"paid_principal_to_date"`
	PaymentsCount       int               `json:"payments_count"`
	PaymentsLeft        int               `json:"payments_left"`
	NextPayment         *NextPayment      `json:"next_payment,omitempty"`
	Archived            bool              `json:"archived"`
	Version             int64             `json:"version"`
}

// Summarize reads a schedule as of a day. Entries dated before asOf count
// as paid.
func Summarize(l Loan, s Schedule, asOf generic.TimePoint) LoanSummary {
	summary := LoanSummary{
		LoanID:           l.ID,
		Name:             l.Name,
		Currency:         l.Currency,
		PaymentType:      l.PaymentType,
		Principal:        l.Principal,
		RemainingBalance: l.OpeningBalance(),
		TotalInterest:    s.TotalInterest(),
		TotalPaid:        s.TotalPaid(),
		PayoffDate:       s.PayoffDate(),
		PaymentsCount:    len(s),
		MonthlyPayment:   decimal.Zero,
	}

	// Principal repaid before the loan was entered into the system.
	paid := l.Principal.Sub(l.OpeningBalance())
	next := -1
	for i, e := range s {
		if e.Date.Before(asOf) {
			paid = paid.Add(e.Principal)
			summary.RemainingBalance = e.Balance
			continue
		}
		next = i
		break
	}
	summary.PaidPrincipalToDate = paid

	if next < 0 {
		summary.RemainingBalance = decimal.Zero
		return summary
	}
	summary.PaymentsLeft = len(s) - next

	e := s[next]
	summary.NextPayment = &NextPayment{
		Date:      e.Date,
		Payment:   e.Payment,
		Interest:  e.Interest,
		Principal: e.Principal,
		Balance:   e.Balance,
	}
	summary.MonthlyPayment = s[next:].FirstRegularPayment()
	return summary
}
