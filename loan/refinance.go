package loan

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// REFINANCE PREVIEW
// =============================================================================

type RefinanceInput struct {
	NewAnnualRate decimal.Decimal `json:"new_annual_rate"`
	// NewTermMonths of 0 keeps the number of payments left.
	NewTermMonths int             `json:"new_term_months"`
	Cost          decimal.Decimal `json:"refinance_cost"`
}

type RefinanceResult struct {
	LoanID           generic.StreamID `json:"loan_id"`
	Version          int64            `json:"version"`
	BaseSummary      ScheduleSummary  `json:"base_summary"`
	RefinanceSummary ScheduleSummary  `json:"refinance_summary"`
	RefinanceCost    decimal.Decimal  `json:"refinance_cost"`
	TotalSaving      decimal.Decimal  `json:"total_saving"`
	MonthlySaving    decimal.Decimal  `json:"monthly_saving"`
	BreakevenMonths  *int             `json:"breakeven_months"`
}

// Refinance compares the rest of the loan with a new loan for the remaining
// balance, starting on the next payment date.
func (s *Service) Refinance(ctx context.Context, id generic.StreamID, in RefinanceInput) (*RefinanceResult, error) {
	if err := validateRate("new_annual_rate", in.NewAnnualRate); err != nil {
		return nil, err
	}
	if in.NewTermMonths < 0 || in.NewTermMonths > MaxTermMonths {
		return nil, &InputValidationError{Field: "new_term_months", Reason: "must be between 1 and 600", Err: ErrInvalidTerm}
	}
	if in.Cost.IsNegative() {
		return nil, &InputValidationError{Field: "refinance_cost", Reason: "must be >= 0", Err: ErrInvalidInput}
	}

	proj, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	state := proj.Value
	summary := Summarize(state.Loan, state.Schedule, s.today())
	if summary.NextPayment == nil || !summary.RemainingBalance.IsPositive() {
		return nil, &InputValidationError{Field: "loan", Reason: "has no payments left", Err: ErrInvalidInput}
	}

	future := state.Schedule[len(state.Schedule)-summary.PaymentsLeft:]
	term := in.NewTermMonths
	if term == 0 {
		term = len(future)
	}

	refi := Loan{
		ID:               state.Loan.ID,
		Name:             state.Loan.Name,
		Principal:        summary.RemainingBalance,
		CurrentPrincipal: summary.RemainingBalance,
		AnnualRate:       in.NewAnnualRate,
		PaymentType:      state.Loan.PaymentType,
		TermMonths:       term,
		FirstPaymentDate: summary.NextPayment.Date,
		Currency:         state.Loan.Currency,
	}.WithDefaults()
	schedule, err := GenerateSchedule(ctx, refi)
	if err != nil {
		return nil, err
	}

	base := SummarizeSchedule(future)
	next := SummarizeSchedule(schedule)
	result := &RefinanceResult{
		LoanID:           id,
		Version:          proj.Version,
		BaseSummary:      base,
		RefinanceSummary: next,
		RefinanceCost:    in.Cost,
		TotalSaving:      base.TotalPaid.Sub(next.TotalPaid).Sub(in.Cost),
		MonthlySaving:    base.MonthlyPayment.Sub(next.MonthlyPayment),
	}
	if result.MonthlySaving.IsPositive() {
		months := int(in.Cost.Div(result.MonthlySaving).RoundBank(0).IntPart())
		result.BreakevenMonths = &months
	}
	return result, nil
}
