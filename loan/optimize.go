package loan

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// OPTIMIZE - Smallest extra payment that reaches a goal
// =============================================================================

type OptimizeGoal string

const (
	// GoalCloseByDate looks for a monthly extra (REDUCE_TERM) that pays the
	// loan off on or before TargetDate.
	GoalCloseByDate OptimizeGoal = "CLOSE_BY_DATE"
	// GoalPaymentTarget looks for a one-time extra (REDUCE_PAYMENT) that
	// brings the regular payment down to TargetPayment or below.
	GoalPaymentTarget OptimizeGoal = "PAYMENT_TARGET"
)

// maxOptimizeSteps bounds the bisection over int64 cents.
const maxOptimizeSteps = 64

type OptimizeInput struct {
	Goal          OptimizeGoal      `json:"goal_type"`
	TargetDate    generic.TimePoint `json:"target_date"`
	TargetPayment decimal.Decimal   `json:"target_payment"`
}

func (in OptimizeInput) Validate() error {
	switch in.Goal {
	case GoalCloseByDate:
		if in.TargetDate.IsZero() {
			return &InputValidationError{Field: "target_date", Reason: "is required", Err: ErrInvalidInput}
		}
	case GoalPaymentTarget:
		if !in.TargetPayment.IsPositive() {
			return &InputValidationError{Field: "target_payment", Reason: "must be > 0", Err: ErrInvalidInput}
		}
	default:
		return &InputValidationError{Field: "goal_type", Reason: "must be CLOSE_BY_DATE or PAYMENT_TARGET", Err: ErrInvalidInput}
	}
	return nil
}

type OptimizeResult struct {
	LoanID           generic.StreamID  `json:"loan_id"`
	Version          int64             `json:"version"`
	Goal             OptimizeGoal      `json:"goal_type"`
	RecommendedExtra decimal.Decimal   `json:"recommended_extra"`
	Date             generic.TimePoint `json:"date"`
	Mode             ExtraMode         `json:"mode"`
	Strategy         ExtraStrategy     `json:"strategy"`
	// AlreadyMet is set when the committed schedule reaches the goal as is.
	AlreadyMet bool `json:"already_met"`
	// PaysOff is set when no extra below the balance reaches the goal; only
	// paying the loan off does.
	PaysOff bool `json:"pays_off"`

	ScenarioSummary *ScheduleSummary  `json:"scenario_summary,omitempty"`
	InterestSaving  decimal.Decimal   `json:"interest_saving"`
	MonthsDiff      int               `json:"months_diff"`
	MonthlyPayment  decimal.Decimal   `json:"monthly_payment"`
	PayoffDate      generic.TimePoint `json:"payoff_date"`
}

// Optimize bisects over the extra amount, in cents, for the smallest extra
// dated on the next payment that reaches the goal. Each step is a scenario
// preview, so the answer is exactly what committing it would produce.
func (s *Service) Optimize(ctx context.Context, id generic.StreamID, in OptimizeInput) (*OptimizeResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	proj, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	state := proj.Value
	summary := Summarize(state.Loan, state.Schedule, s.today())
	if summary.NextPayment == nil || !summary.NextPayment.Balance.IsPositive() {
		return nil, &InputValidationError{Field: "loan", Reason: "has no payments left", Err: ErrInvalidInput}
	}
	next := summary.NextPayment
	if in.Goal == GoalCloseByDate && in.TargetDate.Before(next.Date) {
		return nil, &InputValidationError{Field: "target_date", Reason: "must not be before the next payment date", Err: ErrInvalidInput}
	}

	result := &OptimizeResult{
		LoanID:           id,
		Version:          proj.Version,
		Goal:             in.Goal,
		RecommendedExtra: decimal.Zero,
		Date:             next.Date,
		Mode:             ExtraOneTime,
		Strategy:         StrategyReducePayment,
		MonthlyPayment:   summary.MonthlyPayment,
		PayoffDate:       summary.PayoffDate,
	}
	if in.Goal == GoalCloseByDate {
		result.Mode, result.Strategy = ExtraMonthly, StrategyReduceTerm
	}
	extra := func(cents int64) Event {
		return NewExtraPayment(next.Date, decimal.New(cents, -2), result.Mode, result.Strategy)
	}
	committed := state.ScenarioEvents()

	meets := func(scheduled Schedule, payment decimal.Decimal) bool {
		if in.Goal == GoalCloseByDate {
			return !scheduled.PayoffDate().After(in.TargetDate)
		}
		return payment.LessThanOrEqual(in.TargetPayment)
	}
	try := func(cents int64) (*ScenarioResult, bool, error) {
		preview, err := PreviewScenario(ctx, state.Loan, committed, []Event{extra(cents)})
		if err != nil {
			return nil, false, err
		}
		return preview, meets(preview.Schedule, preview.MonthlyPayment), nil
	}

	baselinePayment := regularPaymentAfter(state.Schedule, []Event{extra(0)})
	if meets(state.Schedule, baselinePayment) {
		result.AlreadyMet = true
		return result, nil
	}

	// lo never meets the goal and hi always does.
	lo, hi := int64(0), next.Balance.Shift(2).IntPart()-1
	if hi < 1 {
		result.PaysOff = true
		result.RecommendedExtra = next.Balance
		return result, nil
	}
	best, ok, err := try(hi)
	if err != nil {
		return nil, err
	}
	if !ok {
		result.PaysOff = true
		result.RecommendedExtra = next.Balance
		return result, nil
	}
	for step := 0; hi-lo > 1 && step < maxOptimizeSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mid := lo + (hi-lo)/2
		preview, ok, err := try(mid)
		if err != nil {
			return nil, err
		}
		if ok {
			hi, best = mid, preview
		} else {
			lo = mid
		}
	}

	s.log.Debug().
		Str("loan_id", string(id)).
		Str("goal", string(in.Goal)).
		Int64("extra_cents", hi).
		Msg("optimized extra payment")

	result.RecommendedExtra = decimal.New(hi, -2)
	result.ScenarioSummary = &best.ScenarioSummary
	result.InterestSaving = best.InterestSaving
	result.MonthsDiff = best.MonthsDiff
	result.MonthlyPayment = best.MonthlyPayment
	result.PayoffDate = best.PayoffDate
	return result, nil
}
