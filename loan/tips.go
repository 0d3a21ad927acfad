package loan

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// TIPS - Advice backed by what-if scenarios
// =============================================================================

type TipCode string

const (
	TipInterestShare TipCode = "interest_share"
	TipStrategy      TipCode = "strategy_comparison"
	TipMonthlyExtra  TipCode = "monthly_extra"
	TipPayOnSchedule TipCode = "pay_on_schedule"
)

type Tip struct {
	Code           TipCode          `json:"code"`
	Title          string           `json:"title"`
	Text           string           `json:"text"`
	InterestSaving *decimal.Decimal `json:"interest_saving,omitempty"`
	MonthsDiff     *int             `json:"months_diff,omitempty"`
}

var tipTitles = map[TipCode]string{
	TipInterestShare: "Where your payment goes",
	TipStrategy:      "Shorter term or lower payment",
	TipMonthlyExtra:  "Small monthly extras add up",
	TipPayOnSchedule: "Time your extra payments",
}

func newTip(code TipCode, text string) Tip {
	return Tip{Code: code, Title: tipTitles[code], Text: text}
}

var tenPercent = decimal.NewFromFloat(0.1)

type whatIf struct {
	event  Event
	result *ScenarioResult
}

// GetTips runs a few what-if scenarios in parallel and turns them into advice.
// A paid-off loan only gets the static tip.
func (s *Service) GetTips(ctx context.Context, id generic.StreamID) ([]Tip, error) {
	proj, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	state := proj.Value
	summary := Summarize(state.Loan, state.Schedule, s.today())

	tips := make([]Tip, 0, 4)
	if next := summary.NextPayment; next != nil && next.Payment.IsPositive() {
		share := next.Interest.Div(next.Payment).Mul(hundred).Round(0)
		tips = append(tips, newTip(TipInterestShare,
			fmt.Sprintf("%s%% of your next payment goes to interest.", share.String())))

		scenarios, err := s.runWhatIfs(ctx, state, summary)
		if err != nil {
			return nil, err
		}
		tips = append(tips, whatIfTips(scenarios, state.Loan.Currency)...)
	}

	tips = append(tips, newTip(TipPayOnSchedule,
		"Make extra payments on the scheduled payment date so the whole amount goes to principal."))
	return tips, nil
}

func (s *Service) runWhatIfs(ctx context.Context, state State, summary LoanSummary) ([]whatIf, error) {
	next := summary.NextPayment
	lump := generic.RoundMoney(next.Balance.Add(next.Principal).Mul(tenPercent))
	monthly := generic.RoundMoney(summary.MonthlyPayment.Mul(tenPercent))

	var scenarios []whatIf
	if lump.IsPositive() {
		scenarios = append(scenarios,
			whatIf{event: NewExtraPayment(next.Date, lump, ExtraOneTime, StrategyReduceTerm)},
			whatIf{event: NewExtraPayment(next.Date, lump, ExtraOneTime, StrategyReducePayment)},
		)
	}
	if monthly.IsPositive() {
		scenarios = append(scenarios, whatIf{event: NewExtraPayment(next.Date, monthly, ExtraMonthly, StrategyReduceTerm)})
	}

	committed := state.ScenarioEvents()
	g, gctx := errgroup.WithContext(ctx)
	for i := range scenarios {
		g.Go(func() error {
			result, err := PreviewScenario(gctx, state.Loan, committed, []Event{scenarios[i].event})
			if IsValidationError(err) {
				// Does not fit this loan (too close to payoff).
				return nil
			}
			if err != nil {
				return err
			}
			scenarios[i].result = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scenarios, nil
}

func whatIfTips(scenarios []whatIf, currency string) []Tip {
	var tips []Tip
	var term, payment *whatIf
	for i := range scenarios {
		p := &scenarios[i]
		if p.result == nil {
			continue
		}
		x := p.event.ExtraPayment
		switch {
		case x.Mode == ExtraOneTime && x.Strategy == StrategyReduceTerm:
			term = p
		case x.Mode == ExtraOneTime && x.Strategy == StrategyReducePayment:
			payment = p
		case x.Mode == ExtraMonthly:
			saving := p.result.InterestSaving
			months := p.result.MonthsDiff
			tip := newTip(TipMonthlyExtra, fmt.Sprintf("Adding %s %s every month saves %s %s of interest and %d months.",
				x.Amount.StringFixed(2), currency, saving.StringFixed(2), currency, months))
			tip.InterestSaving, tip.MonthsDiff = &saving, &months
			tips = append(tips, tip)
		}
	}

	if term != nil && payment != nil {
		diff := term.result.InterestSaving.Sub(payment.result.InterestSaving)
		saving := term.result.InterestSaving
		months := term.result.MonthsDiff
		amount := term.event.ExtraPayment.Amount.StringFixed(2)
		msg := fmt.Sprintf("A one-time %s %s with REDUCE_TERM saves %s %s more interest than REDUCE_PAYMENT.",
			amount, currency, diff.StringFixed(2), currency)
		if !diff.IsPositive() {
			msg = fmt.Sprintf("A one-time %s %s saves about the same with either strategy.", amount, currency)
		}
		tip := newTip(TipStrategy, msg)
		tip.InterestSaving, tip.MonthsDiff = &saving, &months
		tips = append([]Tip{tip}, tips...)
	}
	return tips
}
