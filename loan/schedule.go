/*
schedule.go - Period-by-period schedule walker

PURPOSE:
  Produces the payment schedule of a loan, optionally with events applied.
  The baseline schedule is simply the walk with no events.

PER PERIOD:
  1. date     = first_payment_date + idx months (never chained, so the day
                of month snaps back after short months)
  2. rate     = rate timeline at date (rate periods, overridden by RATE_CHANGE)
  3. interest = round(balance * rate / 1200)
  4. holiday? INTEREST_ONLY pays interest; FULL pays nothing and adds the
              interest to the balance. The planned term is not consumed.
     else     re-amortize if the rate or the balance moved, then pay the
              scheduled principal. The last planned period (or one that
              would overshoot) takes the whole balance.
  5. extras   applied after the scheduled payment, capped at the balance,
              followed by the extra's strategy.

RE-AMORTIZATION:
  ANNUITY        payment = annuity(balance, rate, remaining) - payoff date kept
  DIFFERENTIATED rate move: principal part kept, only the interest changes
                 holiday:   principal part = balance / remaining

BUDGET:
  The walk stops with ErrStepBudgetExceeded after term + holiday months
  (at most MaxSchedulePeriods) periods, and checks ctx every 12 periods.

SEE ALSO:
  - amortization.go: AnnuityPayment
  - rates.go: rateTimeline
  - scenario.go: Baseline vs scenario comparison
*/
package loan

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// Notes attached to schedule entries.
const (
	NoteRateChange = "RATE_CHANGE"
	noteHoliday    = "HOLIDAY_"
	noteExtra      = "EXTRA_"
)

// GenerateSchedule returns the baseline schedule of a loan.
func GenerateSchedule(ctx context.Context, l Loan) (Schedule, error) {
	return simulate(ctx, l, nil)
}

// simulate walks the loan with the given events applied. Events must have
// passed Validate.
func simulate(ctx context.Context, l Loan, events []Event) (Schedule, error) {
	if l.TermMonths < 1 {
		return nil, &InputValidationError{Field: "term_months", Reason: "must be > 0", Err: ErrInvalidTerm}
	}
	set := splitEvents(events)
	w := newWalker(l, set)

	budget := stepBudget(l, set.holidays)
	schedule := make(Schedule, 0, l.TermMonths)
	for idx := 0; w.balance.IsPositive(); idx++ {
		if idx >= budget {
			return nil, fmt.Errorf("%w: loan %s still owes %s after %d periods",
				generic.ErrStepBudgetExceeded, l.ID, w.balance.StringFixed(2), budget)
		}
		if idx%12 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		schedule = append(schedule, w.step(idx, l.FirstPaymentDate.AddMonths(idx)))
	}
	return schedule, nil
}

func stepBudget(l Loan, holidays []Holiday) int {
	budget := l.TermMonths
	for _, h := range holidays {
		budget += h.Period().Months()
	}
	if budget > MaxSchedulePeriods {
		budget = MaxSchedulePeriods
	}
	return budget
}

// =============================================================================
// WALKER
// =============================================================================

type walker struct {
	paymentType PaymentType
	rates       rateTimeline
	holidays    []Holiday
	extras      []ExtraPayment
	extraDone   []bool

	balance   decimal.Decimal
	remaining int             // planned regular periods left, current included
	payment   decimal.Decimal // ANNUITY level payment
	part      decimal.Decimal // DIFFERENTIATED principal part
	prevRate  decimal.Decimal

	rateMoved    bool
	balanceMoved bool
}

func newWalker(l Loan, set eventSet) *walker {
	rates := newRateTimeline(l, set.changes)
	balance := l.OpeningBalance()
	rate := rates.RateAt(l.FirstPaymentDate)
	return &walker{
		paymentType: l.PaymentType,
		rates:       rates,
		holidays:    set.holidays,
		extras:      set.extras,
		extraDone:   make([]bool, len(set.extras)),
		balance:     balance,
		remaining:   l.TermMonths,
		payment:     AnnuityPayment(balance, rate, l.TermMonths),
		part:        generic.RoundMoney(balance.Div(decimal.NewFromInt(int64(l.TermMonths)))),
		prevRate:    rate,
	}
}

func (w *walker) step(idx int, date generic.TimePoint) ScheduleEntry {
	rate := w.rates.RateAt(date)
	entry := ScheduleEntry{Period: idx + 1, Date: date, AnnualRate: rate}

	if !rate.Equal(w.prevRate) {
		w.rateMoved = true
		w.prevRate = rate
		entry.Events = append(entry.Events, NoteRateChange)
	}

	interest := generic.RoundMoney(w.balance.Mul(monthlyRate(rate)))
	principal := decimal.Zero

	if h := w.holidayAt(date); h != nil {
		entry.Holiday = h.Type
		entry.Events = append(entry.Events, noteHoliday+string(h.Type))
		if h.Type == HolidayFull {
			principal = interest.Neg()
		}
		w.balanceMoved = true
	} else {
		w.reamortize(rate)
		principal = w.scheduledPrincipal(interest)
		w.remaining--
	}
	w.balance = w.balance.Sub(principal)

	extra := w.applyExtras(date, rate, &entry)

	entry.Interest = interest
	entry.Principal = principal.Add(extra)
	entry.Extra = extra
	entry.Payment = interest.Add(entry.Principal)
	entry.Balance = w.balance
	return entry
}

func (w *walker) holidayAt(date generic.TimePoint) *Holiday {
	for i := range w.holidays {
		if w.holidays[i].Period().Contains(date) {
			return &w.holidays[i]
		}
	}
	return nil
}

func (w *walker) remainingOrOne() int {
	if w.remaining < 1 {
		return 1
	}
	return w.remaining
}

func (w *walker) reamortize(rate decimal.Decimal) {
	if !w.rateMoved && !w.balanceMoved {
		return
	}
	n := w.remainingOrOne()
	w.payment = AnnuityPayment(w.balance, rate, n)
	if w.balanceMoved {
		w.part = generic.RoundMoney(w.balance.Div(decimal.NewFromInt(int64(n))))
	}
	w.rateMoved, w.balanceMoved = false, false
}

func (w *walker) scheduledPrincipal(interest decimal.Decimal) decimal.Decimal {
	var principal decimal.Decimal
	if w.paymentType == PaymentDifferentiated {
		principal = w.part
	} else {
		principal = w.payment.Sub(interest)
		if principal.IsNegative() {
			principal = decimal.Zero
		}
	}
	if w.remaining <= 1 || principal.GreaterThanOrEqual(w.balance) {
		principal = w.balance
	}
	return principal
}

func (w *walker) applyExtras(date generic.TimePoint, rate decimal.Decimal, entry *ScheduleEntry) decimal.Decimal {
	total := decimal.Zero
	for k, x := range w.extras {
		if !w.balance.IsPositive() {
			break
		}
		if date.Before(x.Date) {
			continue
		}
		if x.Mode == ExtraOneTime {
			if w.extraDone[k] {
				continue
			}
			w.extraDone[k] = true
		}
		amount := generic.MinDecimal(generic.RoundMoney(x.Amount), w.balance)
		if !amount.IsPositive() {
			continue
		}
		w.balance = w.balance.Sub(amount)
		total = total.Add(amount)
		entry.Events = append(entry.Events, noteExtra+string(x.Strategy))
		if w.balance.IsPositive() {
			w.restructure(x.Strategy, rate)
		}
	}
	return total
}

// restructure applies an extra payment's strategy to the remaining plan.
func (w *walker) restructure(strategy ExtraStrategy, rate decimal.Decimal) {
	if w.remaining < 1 {
		return
	}
	switch strategy {
	case StrategyReduceTerm:
		w.remaining = w.periodsToRepay(rate)
	case StrategyReducePayment:
		n := decimal.NewFromInt(int64(w.remaining))
		w.payment = AnnuityPayment(w.balance, rate, w.remaining)
		w.part = generic.RoundMoney(w.balance.Div(n))
	}
}

// periodsToRepay is how many periods the current payment level needs to
// clear the balance. It never extends the plan.
func (w *walker) periodsToRepay(rate decimal.Decimal) int {
	var n int
	if w.paymentType == PaymentDifferentiated {
		if !w.part.IsPositive() {
			return w.remaining
		}
		n = int(w.balance.Div(w.part).Ceil().IntPart())
	} else {
		n = annuityPeriods(w.balance, rate, w.payment)
		if n <= 0 {
			return w.remaining
		}
	}
	if n < 1 {
		n = 1
	}
	if n > w.remaining {
		n = w.remaining
	}
	return n
}

// annuityPeriods solves the annuity formula for n. Returns 0 when the
// payment does not cover the interest.
func annuityPeriods(balance, annualRate, payment decimal.Decimal) int {
	if !payment.IsPositive() {
		return 0
	}
	i := monthlyRate(annualRate)
	if i.IsZero() {
		return int(balance.Div(payment).Ceil().IntPart())
	}
	ratio := balance.Mul(i).Div(payment).InexactFloat64()
	if ratio >= 1 {
		return 0
	}
	n := -math.Log(1-ratio) / math.Log(1+i.InexactFloat64())
	return int(math.Ceil(n - 1e-9))
}
