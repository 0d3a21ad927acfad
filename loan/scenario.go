/*
scenario.go - What-if comparison against the baseline

PURPOSE:
  Answers "what happens if I pay 100k extra in March?" without committing
  anything. The loan is walked twice: once with the committed events
  (baseline) and once with committed + hypothetical events (scenario).
  Inputs are never mutated, so the same call always returns the same
  result.

VALIDATION (in date order, each event against the baseline with the
earlier events applied):
  - every event date lies in [first_payment_date, payoff date]
  - a holiday's start and end both lie in that range
  - an extra payment is > 0 and < the balance left once its anchor period
    is paid, which is where the extra lands

DELTAS:
  months_diff     = len(baseline) - len(scenario)
  interest_saving = baseline interest - scenario interest
  monthly_payment = regular payment of the first non-holiday period from
                    the anchor of the earliest hypothetical event (after
                    it, when that event is an extra payment)

SEE ALSO:
  - schedule.go: The walker both runs use
  - service.go: PreviewScenario / CommitEvent
*/
package loan

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// ScheduleSummary condenses a schedule.
type ScheduleSummary struct {
	MonthlyPayment decimal.Decimal   `json:"monthly_payment"`
	TotalInterest  decimal.Decimal   `json:"total_interest"`
	TotalPaid      decimal.Decimal   `json:"total_paid"`
	PayoffDate     generic.TimePoint `json:"payoff_date"`
	PaymentsCount  int               `json:"payments_count"`
}

func SummarizeSchedule(s Schedule) ScheduleSummary {
	return ScheduleSummary{
		MonthlyPayment: s.FirstRegularPayment(),
		TotalInterest:  s.TotalInterest(),
		TotalPaid:      s.TotalPaid(),
		PayoffDate:     s.PayoffDate(),
		PaymentsCount:  len(s),
	}
}

type ScenarioResult struct {
	Schedule        Schedule          `json:"schedule"`
	Baseline        Schedule          `json:"-"`
	BaseSummary     ScheduleSummary   `json:"base_summary"`
	ScenarioSummary ScheduleSummary   `json:"scenario_summary"`
	InterestSaving  decimal.Decimal   `json:"interest_saving"`
	MonthsDiff      int               `json:"months_diff"`
	MonthlyPayment  decimal.Decimal   `json:"monthly_payment"`
	PayoffDate      generic.TimePoint `json:"payoff_date"`
}

// PreviewScenario replays the loan with hypothetical events on top of the
// committed ones and compares the result with the committed baseline.
func PreviewScenario(ctx context.Context, l Loan, committed, hypothetical []Event) (*ScenarioResult, error) {
	baseline, err := simulate(ctx, l, committed)
	if err != nil {
		return nil, err
	}
	if err := validateInOrder(ctx, l, committed, baseline, hypothetical); err != nil {
		return nil, err
	}

	all := make([]Event, 0, len(committed)+len(hypothetical))
	all = append(all, committed...)
	all = append(all, hypothetical...)
	scenario, err := simulate(ctx, l, all)
	if err != nil {
		return nil, err
	}

	result := &ScenarioResult{
		Schedule:        scenario,
		Baseline:        baseline,
		BaseSummary:     SummarizeSchedule(baseline),
		ScenarioSummary: SummarizeSchedule(scenario),
		InterestSaving:  baseline.TotalInterest().Sub(scenario.TotalInterest()),
		MonthsDiff:      len(baseline) - len(scenario),
		PayoffDate:      scenario.PayoffDate(),
	}
	result.MonthlyPayment = regularPaymentAfter(scenario, hypothetical)
	return result, nil
}

// ValidateEvents checks events in date order, each against the schedule the
// committed events and the events before it produce. A second extra payment
// is therefore bounded by the balance the first one leaves behind. Errors
// name the event by its position in events.
func ValidateEvents(ctx context.Context, l Loan, committed, events []Event) error {
	baseline, err := simulate(ctx, l, committed)
	if err != nil {
		return err
	}
	return validateInOrder(ctx, l, committed, baseline, events)
}

// validateInOrder is ValidateEvents with the committed schedule already
// walked.
func validateInOrder(ctx context.Context, l Loan, committed []Event, baseline Schedule, events []Event) error {
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}

	schedule := baseline
	applied := make([]Event, 0, len(committed)+len(events))
	applied = append(applied, committed...)
	for n, i := range dateOrder(events) {
		if n > 0 {
			var err error
			if schedule, err = simulate(ctx, l, applied); err != nil {
				return err
			}
		}
		if err := checkEvent(schedule, l.FirstPaymentDate, events[i]); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
		applied = append(applied, events[i])
	}
	return nil
}

// checkEvent checks one valid event against the schedule it would be
// applied to.
func checkEvent(schedule Schedule, firstPayment generic.TimePoint, e Event) error {
	bounds := generic.Period{Start: firstPayment, End: schedule.PayoffDate()}
	switch e.Kind {
	case EventExtraPayment:
		x := e.ExtraPayment
		if !bounds.Contains(x.Date) {
			return &EventRangeError{Kind: e.Kind, Date: x.Date, Range: bounds}
		}
		anchor := anchorEntry(schedule, x.Date)
		if anchor == nil {
			return &EventRangeError{Kind: e.Kind, Date: x.Date, Range: bounds}
		}
		// The extra lands after the anchor's scheduled payment.
		if x.Amount.GreaterThanOrEqual(anchor.Balance) {
			return &AmountError{Amount: x.Amount, Limit: anchor.Balance, Reason: "must be less than the outstanding balance"}
		}
	case EventRateChange:
		if !bounds.Contains(e.RateChange.Date) {
			return &EventRangeError{Kind: e.Kind, Date: e.RateChange.Date, Range: bounds}
		}
	case EventHoliday:
		h := e.Holiday
		if !bounds.Contains(h.StartDate) {
			return &EventRangeError{Kind: e.Kind, Date: h.StartDate, Range: bounds}
		}
		if !bounds.Contains(h.EndDate) {
			return &EventRangeError{Kind: e.Kind, Date: h.EndDate, Range: bounds}
		}
	}
	return nil
}

// anchorEntry is the first entry dated on or after date.
func anchorEntry(s Schedule, date generic.TimePoint) *ScheduleEntry {
	if i := anchorIndex(s, date); i >= 0 {
		return &s[i]
	}
	return nil
}

func anchorIndex(s Schedule, date generic.TimePoint) int {
	for i := range s {
		if s[i].Date.AfterOrEqual(date) {
			return i
		}
	}
	return -1
}

func earliestDate(events []Event) generic.TimePoint {
	var earliest generic.TimePoint
	for _, e := range events {
		if d := e.Date(); earliest.IsZero() || d.Before(earliest) {
			earliest = d
		}
	}
	return earliest
}

// regularPaymentAfter is the regular payment once the earliest event is in
// effect. A rate change or holiday already shapes its anchor entry; an extra
// payment lands after the anchor is paid, so its new level starts on the
// following entry.
func regularPaymentAfter(s Schedule, events []Event) decimal.Decimal {
	if len(events) == 0 {
		return s.FirstRegularPayment()
	}
	start := anchorIndex(s, earliestDate(events))
	if start < 0 {
		return decimal.Zero
	}
	from := start
	for _, e := range events {
		if e.Kind == EventExtraPayment && e.Date().BeforeOrEqual(s[start].Date) {
			from = start + 1
			break
		}
	}
	if payment := s[from:].FirstRegularPayment(); !payment.IsZero() || from == start {
		return payment
	}
	// The extra left nothing after the anchor.
	if s[start].Holiday == "" {
		return s[start].RegularPayment()
	}
	return decimal.Zero
}
