package loan

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// SCENARIO EVENTS - Tagged variant
// =============================================================================

type EventKind string

const (
	EventExtraPayment EventKind = "EXTRA_PAYMENT"
	EventRateChange   EventKind = "RATE_CHANGE"
	EventHoliday      EventKind = "HOLIDAY"
)

type ExtraMode string

const (
	ExtraOneTime ExtraMode = "ONE_TIME"
	ExtraMonthly ExtraMode = "MONTHLY"
)

type ExtraStrategy string

const (
	// StrategyReduceTerm keeps the payment and shortens the loan.
	StrategyReduceTerm ExtraStrategy = "REDUCE_TERM"
	// StrategyReducePayment keeps the payoff date and lowers the payment.
	StrategyReducePayment ExtraStrategy = "REDUCE_PAYMENT"
)

type HolidayType string

const (
	HolidayInterestOnly HolidayType = "INTEREST_ONLY"
	// HolidayFull skips the payment and adds the month's interest to the balance.
	HolidayFull HolidayType = "FULL"
)

type ExtraPayment struct {
	Date     generic.TimePoint `json:"date"`
	Amount   decimal.Decimal   `json:"amount"`
	Mode     ExtraMode         `json:"mode"`
	Strategy ExtraStrategy     `json:"strategy"`
}

type RateChange struct {
	Date       generic.TimePoint `json:"date"`
	AnnualRate decimal.Decimal   `json:"annual_rate"`
}

type Holiday struct {
	StartDate generic.TimePoint `json:"start_date"`
	EndDate   generic.TimePoint `json:"end_date"`
	Type      HolidayType       `json:"holiday_type"`
}

func (h Holiday) Period() generic.Period {
	return generic.Period{Start: h.StartDate, End: h.EndDate}
}

// Event is exactly one of ExtraPayment, RateChange or Holiday, selected by
// Kind. Construct with NewExtraPayment, NewRateChange or NewHoliday.
type Event struct {
	Kind         EventKind     `json:"type"`
	ExtraPayment *ExtraPayment `json:"extra_payment,omitempty"`
	RateChange   *RateChange   `json:"rate_change,omitempty"`
	Holiday      *Holiday      `json:"holiday,omitempty"`
}

func NewExtraPayment(date generic.TimePoint, amount decimal.Decimal, mode ExtraMode, strategy ExtraStrategy) Event {
	return Event{Kind: EventExtraPayment, ExtraPayment: &ExtraPayment{Date: date, Amount: amount, Mode: mode, Strategy: strategy}}
}

func NewRateChange(date generic.TimePoint, annualRate decimal.Decimal) Event {
	return Event{Kind: EventRateChange, RateChange: &RateChange{Date: date, AnnualRate: annualRate}}
}

func NewHoliday(start, end generic.TimePoint, holidayType HolidayType) Event {
	return Event{Kind: EventHoliday, Holiday: &Holiday{StartDate: start, EndDate: end, Type: holidayType}}
}

// Date is the event's effective date; a holiday's is its start.
func (e Event) Date() generic.TimePoint {
	switch e.Kind {
	case EventExtraPayment:
		if e.ExtraPayment != nil {
			return e.ExtraPayment.Date
		}
	case EventRateChange:
		if e.RateChange != nil {
			return e.RateChange.Date
		}
	case EventHoliday:
		if e.Holiday != nil {
			return e.Holiday.StartDate
		}
	}
	return generic.TimePoint{}
}

// Validate checks the event on its own, without looking at any schedule.
func (e Event) Validate() error {
	switch e.Kind {
	case EventExtraPayment:
		x := e.ExtraPayment
		if x == nil {
			return &InputValidationError{Field: "extra_payment", Reason: "is required", Err: ErrInvalidInput}
		}
		if x.Date.IsZero() {
			return &InputValidationError{Field: "date", Reason: "is required", Err: ErrInvalidInput}
		}
		if !x.Amount.IsPositive() {
			return &AmountError{Amount: x.Amount, Reason: "must be > 0"}
		}
		if x.Mode != ExtraOneTime && x.Mode != ExtraMonthly {
			return &InputValidationError{Field: "mode", Reason: "must be ONE_TIME or MONTHLY", Err: ErrInvalidInput}
		}
		if x.Strategy != StrategyReduceTerm && x.Strategy != StrategyReducePayment {
			return &InputValidationError{Field: "strategy", Reason: "must be REDUCE_TERM or REDUCE_PAYMENT", Err: ErrInvalidInput}
		}
	case EventRateChange:
		r := e.RateChange
		if r == nil {
			return &InputValidationError{Field: "rate_change", Reason: "is required", Err: ErrInvalidInput}
		}
		if r.Date.IsZero() {
			return &InputValidationError{Field: "date", Reason: "is required", Err: ErrInvalidInput}
		}
		if err := validateRate("annual_rate", r.AnnualRate); err != nil {
			return err
		}
	case EventHoliday:
		h := e.Holiday
		if h == nil {
			return &InputValidationError{Field: "holiday", Reason: "is required", Err: ErrInvalidInput}
		}
		if h.StartDate.IsZero() || h.EndDate.IsZero() {
			return &InputValidationError{Field: "holiday", Reason: "start_date and end_date are required", Err: ErrInvalidInput}
		}
		if err := h.Period().Validate(); err != nil {
			return &InputValidationError{Field: "end_date", Reason: "must not precede start_date", Err: err}
		}
		if h.Type != HolidayInterestOnly && h.Type != HolidayFull {
			return &InputValidationError{Field: "holiday_type", Reason: "must be INTEREST_ONLY or FULL", Err: ErrInvalidInput}
		}
	default:
		return &InputValidationError{Field: "type", Reason: "must be EXTRA_PAYMENT, RATE_CHANGE or HOLIDAY", Err: ErrInvalidInput}
	}
	return nil
}

// SortEvents returns a copy ordered by date. Events on the same date keep
// their relative order.
func SortEvents(events []Event) []Event {
	sorted := make([]Event, len(events))
	for n, i := range dateOrder(events) {
		sorted[n] = events[i]
	}
	return sorted
}

// dateOrder returns the indexes of events ordered as SortEvents orders them.
func dateOrder(events []Event) []int {
	order := make([]int, len(events))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return events[order[a]].Date().Before(events[order[b]].Date())
	})
	return order
}

type eventSet struct {
	extras   []ExtraPayment
	changes  []RateChange
	holidays []Holiday
}

func splitEvents(events []Event) eventSet {
	var set eventSet
	for _, e := range SortEvents(events) {
		switch e.Kind {
		case EventExtraPayment:
			set.extras = append(set.extras, *e.ExtraPayment)
		case EventRateChange:
			set.changes = append(set.changes, *e.RateChange)
		case EventHoliday:
			set.holidays = append(set.holidays, *e.Holiday)
		}
	}
	return set
}
