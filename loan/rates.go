package loan

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// RATE PERIOD VALIDATION
// =============================================================================

// ValidateRatePeriods checks that the periods cover [loanStart, loanEnd]
// exactly once and returns them sorted by start date. Only the first
// problem found is reported.
func ValidateRatePeriods(periods []RatePeriod, loanStart, loanEnd generic.TimePoint) ([]RatePeriod, error) {
	if len(periods) == 0 {
		return nil, &RatePeriodCoverageError{
			Kind:  CoverageMissingHead,
			Range: generic.Period{Start: loanStart, End: loanEnd},
		}
	}

	for _, p := range periods {
		if err := validateRate("rate_periods.annual_rate", p.AnnualRate); err != nil {
			return nil, err
		}
		if p.StartDate.IsZero() || p.EndDate.IsZero() {
			return nil, &InputValidationError{Field: "rate_periods", Reason: "start_date and end_date are required", Err: ErrInvalidInput}
		}
		if err := p.Period().Validate(); err != nil {
			return nil, &InputValidationError{Field: "rate_periods", Reason: "end_date must not precede start_date", Err: err}
		}
	}

	sorted := make([]RatePeriod, len(periods))
	copy(sorted, periods)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartDate.Before(sorted[j].StartDate)
	})

	if first := sorted[0]; first.StartDate.After(loanStart) {
		return nil, &RatePeriodCoverageError{
			Kind:  CoverageMissingHead,
			Range: generic.Period{Start: loanStart, End: first.StartDate.AddDays(-1)},
		}
	}

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		expected := prev.EndDate.AddDays(1)
		switch {
		case cur.StartDate.Before(expected):
			end := prev.EndDate
			if cur.EndDate.Before(end) {
				end = cur.EndDate
			}
			return nil, &RatePeriodCoverageError{
				Kind:  CoverageOverlap,
				Range: generic.Period{Start: cur.StartDate, End: end},
			}
		case cur.StartDate.After(expected):
			return nil, &RatePeriodCoverageError{
				Kind:  CoverageGap,
				Range: generic.Period{Start: expected, End: cur.StartDate.AddDays(-1)},
			}
		}
	}

	if last := sorted[len(sorted)-1]; last.EndDate.Before(loanEnd) {
		return nil, &RatePeriodCoverageError{
			Kind:  CoverageMissingTail,
			Range: generic.Period{Start: last.EndDate.AddDays(1), End: loanEnd},
		}
	}
	return sorted, nil
}

// =============================================================================
// RATE TIMELINE - Which rate applies on a given payment date
// =============================================================================

type ratePoint struct {
	from generic.TimePoint
	rate decimal.Decimal
}

// rateTimeline merges period starts with RATE_CHANGE events. A change stays
// in force until the next point, so a rate change is overridden by the next
// scheduled period boundary. On the same date the event wins.
type rateTimeline struct {
	points []ratePoint
}

func newRateTimeline(l Loan, changes []RateChange) rateTimeline {
	points := make([]ratePoint, 0, len(l.RatePeriods)+len(changes)+1)
	if len(l.RatePeriods) == 0 {
		points = append(points, ratePoint{from: l.FirstPaymentDate, rate: l.AnnualRate})
	}
	for _, p := range l.RatePeriods {
		points = append(points, ratePoint{from: p.StartDate, rate: p.AnnualRate})
	}
	for _, c := range changes {
		points = append(points, ratePoint{from: c.Date, rate: c.AnnualRate})
	}
	// Stable: periods were appended before events.
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].from.Before(points[j].from)
	})
	return rateTimeline{points: points}
}

// RateAt returns the rate in force on date. Dates before the first point use
// the first rate; dates past the last period keep the last rate.
func (rt rateTimeline) RateAt(date generic.TimePoint) decimal.Decimal {
	if len(rt.points) == 0 {
		return decimal.Zero
	}
	i := sort.Search(len(rt.points), func(i int) bool {
		return rt.points[i].from.After(date)
	})
	if i == 0 {
		return rt.points[0].rate
	}
	return rt.points[i-1].rate
}
