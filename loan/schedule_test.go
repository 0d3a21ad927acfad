package loan_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/loan"
)

// assertScheduleInvariants checks what must hold for every schedule.
func assertScheduleInvariants(t *testing.T, l loan.Loan, s loan.Schedule) {
	t.Helper()
	require.NotEmpty(t, s)

	assertMoney(t, l.OpeningBalance().String(), s.TotalPrincipal(), "principal parts sum to the opening balance")
	assertMoney(t, "0", s[len(s)-1].Balance, "final balance is zero")

	prev := l.OpeningBalance()
	for i, e := range s {
		assert.True(t, e.Payment.Equal(e.Interest.Add(e.Principal)), "period %d: payment != interest + principal", e.Period)
		assert.False(t, e.Balance.IsNegative(), "period %d: negative balance", e.Period)
		if e.Holiday != loan.HolidayFull {
			assert.True(t, e.Balance.LessThanOrEqual(prev), "period %d: balance increased", e.Period)
		}
		assert.Equal(t, l.FirstPaymentDate.AddMonths(i).String(), e.Date.String())
		prev = e.Balance
	}
}

// =============================================================================
// BASELINE
// =============================================================================

func TestGenerateSchedule_Annuity(t *testing.T) {
	// GIVEN: 1,200,000 at 12% over 12 months
	// WHEN: Generating the baseline schedule
	// THEN: 12 level payments, the last absorbs rounding drift

	l := yearLoan(loan.PaymentAnnuity)
	s, err := loan.GenerateSchedule(context.Background(), l)
	require.NoError(t, err)

	require.Len(t, s, 12)
	assertScheduleInvariants(t, l, s)

	assertMoney(t, "12000", s[0].Interest)
	assertMoney(t, "94618.55", s[0].Principal)
	assertMoney(t, "1105381.45", s[0].Balance)
	for _, e := range s[:11] {
		assertMoney(t, "106618.55", e.Payment)
	}
	assertMoney(t, "106618.51", s[11].Payment)
	assertMoney(t, "79422.56", s.TotalInterest())
	assert.Equal(t, "2025-12-15", s.PayoffDate().String())
}

func TestGenerateSchedule_Differentiated(t *testing.T) {
	l := yearLoan(loan.PaymentDifferentiated)
	s, err := loan.GenerateSchedule(context.Background(), l)
	require.NoError(t, err)

	require.Len(t, s, 12)
	assertScheduleInvariants(t, l, s)
	for _, e := range s {
		assertMoney(t, "100000", e.Principal)
	}
	assertMoney(t, "112000", s[0].Payment)
	assertMoney(t, "101000", s[11].Payment)
	assertMoney(t, "78000", s.TotalInterest())
}

func TestGenerateSchedule_EndOfMonthAnchor(t *testing.T) {
	// GIVEN: First payment on Jan 31 2024 (leap year)
	// THEN: Feb 29, then back to Mar 31, Apr 30

	l := yearLoan(loan.PaymentAnnuity)
	l.FirstPaymentDate = date("2024-01-31")
	l.RatePeriods = nil
	l = l.WithDefaults()

	s, err := loan.GenerateSchedule(context.Background(), l)
	require.NoError(t, err)

	assert.Equal(t, "2024-02-29", s[1].Date.String())
	assert.Equal(t, "2024-03-31", s[2].Date.String())
	assert.Equal(t, "2024-04-30", s[3].Date.String())
}

func TestGenerateSchedule_CurrentPrincipalIsOpeningBalance(t *testing.T) {
	l := yearLoan(loan.PaymentAnnuity)
	l.CurrentPrincipal = dec("600000")

	s, err := loan.GenerateSchedule(context.Background(), l)
	require.NoError(t, err)
	assertScheduleInvariants(t, l, s)
	assertMoney(t, "6000", s[0].Interest)
}

func TestGenerateSchedule_ZeroRate(t *testing.T) {
	l := yearLoan(loan.PaymentAnnuity)
	l.AnnualRate = decimal.Zero
	l.RatePeriods = nil
	l = l.WithDefaults()

	s, err := loan.GenerateSchedule(context.Background(), l)
	require.NoError(t, err)
	assertScheduleInvariants(t, l, s)
	assertMoney(t, "0", s.TotalInterest())
	assertMoney(t, "100000", s[0].Payment)
}

func TestGenerateSchedule_Deterministic(t *testing.T) {
	l := yearLoan(loan.PaymentAnnuity)
	a, err := loan.GenerateSchedule(context.Background(), l)
	require.NoError(t, err)
	b, err := loan.GenerateSchedule(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// =============================================================================
// RATE PERIODS
// =============================================================================

func TestGenerateSchedule_RatePeriodBoundaryReamortizesAnnuity(t *testing.T) {
	// GIVEN: 12% until June, 6% from July
	// WHEN: Generating the schedule
	// THEN: The payment drops in July and the payoff date does not move

	l := yearLoan(loan.PaymentAnnuity)
	l.RatePeriods = []loan.RatePeriod{
		rp("2025-01-15", "2025-06-30", "12"),
		rp("2025-07-01", "2025-12-15", "6"),
	}
	require.NoError(t, l.Validate())

	s, err := loan.GenerateSchedule(context.Background(), l)
	require.NoError(t, err)

	require.Len(t, s, 12)
	assertScheduleInvariants(t, l, s)
	assertMoney(t, "106618.55", s[5].Payment)
	assertMoney(t, "104793.92", s[6].Payment)
	assertMoney(t, "6", s[6].AnnualRate)
	assert.Contains(t, s[6].Events, loan.NoteRateChange)
	assertMoney(t, "68474.83", s.TotalInterest())
}

func TestGenerateSchedule_RatePeriodBoundaryKeepsDifferentiatedPrincipal(t *testing.T) {
	l := yearLoan(loan.PaymentDifferentiated)
	l.RatePeriods = []loan.RatePeriod{
		rp("2025-01-15", "2025-06-30", "12"),
		rp("2025-07-01", "2025-12-15", "6"),
	}

	s, err := loan.GenerateSchedule(context.Background(), l)
	require.NoError(t, err)
	for _, e := range s {
		assertMoney(t, "100000", e.Principal)
	}
	assertMoney(t, "67500", s.TotalInterest())
}

// =============================================================================
// BUDGET & CANCELLATION
// =============================================================================

func TestGenerateSchedule_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loan.GenerateSchedule(ctx, yearLoan(loan.PaymentAnnuity))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateSchedule_MaxTermStaysWithinBudget(t *testing.T) {
	l := loan.Loan{
		Name:             "50y",
		Principal:        dec("10000000"),
		AnnualRate:       dec("100"),
		PaymentType:      loan.PaymentAnnuity,
		TermMonths:       loan.MaxTermMonths,
		FirstPaymentDate: date("2025-01-01"),
	}.WithDefaults()
	require.NoError(t, l.Validate())

	s, err := loan.GenerateSchedule(context.Background(), l)
	require.NoError(t, err)
	assert.Len(t, s, loan.MaxTermMonths)
	assertMoney(t, "0", s[len(s)-1].Balance)
	assert.NotErrorIs(t, err, generic.ErrStepBudgetExceeded)
}

func TestPreviewScenario_MaxTermLoanCanTakeHolidays(t *testing.T) {
	// GIVEN: A 600-month loan
	// WHEN: Taking a year of interest-only holiday
	// THEN: The schedule runs past 600 periods without hitting the budget

	l := loan.Loan{
		Name:             "50y",
		Principal:        dec("10000000"),
		AnnualRate:       dec("12"),
		PaymentType:      loan.PaymentAnnuity,
		TermMonths:       loan.MaxTermMonths,
		FirstPaymentDate: date("2025-01-01"),
	}.WithDefaults()

	result, err := loan.PreviewScenario(context.Background(), l, nil,
		[]loan.Event{loan.NewHoliday(date("2030-01-01"), date("2030-12-31"), loan.HolidayInterestOnly)})
	require.NoError(t, err)
	assert.Len(t, result.Schedule, loan.MaxTermMonths+12)
	assert.Greater(t, loan.MaxSchedulePeriods, len(result.Schedule))
}
