package loan_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/loan"
)

func preview(t *testing.T, l loan.Loan, events ...loan.Event) *loan.ScenarioResult {
	t.Helper()
	result, err := loan.PreviewScenario(context.Background(), l, nil, events)
	require.NoError(t, err)
	return result
}

// =============================================================================
// EXTRA PAYMENTS
// =============================================================================

func TestPreviewScenario_OneTimeExtra_ReduceTerm(t *testing.T) {
	// GIVEN: 200,000 extra on the March payment date, REDUCE_TERM
	// WHEN: Previewing
	// THEN: The payment stays level and the loan ends two months early

	l := yearLoan(loan.PaymentAnnuity)
	result := preview(t, l, loan.NewExtraPayment(date("2025-03-15"), dec("200000"), loan.ExtraOneTime, loan.StrategyReduceTerm))

	require.Len(t, result.Schedule, 10)
	assertScheduleInvariants(t, l, result.Schedule)
	assert.Equal(t, 2, result.MonthsDiff)
	assertMoney(t, "17583.51", result.InterestSaving)
	assert.Equal(t, "2025-10-15", result.PayoffDate.String())
	assertMoney(t, "106618.55", result.MonthlyPayment)

	march := result.Schedule[2]
	assertMoney(t, "306618.55", march.Payment)
	assertMoney(t, "200000", march.Extra)
	assertMoney(t, "713296.33", march.Balance)
	assert.Contains(t, march.Events, "EXTRA_REDUCE_TERM")
	assertMoney(t, "102272.10", result.Schedule[9].Payment)

	assert.Equal(t, 12, result.BaseSummary.PaymentsCount)
	assert.Equal(t, 10, result.ScenarioSummary.PaymentsCount)
}

func TestPreviewScenario_OneTimeExtra_ReducePayment(t *testing.T) {
	// GIVEN: The same extra with REDUCE_PAYMENT
	// THEN: The payoff date stays, the payment from April drops

	l := yearLoan(loan.PaymentAnnuity)
	result := preview(t, l, loan.NewExtraPayment(date("2025-03-15"), dec("200000"), loan.ExtraOneTime, loan.StrategyReducePayment))

	require.Len(t, result.Schedule, 12)
	assertScheduleInvariants(t, l, result.Schedule)
	assert.Equal(t, 0, result.MonthsDiff)
	assertMoney(t, "10132.65", result.InterestSaving)
	assertMoney(t, "83270.47", result.MonthlyPayment)
	assertMoney(t, "83270.47", result.Schedule[3].Payment)
	assert.Contains(t, result.Schedule[2].Events, "EXTRA_REDUCE_PAYMENT")
}

func TestPreviewScenario_ExtraBetweenPaymentDatesAnchorsToNextPayment(t *testing.T) {
	l := yearLoan(loan.PaymentAnnuity)
	onDate := preview(t, l, loan.NewExtraPayment(date("2025-03-15"), dec("200000"), loan.ExtraOneTime, loan.StrategyReducePayment))
	before := preview(t, l, loan.NewExtraPayment(date("2025-03-01"), dec("200000"), loan.ExtraOneTime, loan.StrategyReducePayment))

	assert.Equal(t, onDate.Schedule, before.Schedule)
}

func TestPreviewScenario_MonthlyExtra(t *testing.T) {
	l := yearLoan(loan.PaymentAnnuity)
	result := preview(t, l, loan.NewExtraPayment(date("2025-03-15"), dec("50000"), loan.ExtraMonthly, loan.StrategyReduceTerm))

	require.Len(t, result.Schedule, 9)
	assertScheduleInvariants(t, l, result.Schedule)
	assert.Equal(t, 3, result.MonthsDiff)
	assertMoney(t, "16968.84", result.InterestSaving)
	assertMoney(t, "0", result.Schedule[0].Extra)
	assertMoney(t, "50000", result.Schedule[2].Extra)
	assertMoney(t, "50000", result.Schedule[3].Extra)
}

func TestPreviewScenario_Differentiated_ReduceTerm(t *testing.T) {
	// GIVEN: Differentiated loan with a 200,000 extra in March
	// THEN: The 100,000 principal part is kept, two periods disappear

	l := yearLoan(loan.PaymentDifferentiated)
	result := preview(t, l, loan.NewExtraPayment(date("2025-03-15"), dec("200000"), loan.ExtraOneTime, loan.StrategyReduceTerm))

	require.Len(t, result.Schedule, 10)
	assertScheduleInvariants(t, l, result.Schedule)
	assertMoney(t, "1100000", result.Schedule[0].Balance)
	assertMoney(t, "1000000", result.Schedule[1].Balance)
	assertMoney(t, "700000", result.Schedule[2].Balance)
	assertMoney(t, "61000", result.ScenarioSummary.TotalInterest)
}

// =============================================================================
// HOLIDAYS & RATE CHANGES
// =============================================================================

func TestPreviewScenario_InterestOnlyHoliday(t *testing.T) {
	// GIVEN: Interest-only holiday over March and April
	// THEN: Two interest-only payments, the balance does not move, the loan
	//       gets two months longer and the old payment resumes in May

	l := yearLoan(loan.PaymentAnnuity)
	result := preview(t, l, loan.NewHoliday(date("2025-03-01"), date("2025-04-30"), loan.HolidayInterestOnly))

	require.Len(t, result.Schedule, 14)
	assertScheduleInvariants(t, l, result.Schedule)
	assert.Equal(t, -2, result.MonthsDiff)
	assertMoney(t, "99618.90", result.ScenarioSummary.TotalInterest)

	for _, e := range result.Schedule[2:4] {
		assert.Equal(t, loan.HolidayInterestOnly, e.Holiday)
		assertMoney(t, "10098.17", e.Payment)
		assertMoney(t, "1009816.71", e.Balance)
		assert.Contains(t, e.Events, "HOLIDAY_INTEREST_ONLY")
	}
	assertMoney(t, "106618.55", result.Schedule[4].Payment)
	assertMoney(t, "106618.55", result.MonthlyPayment)
}

func TestPreviewScenario_FullHoliday(t *testing.T) {
	// GIVEN: Full holiday over March and April
	// THEN: Nothing is paid and the interest is capitalized

	l := yearLoan(loan.PaymentAnnuity)
	result := preview(t, l, loan.NewHoliday(date("2025-03-01"), date("2025-04-30"), loan.HolidayFull))

	require.Len(t, result.Schedule, 14)
	assertScheduleInvariants(t, l, result.Schedule)
	assertMoney(t, "100852.89", result.ScenarioSummary.TotalInterest)

	assertMoney(t, "0", result.Schedule[2].Payment)
	assertMoney(t, "1019914.88", result.Schedule[2].Balance)
	assertMoney(t, "0", result.Schedule[3].Payment)
	assertMoney(t, "1030114.03", result.Schedule[3].Balance)
	assertMoney(t, "108761.58", result.Schedule[4].Payment)
}

func TestPreviewScenario_RateChange(t *testing.T) {
	l := yearLoan(loan.PaymentAnnuity)
	result := preview(t, l, loan.NewRateChange(date("2025-07-01"), dec("6")))

	require.Len(t, result.Schedule, 12)
	assert.Equal(t, 0, result.MonthsDiff)
	assertMoney(t, "68474.83", result.ScenarioSummary.TotalInterest)
	assertMoney(t, "104793.92", result.Schedule[6].Payment)
	assertMoney(t, "6", result.Schedule[6].AnnualRate)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestPreviewScenario_RejectsInvalidEvents(t *testing.T) {
	l := yearLoan(loan.PaymentAnnuity)

	tests := []struct {
		name  string
		event loan.Event
		want  error
	}{
		{"extra before first payment", loan.NewExtraPayment(date("2024-12-01"), dec("1000"), loan.ExtraOneTime, loan.StrategyReduceTerm), loan.ErrEventOutOfRange},
		{"extra after payoff", loan.NewExtraPayment(date("2026-01-01"), dec("1000"), loan.ExtraOneTime, loan.StrategyReduceTerm), loan.ErrEventOutOfRange},
		{"extra covers balance", loan.NewExtraPayment(date("2025-03-15"), dec("1009816.71"), loan.ExtraOneTime, loan.StrategyReduceTerm), loan.ErrInvalidAmount},
		{"zero extra", loan.NewExtraPayment(date("2025-03-15"), dec("0"), loan.ExtraOneTime, loan.StrategyReduceTerm), loan.ErrInvalidAmount},
		{"unknown strategy", loan.NewExtraPayment(date("2025-03-15"), dec("10"), loan.ExtraOneTime, "SKIP"), loan.ErrInvalidInput},
		{"holiday past payoff", loan.NewHoliday(date("2025-11-01"), date("2026-02-28"), loan.HolidayFull), loan.ErrEventOutOfRange},
		{"holiday inverted", loan.NewHoliday(date("2025-05-01"), date("2025-04-01"), loan.HolidayFull), generic.ErrInvalidPeriod},
		{"rate change above 100", loan.NewRateChange(date("2025-05-01"), dec("120")), loan.ErrInvalidRate},
		{"unknown kind", loan.Event{Kind: "REFINANCE"}, loan.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loan.PreviewScenario(context.Background(), l, nil, []loan.Event{tt.event})
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, loan.IsValidationError(err))
		})
	}
}

func TestPreviewScenario_RangeErrorNamesTheSchedule(t *testing.T) {
	l := yearLoan(loan.PaymentAnnuity)
	_, err := loan.PreviewScenario(context.Background(), l, nil,
		[]loan.Event{loan.NewRateChange(date("2026-01-15"), dec("5"))})

	var rangeErr *loan.EventRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, loan.EventRateChange, rangeErr.Kind)
	assert.Equal(t, "2025-01-15", rangeErr.Range.Start.String())
	assert.Equal(t, "2025-12-15", rangeErr.Range.End.String())
}

func TestPreviewScenario_ValidatesAgainstCommittedBaseline(t *testing.T) {
	// GIVEN: A committed extra that shortens the loan to October
	// WHEN: Previewing a rate change in November
	// THEN: November is past the committed payoff date

	l := yearLoan(loan.PaymentAnnuity)
	committed := []loan.Event{loan.NewExtraPayment(date("2025-03-15"), dec("200000"), loan.ExtraOneTime, loan.StrategyReduceTerm)}

	_, err := loan.PreviewScenario(context.Background(), l, committed,
		[]loan.Event{loan.NewRateChange(date("2025-11-15"), dec("5"))})
	assert.ErrorIs(t, err, loan.ErrEventOutOfRange)
}

func TestPreviewScenario_DoesNotMutateInputs(t *testing.T) {
	l := yearLoan(loan.PaymentAnnuity)
	events := []loan.Event{
		loan.NewRateChange(date("2025-07-01"), dec("6")),
		loan.NewExtraPayment(date("2025-03-15"), dec("200000"), loan.ExtraOneTime, loan.StrategyReduceTerm),
	}
	before := loan.SortEvents(events)

	first := preview(t, l, events...)
	second := preview(t, l, events...)

	assert.Equal(t, first, second)
	assert.Equal(t, loan.EventRateChange, events[0].Kind, "caller's slice keeps its order")
	assert.Equal(t, before, loan.SortEvents(events))
	assert.Len(t, l.RatePeriods, 1)
}

func TestPreviewScenario_ExtraBoundIsBalanceAfterAnchorPayment(t *testing.T) {
	// GIVEN: March opens at 1,009,816.71 and closes at 913,296.33
	// WHEN: Previewing an extra of 950,000 in March
	// THEN: Rejected, the extra lands after March's own payment

	l := yearLoan(loan.PaymentAnnuity)
	_, err := loan.PreviewScenario(context.Background(), l, nil,
		[]loan.Event{loan.NewExtraPayment(date("2025-03-15"), dec("950000"), loan.ExtraOneTime, loan.StrategyReduceTerm)})

	var amountErr *loan.AmountError
	require.ErrorAs(t, err, &amountErr)
	assertMoney(t, "913296.33", amountErr.Limit)

	result := preview(t, l, loan.NewExtraPayment(date("2025-03-15"), dec("913296.32"), loan.ExtraOneTime, loan.StrategyReduceTerm))
	assert.GreaterOrEqual(t, result.MonthsDiff, 8)
}

func TestPreviewScenario_ValidatesEachEventAfterTheEarlierOnes(t *testing.T) {
	// GIVEN: 600,000 extra in February, then 500,000 in March
	// WHEN: Previewing both
	// THEN: February leaves 307,296.33 after March's payment, so the
	//       second extra is rejected against that balance

	l := yearLoan(loan.PaymentAnnuity)
	events := []loan.Event{
		loan.NewExtraPayment(date("2025-03-15"), dec("500000"), loan.ExtraOneTime, loan.StrategyReduceTerm),
		loan.NewExtraPayment(date("2025-02-15"), dec("600000"), loan.ExtraOneTime, loan.StrategyReduceTerm),
	}

	_, err := loan.PreviewScenario(context.Background(), l, nil, events)

	var amountErr *loan.AmountError
	require.ErrorAs(t, err, &amountErr)
	assertMoney(t, "500000", amountErr.Amount)
	assertMoney(t, "307296.33", amountErr.Limit)
	assert.Contains(t, err.Error(), "events[0]")

	err = loan.ValidateEvents(context.Background(), l, nil, events)
	assert.ErrorIs(t, err, loan.ErrInvalidAmount)
}

func TestValidateEvents_LaterEventFitsOnceEarlierOneExtendsTheLoan(t *testing.T) {
	// GIVEN: A January 2026 extra listed before the holiday that pushes the
	//        payoff into February 2026
	// WHEN: Validating
	// THEN: Events are checked in date order, so both pass

	l := yearLoan(loan.PaymentAnnuity)
	events := []loan.Event{
		loan.NewExtraPayment(date("2026-01-15"), dec("1000"), loan.ExtraOneTime, loan.StrategyReduceTerm),
		loan.NewHoliday(date("2025-10-01"), date("2025-11-30"), loan.HolidayFull),
	}

	require.NoError(t, loan.ValidateEvents(context.Background(), l, nil, events))

	result := preview(t, l, events...)
	require.Len(t, result.Schedule, 14)
	assert.Equal(t, "2026-02-15", result.PayoffDate.String())
	assertMoney(t, "1000", result.Schedule[12].Extra)
}

func TestPreviewScenario_MonthlyPaymentStartsAtRateChangeAnchor(t *testing.T) {
	// GIVEN: A rate cut to 6% dated on the November payment
	// WHEN: Previewing
	// THEN: The reported payment is November's, the first one at the new rate

	l := yearLoan(loan.PaymentAnnuity)
	result := preview(t, l, loan.NewRateChange(date("2025-11-15"), dec("6")))

	assertMoney(t, "105828.77", result.Schedule[10].Payment)
	assertMoney(t, "105828.77", result.MonthlyPayment)
}
