package loan_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(s string) generic.TimePoint {
	return generic.MustParseDate(s)
}

// assertMoney compares at cent precision so "100000" and "100000.00" match.
func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, dec(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

// yearLoan is 1,200,000 at 12% over 12 months, first payment 2025-01-15.
func yearLoan(pt loan.PaymentType) loan.Loan {
	return loan.Loan{
		ID:               "loan-test",
		Name:             "Test loan",
		Principal:        dec("1200000"),
		AnnualRate:       dec("12"),
		PaymentType:      pt,
		TermMonths:       12,
		FirstPaymentDate: date("2025-01-15"),
	}.WithDefaults()
}
