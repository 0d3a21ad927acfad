package factory

import "fmt"

// =============================================================================
// PRESET LOANS
// =============================================================================
//
// Presets return JSON for ParseLoan. Amounts are passed as decimal strings.

// MortgageJSON is a long annuity loan.
func MortgageJSON(name, principal, annualRate string, termMonths int, firstPayment string) string {
	return fmt.Sprintf(`{
		"name": %q,
		"principal": %q,
		"annual_rate": %q,
		"payment_type": "ANNUITY",
		"term_months": %d,
		"first_payment_date": %q
	}`, name, principal, annualRate, termMonths, firstPayment)
}

// CarLoanJSON is a short differentiated loan.
func CarLoanJSON(name, principal, annualRate string, termMonths int, firstPayment string) string {
	return fmt.Sprintf(`{
		"name": %q,
		"principal": %q,
		"annual_rate": %q,
		"payment_type": "DIFFERENTIATED",
		"term_months": %d,
		"first_payment_date": %q
	}`, name, principal, annualRate, termMonths, firstPayment)
}

// ConsumerLoanJSON is an annuity loan with a planned extra payment every
// month, the usual "pay a bit more" setup.
func ConsumerLoanJSON(name, principal, annualRate string, termMonths int, firstPayment, monthlyExtra string) string {
	return fmt.Sprintf(`{
		"name": %q,
		"principal": %q,
		"annual_rate": %q,
		"term_months": %d,
		"first_payment_date": %q,
		"events": [
			{"type": "EXTRA_PAYMENT", "date": %q, "amount": %q, "mode": "MONTHLY", "strategy": "REDUCE_TERM"}
		]
	}`, name, principal, annualRate, termMonths, firstPayment, firstPayment, monthlyExtra)
}
