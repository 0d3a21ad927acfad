package loan

import (
	"github.com/shopspring/decimal"
	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// AMORTIZATION CALCULATOR - Closed-form payment figures
// =============================================================================
//
// ANNUITY:
//   i = annual_rate / 100 / 12
//   payment = P * i * (1+i)^n / ((1+i)^n - 1)      (P / n when i = 0)
//
// DIFFERENTIATED:
//   principal_part = P / n
//   payment_k = principal_part + remaining_k * i   (last period takes the residue)

// powPrecision is the number of decimal places kept while raising (1+i) to n.
const powPrecision = 24

type CalcInput struct {
	Principal   decimal.Decimal
	AnnualRate  decimal.Decimal
	TermMonths  int
	PaymentType PaymentType
}

type Calculation struct {
	PaymentType    PaymentType     `json:"payment_type"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	PrincipalPart  decimal.Decimal `json:"principal_part"`
	FirstPayment   decimal.Decimal `json:"first_payment"`
	LastPayment    decimal.Decimal `json:"last_payment"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	Overpayment    decimal.Decimal `json:"overpayment"`
}

// Calculate returns the payment figures for a fixed-rate loan.
func Calculate(in CalcInput) (*Calculation, error) {
	if !in.Principal.IsPositive() {
		return nil, &InputValidationError{Field: "principal", Reason: "must be > 0", Err: ErrInvalidPrincipal}
	}
	if in.AnnualRate.IsNegative() {
		return nil, &InputValidationError{Field: "annual_rate", Reason: "must be >= 0", Err: ErrInvalidRate}
	}
	if in.TermMonths <= 0 {
		return nil, &InputValidationError{Field: "term_months", Reason: "must be > 0", Err: ErrInvalidTerm}
	}
	if in.PaymentType == "" {
		in.PaymentType = PaymentAnnuity
	}
	if !in.PaymentType.Valid() {
		return nil, &InputValidationError{Field: "payment_type", Reason: "must be ANNUITY or DIFFERENTIATED", Err: ErrInvalidInput}
	}

	if in.PaymentType == PaymentDifferentiated {
		return calculateDifferentiated(in), nil
	}

	payment := AnnuityPayment(in.Principal, in.AnnualRate, in.TermMonths)
	total := payment.Mul(decimal.NewFromInt(int64(in.TermMonths)))
	return &Calculation{
		PaymentType:    PaymentAnnuity,
		MonthlyPayment: payment,
		FirstPayment:   payment,
		LastPayment:    payment,
		TotalPaid:      total,
		Overpayment:    total.Sub(in.Principal),
	}, nil
}

func calculateDifferentiated(in CalcInput) *Calculation {
	i := monthlyRate(in.AnnualRate)
	part := generic.RoundMoney(in.Principal.Div(decimal.NewFromInt(int64(in.TermMonths))))

	remaining := in.Principal
	total := decimal.Zero
	var first, last decimal.Decimal
	for k := 0; k < in.TermMonths; k++ {
		principal := part
		if k == in.TermMonths-1 || principal.GreaterThan(remaining) {
			principal = remaining
		}
		payment := principal.Add(generic.RoundMoney(remaining.Mul(i)))
		if k == 0 {
			first = payment
		}
		last = payment
		total = total.Add(payment)
		remaining = remaining.Sub(principal)
	}

	return &Calculation{
		PaymentType:    PaymentDifferentiated,
		MonthlyPayment: first,
		PrincipalPart:  part,
		FirstPayment:   first,
		LastPayment:    last,
		TotalPaid:      total,
		Overpayment:    total.Sub(in.Principal),
	}
}

// AnnuityPayment is the level payment that amortizes principal over n months.
func AnnuityPayment(principal, annualRate decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return generic.RoundMoney(principal)
	}
	i := monthlyRate(annualRate)
	if i.IsZero() {
		return generic.RoundMoney(principal.Div(decimal.NewFromInt(int64(n))))
	}
	k := powInt(decimal.NewFromInt(1).Add(i), n)
	payment := principal.Mul(i).Mul(k).DivRound(k.Sub(decimal.NewFromInt(1)), powPrecision)
	return generic.RoundMoney(payment)
}

// monthlyRate converts a percentage per year to a fraction per month.
func monthlyRate(annualRate decimal.Decimal) decimal.Decimal {
	return annualRate.DivRound(hundred.Mul(monthsPerYear), powPrecision)
}

// powInt raises base to a non-negative integer power by squaring.
func powInt(base decimal.Decimal, n int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base).Round(powPrecision)
		}
		base = base.Mul(base).Round(powPrecision)
		n >>= 1
	}
	return result
}
