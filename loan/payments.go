package loan

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// ACTUAL PAYMENTS - What the borrower really paid
// =============================================================================

// splitTolerance absorbs the bank rounding the principal and interest shares
// by a cent each.
var splitTolerance = decimal.New(1, -2)

// ActualPayment is a payment as the bank booked it. The split into principal
// and interest is optional; together the shares never exceed the amount.
type ActualPayment struct {
	Date          generic.TimePoint `json:"payment_date"`
	Amount        decimal.Decimal   `json:"amount"`
	PrincipalPaid decimal.Decimal   `json:"principal_paid"`
	InterestPaid  decimal.Decimal   `json:"interest_paid"`
	Note          string            `json:"note,omitempty"`
}

func (p ActualPayment) Validate() error {
	if p.Date.IsZero() {
		return &InputValidationError{Field: "payment_date", Reason: "is required", Err: ErrInvalidInput}
	}
	if p.Amount.LessThan(splitTolerance) {
		return &AmountError{Amount: p.Amount, Limit: splitTolerance, Reason: "must be at least"}
	}
	if p.PrincipalPaid.IsNegative() {
		return &InputValidationError{Field: "principal_paid", Reason: "must be >= 0", Err: ErrInvalidInput}
	}
	if p.InterestPaid.IsNegative() {
		return &InputValidationError{Field: "interest_paid", Reason: "must be >= 0", Err: ErrInvalidInput}
	}
	if p.PrincipalPaid.Add(p.InterestPaid).GreaterThan(p.Amount.Add(splitTolerance)) {
		return &InputValidationError{Field: "principal_paid", Reason: "plus interest_paid must not exceed amount", Err: ErrInvalidInput}
	}
	return nil
}

// RecordedPayment is an ActualPayment that made it into the log.
type RecordedPayment struct {
	ID      generic.EventID `json:"payment_id"`
	Version int64           `json:"version"`
	ActualPayment
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ActualPaymentList struct {
	LoanID         generic.StreamID  `json:"loan_id"`
	Version        int64             `json:"version"`
	Items          []RecordedPayment `json:"items"`
	TotalAmount    decimal.Decimal   `json:"total_amount"`
	TotalPrincipal decimal.Decimal   `json:"total_principal"`
	TotalInterest  decimal.Decimal   `json:"total_interest"`
}

// RecordActualPayment appends a booked payment. With an idempotency key a
// retried request returns the first payment with Created=false.
func (s *Service) RecordActualPayment(ctx context.Context, id generic.StreamID, p ActualPayment, opts CommitOptions) (*CommitResult, error) {
	p.Amount = generic.RoundMoney(p.Amount)
	p.PrincipalPaid = generic.RoundMoney(p.PrincipalPaid)
	p.InterestPaid = generic.RoundMoney(p.InterestPaid)
	p.Note = strings.TrimSpace(p.Note)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if replay, err := s.replay(ctx, id, opts.IdempotencyKey); err != nil || replay != nil {
		return replay, err
	}

	proj, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if proj.Value.Archived {
		return nil, ErrLoanArchived
	}

	stored, created, err := s.ledger.RecordPayment(ctx, id, p, opts.expected(proj.Version), opts)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("loan_id", string(id)).
		Str("amount", p.Amount.StringFixed(2)).
		Int64("version", stored.Version).
		Bool("created", created).
		Msg("actual payment recorded")
	return &CommitResult{LoanID: id, EventID: stored.ID, Version: stored.Version, Created: created}, nil
}

// ListActualPayments returns the booked payments ordered by payment date,
// then by the order they were recorded in.
func (s *Service) ListActualPayments(ctx context.Context, id generic.StreamID) (*ActualPaymentList, error) {
	proj, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}

	items := make([]RecordedPayment, len(proj.Value.Payments))
	copy(items, proj.Value.Payments)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.Before(items[j].Date)
	})

	list := &ActualPaymentList{
		LoanID:         id,
		Version:        proj.Version,
		Items:          items,
		TotalAmount:    decimal.Zero,
		TotalPrincipal: decimal.Zero,
		TotalInterest:  decimal.Zero,
	}
	for _, p := range items {
		list.TotalAmount = list.TotalAmount.Add(p.Amount)
		list.TotalPrincipal = list.TotalPrincipal.Add(p.PrincipalPaid)
		list.TotalInterest = list.TotalInterest.Add(p.InterestPaid)
	}
	return list, nil
}
