/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication that are not already
  served straight from the loan package. Loan summaries, schedule pages,
  committed events and refinance results carry their own JSON tags and
  are written as-is.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types returned to clients

TYPES:
  Loans:
    CreateLoanRequest (factory.LoanJSON), CreateLoanDTO, LoanListDTO

  Events:
    CommitRequest, EventsDTO, PreviewRequest, PreviewDTO

  Tools:
    CalculatorRequest, CalculatorDTO, RefinanceRequest, TipsDTO,
    OptimizeRequest

  Actual payments:
    ActualPaymentRequest

  Demo:
    DemoDTO, LoadDemoRequest

VALIDATION:
  DTOs are pure data carriers. Parsing goes through factory.LoanFactory,
  validation through the loan package.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/loan.go: LoanJSON and EventJSON
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/loan"
)

// PreviewRows is how many scenario rows a preview returns.
const PreviewRows = 24

// =============================================================================
// LOANS
// =============================================================================

// CreateLoanRequest is the loan definition accepted by POST /api/loans.
// Events in the body are committed right after the loan is created.
type CreateLoanRequest = factory.LoanJSON

type CreateLoanDTO struct {
	LoanID  generic.StreamID  `json:"loan_id"`
	Created bool              `json:"created"`
	Summary *loan.LoanSummary `json:"summary"`
}

type LoanListDTO struct {
	Loans []loan.LoanSummary `json:"loans"`
	Total int                `json:"total"`
}

// =============================================================================
// EVENTS
// =============================================================================

// CommitRequest is the body of the three commit endpoints. The event type
// comes from the route, so a "type" field in the body is ignored.
type CommitRequest struct {
	factory.EventJSON
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
	// IdempotencyKey is used when the Idempotency-Key header is absent.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type EventsDTO struct {
	LoanID generic.StreamID      `json:"loan_id"`
	Events []loan.CommittedEvent `json:"events"`
}

type PreviewRequest struct {
	Events []factory.EventJSON `json:"events"`
}

type PreviewDTO struct {
	LoanID          generic.StreamID     `json:"loan_id"`
	Version         int64                `json:"version"`
	InterestSaving  decimal.Decimal      `json:"interest_saving"`
	MonthsDiff      int                  `json:"months_diff"`
	MonthlyPayment  decimal.Decimal      `json:"monthly_payment"`
	PayoffDate      generic.TimePoint    `json:"payoff_date"`
	BaseSummary     loan.ScheduleSummary `json:"base_summary"`
	ScenarioSummary loan.ScheduleSummary `json:"scenario_summary"`
	SchedulePreview loan.Schedule        `json:"schedule_preview"`
}

func toPreviewDTO(p *loan.ScenarioPreview) PreviewDTO {
	rows := p.Schedule
	if len(rows) > PreviewRows {
		rows = rows[:PreviewRows]
	}
	return PreviewDTO{
		LoanID:          p.LoanID,
		Version:         p.Version,
		InterestSaving:  p.InterestSaving,
		MonthsDiff:      p.MonthsDiff,
		MonthlyPayment:  p.MonthlyPayment,
		PayoffDate:      p.PayoffDate,
		BaseSummary:     p.BaseSummary,
		ScenarioSummary: p.ScenarioSummary,
		SchedulePreview: rows,
	}
}

// =============================================================================
// TOOLS
// =============================================================================

// CalculatorRequest describes a loan that is simulated but never stored.
// Name is optional here.
type CalculatorRequest struct {
	factory.LoanJSON
	IncludeSchedule bool `json:"include_schedule,omitempty"`
}

type CalculatorDTO struct {
	PaymentType    loan.PaymentType  `json:"payment_type"`
	MonthlyPayment decimal.Decimal   `json:"monthly_payment"`
	FirstPayment   decimal.Decimal   `json:"first_payment"`
	LastPayment    decimal.Decimal   `json:"last_payment"`
	TotalPaid      decimal.Decimal   `json:"total_paid"`
	Overpayment    decimal.Decimal   `json:"overpayment"`
	PayoffDate     generic.TimePoint `json:"payoff_date"`
	PaymentsCount  int               `json:"payments_count"`
	Schedule       loan.Schedule     `json:"schedule,omitempty"`
}

func toCalculatorDTO(l loan.Loan, s loan.Schedule, withSchedule bool) CalculatorDTO {
	dto := CalculatorDTO{
		PaymentType:    l.PaymentType,
		MonthlyPayment: s.FirstRegularPayment(),
		TotalPaid:      s.TotalPaid(),
		Overpayment:    s.TotalInterest(),
		PayoffDate:     s.PayoffDate(),
		PaymentsCount:  len(s),
	}
	if len(s) > 0 {
		dto.FirstPayment = s[0].Payment
		dto.LastPayment = s[len(s)-1].Payment
	}
	if withSchedule {
		dto.Schedule = s
	}
	return dto
}

type RefinanceRequest struct {
	NewAnnualRate decimal.Decimal `json:"new_annual_rate"`
	NewTermMonths int             `json:"new_term_months,omitempty"`
	Cost          decimal.Decimal `json:"refinance_cost"`
}

type TipsDTO struct {
	LoanID generic.StreamID `json:"loan_id"`
	Tips   []loan.Tip       `json:"tips"`
}

type OptimizeRequest = loan.OptimizeInput

// =============================================================================
// ACTUAL PAYMENTS
// =============================================================================

// ActualPaymentRequest accepts the payment date as either "date" or
// "payment_date"; payment_date wins when both are sent.
type ActualPaymentRequest struct {
	Date          generic.TimePoint `json:"date"`
	PaymentDate   generic.TimePoint `json:"payment_date"`
	Amount        decimal.Decimal   `json:"amount"`
	PrincipalPaid decimal.Decimal   `json:"principal_paid"`
	InterestPaid  decimal.Decimal   `json:"interest_paid"`
	Note          string            `json:"note,omitempty"`

	ExpectedVersion *int64 `json:"expected_version,omitempty"`
	// IdempotencyKey is used when the Idempotency-Key header is absent.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (req ActualPaymentRequest) payment() loan.ActualPayment {
	date := req.PaymentDate
	if date.IsZero() {
		date = req.Date
	}
	return loan.ActualPayment{
		Date:          date,
		Amount:        req.Amount,
		PrincipalPaid: req.PrincipalPaid,
		InterestPaid:  req.InterestPaid,
		Note:          req.Note,
	}
}

// =============================================================================
// DEMO
// =============================================================================

type DemoDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadDemoRequest struct {
	DemoID string `json:"demo_id"`
	// Reset clears every stored loan first.
	Reset bool `json:"reset,omitempty"`
}

type LoadDemoDTO struct {
	DemoID  string             `json:"demo_id"`
	LoanIDs []generic.StreamID `json:"loan_ids"`
}

type HealthDTO struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}
