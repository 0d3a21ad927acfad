/*
service.go - Loan operations

PURPOSE:
  The entry point for everything the HTTP layer does with loans. Reads go
  through the projector (cached by stream version); writes validate against
  the projection they were computed from and append with that version as
  the expected head, so a concurrent write turns into a conflict instead of
  an event that was never validated against the real state.

OPERATIONS:
  CreateLoan (+ CreateLoanWithEvents), ListLoans, GetLoan,
  GetLoanSummary, GetSchedule,
  ListEvents, PreviewScenario, CommitEvent (+ CommitExtraPayment),
  ArchiveLoan, GetTips (tips.go), Refinance (refinance.go),
  ExportScheduleCSV (export.go), Optimize (optimize.go),
  RecordActualPayment + ListActualPayments (payments.go)

SEE ALSO:
  - ledger.go: Encoding and Fold
  - scenario.go: Preview and event validation
  - api/handlers.go: HTTP mapping
*/
package loan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/warp/loan-engine/generic"
)

const (
	MinPageSize     = 10
	MaxPageSize     = 120
	DefaultPageSize = 60

	// listConcurrency bounds parallel projections in ListLoans.
	listConcurrency = 8
)

// loanNamespace derives deterministic loan IDs from idempotency keys.
var loanNamespace = uuid.MustParse("6f1c2b8e-5d0a-4b7e-9a43-2c1e8f0d7a55")

type Service struct {
	ledger    *Ledger
	projector *generic.Projector[State]
	now       func() time.Time
	log       zerolog.Logger
}

type Option func(*Service)

// WithClock overrides time.Now; "today" for summaries derives from it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService wires a ledger and projector over the store. snapshots may be
// nil to disable persistent projection caching.
func NewService(store generic.Store, snapshots generic.SnapshotStore, opts ...Option) *Service {
	base := generic.NewLedger(store)
	s := &Service{
		ledger: NewLedger(base),
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	base.Now = s.now
	s.projector = generic.NewProjector[State](base, snapshots, Fold)
	s.projector.Log = &s.log
	return s
}

// ForgetProjections empties the in-process projection cache. Call it after
// the store has been reset underneath the service.
func (s *Service) ForgetProjections() {
	s.projector.ForgetAll()
}

func (s *Service) today() generic.TimePoint {
	return generic.FromTime(s.now().UTC())
}

// =============================================================================
// READS
// =============================================================================

// GetLoan returns the projected state of a loan.
func (s *Service) GetLoan(ctx context.Context, id generic.StreamID) (generic.Projection[State], error) {
	proj, err := s.projector.Project(ctx, id)
	if errors.Is(err, generic.ErrStreamNotFound) {
		return proj, ErrLoanNotFound
	}
	return proj, err
}

func (s *Service) GetLoanSummary(ctx context.Context, id generic.StreamID) (*LoanSummary, error) {
	proj, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := s.summarize(proj)
	return &summary, nil
}

func (s *Service) summarize(proj generic.Projection[State]) LoanSummary {
	summary := Summarize(proj.Value.Loan, proj.Value.Schedule, s.today())
	summary.Archived = proj.Value.Archived
	summary.Version = proj.Version
	return summary
}

// ListLoans summarizes every loan, oldest first.
func (s *Service) ListLoans(ctx context.Context, includeArchived bool) ([]LoanSummary, error) {
	ids, err := s.ledger.Streams(ctx)
	if err != nil {
		return nil, err
	}

	projections := make([]generic.Projection[State], len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			proj, err := s.projector.Project(gctx, id)
			if err != nil {
				return err
			}
			projections[i] = proj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(projections, func(i, j int) bool {
		return projections[i].Value.Loan.CreatedAt.Before(projections[j].Value.Loan.CreatedAt)
	})
	result := make([]LoanSummary, 0, len(projections))
	for _, proj := range projections {
		if proj.Value.Archived && !includeArchived {
			continue
		}
		result = append(result, s.summarize(proj))
	}
	return result, nil
}

type SchedulePage struct {
	LoanID   generic.StreamID `json:"loan_id"`
	Version  int64            `json:"version"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    Schedule         `json:"items"`
}

func (s *Service) GetSchedule(ctx context.Context, id generic.StreamID, page, pageSize int) (*SchedulePage, error) {
	if page < 1 {
		return nil, &InputValidationError{Field: "page", Reason: "must be >= 1", Err: ErrInvalidInput}
	}
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		return nil, &InputValidationError{Field: "page_size", Reason: "must be between 10 and 120", Err: ErrInvalidInput}
	}
	proj, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SchedulePage{
		LoanID:   id,
		Version:  proj.Version,
		Total:    len(proj.Value.Schedule),
		Page:     page,
		PageSize: pageSize,
		Items:    proj.Value.Schedule.Page(page, pageSize),
	}, nil
}

func (s *Service) ListEvents(ctx context.Context, id generic.StreamID) ([]CommittedEvent, error) {
	proj, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	return proj.Value.Events, nil
}

// =============================================================================
// PREVIEW
// =============================================================================

type ScenarioPreview struct {
	*ScenarioResult
	LoanID  generic.StreamID `json:"loan_id"`
	Version int64            `json:"version"`
}

// PreviewScenario runs hypothetical events against the committed loan.
// Nothing is written.
func (s *Service) PreviewScenario(ctx context.Context, id generic.StreamID, events []Event) (*ScenarioPreview, error) {
	proj, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := PreviewScenario(ctx, proj.Value.Loan, proj.Value.ScenarioEvents(), events)
	if err != nil {
		return nil, err
	}
	return &ScenarioPreview{ScenarioResult: result, LoanID: id, Version: proj.Version}, nil
}

// =============================================================================
// WRITES
// =============================================================================

type CommitResult struct {
	LoanID  generic.StreamID `json:"loan_id"`
	EventID generic.EventID  `json:"event_id"`
	Version int64            `json:"version"`
	Created bool             `json:"created"`
}

// CreateLoan validates and records a new loan. With an idempotency key the
// loan ID is derived from (CreatedBy, key), so a retried create returns the
// first loan.
func (s *Service) CreateLoan(ctx context.Context, l Loan, opts CommitOptions) (Loan, bool, error) {
	l = l.WithDefaults()
	if err := l.Validate(); err != nil {
		return Loan{}, false, err
	}
	if opts.IdempotencyKey != "" {
		l.ID = generic.StreamID(uuid.NewSHA1(loanNamespace, []byte(opts.CreatedBy+"/"+opts.IdempotencyKey)).String())
	} else {
		l.ID = generic.NewStreamID()
	}
	l.CreatedAt = s.now().UTC()

	stored, created, err := s.ledger.Create(ctx, l, opts)
	if err != nil {
		return Loan{}, false, err
	}
	if !created {
		proj, err := s.GetLoan(ctx, stored.StreamID)
		if err != nil {
			return Loan{}, false, err
		}
		return proj.Value.Loan, false, nil
	}

	s.log.Info().
		Str("loan_id", string(l.ID)).
		Str("payment_type", string(l.PaymentType)).
		Int("term_months", l.TermMonths).
		Msg("loan created")
	return l, true, nil
}

// CreateLoanWithEvents creates a loan that starts with scenario events
// already committed. The whole set is checked against the fresh schedule
// before anything is written, so a rejected event leaves no loan behind.
// Events are appended in date order; with an idempotency key each one gets
// "<key>/events/<i>", so a retry resumes where an interrupted create stopped.
func (s *Service) CreateLoanWithEvents(ctx context.Context, l Loan, events []Event, opts CommitOptions) (Loan, bool, error) {
	l = l.WithDefaults()
	if err := l.Validate(); err != nil {
		return Loan{}, false, err
	}
	if len(events) > 0 {
		if err := ValidateEvents(ctx, l, nil, events); err != nil {
			return Loan{}, false, err
		}
	}

	created, isNew, err := s.CreateLoan(ctx, l, opts)
	if err != nil {
		return Loan{}, false, err
	}
	for _, i := range dateOrder(events) {
		eventOpts := CommitOptions{CreatedBy: opts.CreatedBy}
		if opts.IdempotencyKey != "" {
			eventOpts.IdempotencyKey = fmt.Sprintf("%s/events/%d", opts.IdempotencyKey, i)
		}
		if _, err := s.CommitEvent(ctx, created.ID, events[i], eventOpts); err != nil {
			return Loan{}, false, fmt.Errorf("events[%d]: %w", i, err)
		}
	}
	return created, isNew, nil
}

// CommitEvent validates an event against the current projection and appends
// it. A replayed idempotency key returns the original event.
func (s *Service) CommitEvent(ctx context.Context, id generic.StreamID, e Event, opts CommitOptions) (*CommitResult, error) {
	if err := e.Validate(); err != nil {
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
	if err := checkEvent(proj.Value.Schedule, proj.Value.Loan.FirstPaymentDate, e); err != nil {
		return nil, err
	}

	stored, created, err := s.ledger.Record(ctx, id, e, opts.expected(proj.Version), opts)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("loan_id", string(id)).
		Str("event", string(e.Kind)).
		Int64("version", stored.Version).
		Bool("created", created).
		Msg("event committed")
	return &CommitResult{LoanID: id, EventID: stored.ID, Version: stored.Version, Created: created}, nil
}

func (s *Service) CommitExtraPayment(ctx context.Context, id generic.StreamID, x ExtraPayment, opts CommitOptions) (*CommitResult, error) {
	return s.CommitEvent(ctx, id, NewExtraPayment(x.Date, x.Amount, x.Mode, x.Strategy), opts)
}

// ArchiveLoan hides a loan from the default listing. Archiving twice is a
// no-op that reports created=false.
func (s *Service) ArchiveLoan(ctx context.Context, id generic.StreamID, opts CommitOptions) (*CommitResult, error) {
	if replay, err := s.replay(ctx, id, opts.IdempotencyKey); err != nil || replay != nil {
		return replay, err
	}
	proj, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if proj.Value.Archived {
		return &CommitResult{LoanID: id, Version: proj.Version, Created: false}, nil
	}
	stored, created, err := s.ledger.Archive(ctx, id, s.today(), opts.expected(proj.Version), opts)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("loan_id", string(id)).Int64("version", stored.Version).Msg("loan archived")
	return &CommitResult{LoanID: id, EventID: stored.ID, Version: stored.Version, Created: created}, nil
}

func (s *Service) replay(ctx context.Context, id generic.StreamID, key string) (*CommitResult, error) {
	if key == "" {
		return nil, nil
	}
	existing, err := s.ledger.Lookup(ctx, id, key)
	if err != nil || existing == nil {
		return nil, err
	}
	return &CommitResult{LoanID: id, EventID: existing.ID, Version: existing.Version, Created: false}, nil
}
