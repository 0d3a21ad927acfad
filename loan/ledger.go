/*
ledger.go - Loan events on top of the generic ledger

PURPOSE:
  Maps loan-level facts to generic.Event and back, and folds a loan stream
  into its projected State.

STREAM LAYOUT:
  version 1     loan_created   payload: Loan
  version 2..N  extra_payment  payload: ExtraPayment
                rate_change    payload: RateChange
                holiday        payload: Holiday
                actual_payment payload: ActualPayment
                loan_archived  payload: {}

  The stream ID is the loan ID. actual_payment records what was really
  paid; it never changes the schedule.

SEE ALSO:
  - generic/ledger.go: Versioning and idempotency
  - generic/projection.go: Caches Fold results by version
*/
package loan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/loan-engine/generic"
)

const (
	TypeLoanCreated  generic.EventType = "loan_created"
	TypeExtraPayment generic.EventType = "extra_payment"
	TypeRateChange   generic.EventType = "rate_change"
	TypeHoliday      generic.EventType = "holiday"
	TypeLoanArchived generic.EventType = "loan_archived"

	TypeActualPayment generic.EventType = "actual_payment"
)

// CommittedEvent is a scenario event that made it into the log.
type CommittedEvent struct {
	ID        generic.EventID `json:"id"`
	Version   int64           `json:"version"`
	Event     Event           `json:"event"`
	CreatedBy string          `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// State is the projection of a loan stream.
type State struct {
	Loan        Loan              `json:"loan"`
	Events      []CommittedEvent  `json:"events"`
	Schedule    Schedule          `json:"schedule"`
	Payments    []RecordedPayment `json:"payments,omitempty"`
	Archived    bool              `json:"archived"`
	Fingerprint string            `json:"fingerprint"`
}

// ScenarioEvents returns the committed events in log order.
func (s State) ScenarioEvents() []Event {
	events := make([]Event, len(s.Events))
	for i, ce := range s.Events {
		events[i] = ce.Event
	}
	return events
}

// =============================================================================
// ENCODING
// =============================================================================

func encodeLoan(l Loan) (generic.Event, error) {
	payload, err := json.Marshal(l)
	if err != nil {
		return generic.Event{}, err
	}
	return generic.Event{
		StreamID:    l.ID,
		Type:        TypeLoanCreated,
		EffectiveAt: l.FirstPaymentDate,
		Payload:     payload,
	}, nil
}

func encodeEvent(stream generic.StreamID, e Event) (generic.Event, error) {
	var (
		payload any
		typ     generic.EventType
	)
	switch e.Kind {
	case EventExtraPayment:
		payload, typ = e.ExtraPayment, TypeExtraPayment
	case EventRateChange:
		payload, typ = e.RateChange, TypeRateChange
	case EventHoliday:
		payload, typ = e.Holiday, TypeHoliday
	default:
		return generic.Event{}, &InputValidationError{Field: "type", Reason: fmt.Sprintf("unknown event kind %q", e.Kind), Err: ErrInvalidInput}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return generic.Event{}, err
	}
	return generic.Event{
		StreamID:    stream,
		Type:        typ,
		EffectiveAt: e.Date(),
		Payload:     data,
	}, nil
}

func decodeEvent(ev generic.Event) (Event, error) {
	switch ev.Type {
	case TypeExtraPayment:
		var x ExtraPayment
		if err := json.Unmarshal(ev.Payload, &x); err != nil {
			return Event{}, err
		}
		return Event{Kind: EventExtraPayment, ExtraPayment: &x}, nil
	case TypeRateChange:
		var r RateChange
		if err := json.Unmarshal(ev.Payload, &r); err != nil {
			return Event{}, err
		}
		return Event{Kind: EventRateChange, RateChange: &r}, nil
	case TypeHoliday:
		var h Holiday
		if err := json.Unmarshal(ev.Payload, &h); err != nil {
			return Event{}, err
		}
		return Event{Kind: EventHoliday, Holiday: &h}, nil
	}
	return Event{}, fmt.Errorf("unexpected event type %q", ev.Type)
}

// =============================================================================
// FOLD
// =============================================================================

// Fold rebuilds a loan's State from its stream.
func Fold(ctx context.Context, events []generic.Event) (State, error) {
	if len(events) == 0 {
		return State{}, generic.ErrStreamNotFound
	}
	head := events[0]
	if head.Type != TypeLoanCreated {
		return State{}, fmt.Errorf("stream %s starts with %q, want %q", head.StreamID, head.Type, TypeLoanCreated)
	}

	var state State
	if err := json.Unmarshal(head.Payload, &state.Loan); err != nil {
		return State{}, fmt.Errorf("decode loan %s: %w", head.StreamID, err)
	}
	state.Loan.ID = head.StreamID

	hash := sha256.New()
	hash.Write(head.Payload)

	for _, ev := range events[1:] {
		hash.Write([]byte(ev.Type))
		hash.Write(ev.Payload)
		switch ev.Type {
		case TypeLoanArchived:
			state.Archived = true
			continue
		case TypeActualPayment:
			var p ActualPayment
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return State{}, fmt.Errorf("decode %s v%d: %w", ev.StreamID, ev.Version, err)
			}
			state.Payments = append(state.Payments, RecordedPayment{
				ID:            ev.ID,
				Version:       ev.Version,
				ActualPayment: p,
				CreatedBy:     ev.CreatedBy,
				CreatedAt:     ev.CreatedAt,
			})
			continue
		}
		domain, err := decodeEvent(ev)
		if err != nil {
			return State{}, fmt.Errorf("decode %s v%d: %w", ev.StreamID, ev.Version, err)
		}
		state.Events = append(state.Events, CommittedEvent{
			ID:        ev.ID,
			Version:   ev.Version,
			Event:     domain,
			CreatedBy: ev.CreatedBy,
			CreatedAt: ev.CreatedAt,
		})
	}
	state.Fingerprint = hex.EncodeToString(hash.Sum(nil))[:16]

	schedule, err := simulate(ctx, state.Loan, state.ScenarioEvents())
	if err != nil {
		return State{}, err
	}
	state.Schedule = schedule
	return state, nil
}

// =============================================================================
// LOAN LEDGER - Typed writes
// =============================================================================

// CommitOptions carries the request-level fields of a write.
type CommitOptions struct {
	IdempotencyKey string
	// ExpectedVersion, when set, must match the stream head.
	ExpectedVersion *int64
	CreatedBy       string
}

func (o CommitOptions) expected(fallback int64) int64 {
	if o.ExpectedVersion != nil {
		return *o.ExpectedVersion
	}
	return fallback
}

// Ledger writes loan events to a generic ledger.
type Ledger struct {
	generic.Ledger
}

func NewLedger(l generic.Ledger) *Ledger {
	return &Ledger{Ledger: l}
}

// Create appends the loan_created event. The loan must be validated.
func (l *Ledger) Create(ctx context.Context, loan Loan, opts CommitOptions) (generic.Event, bool, error) {
	ev, err := encodeLoan(loan)
	if err != nil {
		return generic.Event{}, false, err
	}
	ev.IdempotencyKey = opts.IdempotencyKey
	ev.CreatedBy = opts.CreatedBy
	return l.Append(ctx, ev, 0)
}

// Record appends a scenario event on top of expectedVersion.
func (l *Ledger) Record(ctx context.Context, stream generic.StreamID, e Event, expectedVersion int64, opts CommitOptions) (generic.Event, bool, error) {
	ev, err := encodeEvent(stream, e)
	if err != nil {
		return generic.Event{}, false, err
	}
	ev.IdempotencyKey = opts.IdempotencyKey
	ev.CreatedBy = opts.CreatedBy
	return l.Append(ctx, ev, expectedVersion)
}

// RecordPayment appends an actual_payment. The payment must be validated.
func (l *Ledger) RecordPayment(ctx context.Context, stream generic.StreamID, p ActualPayment, expectedVersion int64, opts CommitOptions) (generic.Event, bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return generic.Event{}, false, err
	}
	return l.Append(ctx, generic.Event{
		StreamID:       stream,
		Type:           TypeActualPayment,
		EffectiveAt:    p.Date,
		Payload:        data,
		IdempotencyKey: opts.IdempotencyKey,
		CreatedBy:      opts.CreatedBy,
	}, expectedVersion)
}

// Archive appends loan_archived.
func (l *Ledger) Archive(ctx context.Context, stream generic.StreamID, effective generic.TimePoint, expectedVersion int64, opts CommitOptions) (generic.Event, bool, error) {
	return l.Append(ctx, generic.Event{
		StreamID:       stream,
		Type:           TypeLoanArchived,
		EffectiveAt:    effective,
		Payload:        json.RawMessage(`{}`),
		IdempotencyKey: opts.IdempotencyKey,
		CreatedBy:      opts.CreatedBy,
	}, expectedVersion)
}
