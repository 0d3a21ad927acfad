/*
Package generic provides the event-sourcing core the loan engine runs on.

PURPOSE:
  This package contains domain-agnostic types and algorithms for keeping an
  append-only event log per stream and folding it into cached projections.
  The loan package plugs its own payloads and fold function into it; nothing
  here knows what a loan is.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: decimal rounding with banker's rounding to cents
  - Event: An immutable log entry with a per-stream monotonic version
  - StreamID/EventID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Events are never modified, state is a fold over them
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing streams and events
  4. Idempotency: Every write may carry a caller-chosen idempotency key

USAGE:
  ev := generic.Event{
      StreamID:       "loan-123",
      Type:           "extra_payment",
      EffectiveAt:    generic.MustParseDate("2025-03-15"),
      Payload:        payload,
      IdempotencyKey: "req-42",
  }
  stored, created, err := ledger.Append(ctx, ev, generic.AnyVersion)

SEE ALSO:
  - ledger.go: Append-only log with optimistic versioning
  - projection.go: Cached folds keyed by stream version
  - store.go: Persistence interface
*/
package generic

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point amounts with two decimal places
// =============================================================================

// MoneyPlaces is the number of fractional digits kept for money amounts.
const MoneyPlaces = 2

// RoundMoney rounds half-to-even to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(MoneyPlaces)
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// MinDecimal returns the smaller of two decimals.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StreamID string
type EventID string

func NewStreamID() StreamID { return StreamID(uuid.NewString()) }
func NewEventID() EventID   { return EventID(uuid.NewString()) }

// =============================================================================
// EVENT - Immutable entry in a stream
// =============================================================================

// EventType is chosen by the domain package ("loan_created", "holiday", ...).
type EventType string

// AnyVersion disables the optimistic version check on Append.
const AnyVersion int64 = -1

// Event is one entry of a stream. Version starts at 1 and increases by
// exactly one per appended event.
type Event struct {
	ID             EventID           `json:"id"`
	StreamID       StreamID          `json:"stream_id"`
	Version        int64             `json:"version"`
	Type           EventType         `json:"type"`
	EffectiveAt    TimePoint         `json:"effective_at"`
	Payload        json.RawMessage   `json:"payload"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`

	// Audit fields
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
