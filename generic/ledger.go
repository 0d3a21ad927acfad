/*
ledger.go - Append-only event log

PURPOSE:
  The Ledger is the immutable source of truth for every stream. State is
  always computed by replaying events - there's no separate "current"
  record that can get out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, events cannot be modified
  3. MONOTONIC: Versions within a stream are 1, 2, 3, ... without gaps
  4. IDEMPOTENT: Same idempotency key = same event (no duplicates)

OPTIMISTIC CONCURRENCY:
  Callers that read a projection at version N and want to write on top of
  it pass expectedVersion = N. If somebody else appended in between, the
  write fails with *ConcurrencyConflictError and nothing is stored.
  Passing AnyVersion skips the check; the store still refuses two events
  with the same version.

IDEMPOTENT REPLAY:
  A retried write carrying an already-used idempotency key returns the
  original event with created=false. The version check is skipped for
  replays so a client retry after a timeout sees success, not a conflict.

SEE ALSO:
  - store.go: Low-level persistence interface
  - loan/ledger.go: Domain-specific wrapper with typed payloads
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// LEDGER - Append-only event log
// =============================================================================

// Ledger is the source of truth for all streams.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete. EVER.
//   - Immutable: Once written, events cannot be modified.
//   - Versioned: Each append moves the stream head by exactly one.
type Ledger interface {
	// Append adds an event and returns the stored copy. created is false when
	// the idempotency key was already used.
	Append(ctx context.Context, ev Event, expectedVersion int64) (stored Event, created bool, err error)

	// Events returns all events of a stream, ordered by version. Read-only.
	Events(ctx context.Context, stream StreamID) ([]Event, error)

	// Version returns the current head of a stream.
	Version(ctx context.Context, stream StreamID) (int64, error)

	// Streams lists all known streams.
	Streams(ctx context.Context) ([]StreamID, error)

	// Lookup returns the event stored under an idempotency key, or nil.
	Lookup(ctx context.Context, stream StreamID, idempotencyKey string) (*Event, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
	Now   func() time.Time
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store, Now: time.Now}
}

func (l *DefaultLedger) Append(ctx context.Context, ev Event, expectedVersion int64) (Event, bool, error) {
	if ev.StreamID == "" {
		return Event{}, false, ErrEmptyStreamID
	}

	if ev.IdempotencyKey != "" {
		existing, err := l.Store.FindByIdempotencyKey(ctx, ev.StreamID, ev.IdempotencyKey)
		if err != nil {
			return Event{}, false, err
		}
		if existing != nil {
			return *existing, false, nil
		}
	}

	current, err := l.Store.Version(ctx, ev.StreamID)
	if err != nil {
		return Event{}, false, err
	}
	if expectedVersion >= 0 && expectedVersion != current {
		return Event{}, false, &ConcurrencyConflictError{
			StreamID: ev.StreamID,
			Expected: expectedVersion,
			Actual:   current,
		}
	}

	ev.Version = current + 1
	if ev.ID == "" {
		ev.ID = NewEventID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = l.Now().UTC()
	}

	if err := l.Store.Append(ctx, ev); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateIdempotencyKey):
			// Lost a race against a retry of the same request.
			existing, findErr := l.Store.FindByIdempotencyKey(ctx, ev.StreamID, ev.IdempotencyKey)
			if findErr != nil {
				return Event{}, false, findErr
			}
			if existing != nil {
				return *existing, false, nil
			}
			return Event{}, false, err
		case errors.Is(err, ErrConcurrentModification):
			actual, verr := l.Store.Version(ctx, ev.StreamID)
			if verr != nil {
				actual = current + 1
			}
			return Event{}, false, &ConcurrencyConflictError{
				StreamID: ev.StreamID,
				Expected: current,
				Actual:   actual,
			}
		default:
			return Event{}, false, fmt.Errorf("append %s v%d: %w", ev.StreamID, ev.Version, err)
		}
	}
	return ev, true, nil
}

func (l *DefaultLedger) Events(ctx context.Context, stream StreamID) ([]Event, error) {
	return l.Store.Load(ctx, stream)
}

func (l *DefaultLedger) Version(ctx context.Context, stream StreamID) (int64, error) {
	return l.Store.Version(ctx, stream)
}

func (l *DefaultLedger) Streams(ctx context.Context) ([]StreamID, error) {
	return l.Store.Streams(ctx)
}

func (l *DefaultLedger) Lookup(ctx context.Context, stream StreamID, idempotencyKey string) (*Event, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	return l.Store.FindByIdempotencyKey(ctx, stream, idempotencyKey)
}
