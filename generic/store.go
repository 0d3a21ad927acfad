/*
store.go - Persistence interface for event streams and snapshots

PURPOSE:
  Defines the interface between the domain logic and the database.
  The Store handles persistence while maintaining append-only semantics.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:         Event persistence (append, load, version, idempotency lookup)
  SnapshotStore: Cached projections, see snapshot.go

APPEND-ONLY CONTRACT:
  The Store interface enforces append-only semantics:
  - Append(): Single event write
  - NO Update() or Delete() methods exist for events

VERSIONING:
  Each stream has a head version (0 when empty). Append only accepts an
  event whose Version is head+1. Two writers racing for the same slot
  cannot both win: the loser gets ErrConcurrentModification.

IDEMPOTENCY:
  An idempotency key is unique within its stream. A second Append with the
  same key fails with ErrDuplicateIdempotencyKey; the ledger then returns
  the stored event to the caller instead of an error.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
  - store/sqlite/sqlite.go: Concrete implementation
*/
package generic

import "context"

// =============================================================================
// STORE - Interface for event persistence (append-only)
// =============================================================================

// Store handles persistence of events.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// Append persists an event. ev.Version must be the stream head + 1.
	// This is the ONLY write operation.
	Append(ctx context.Context, ev Event) error

	// Load returns all events of a stream ordered by version.
	Load(ctx context.Context, stream StreamID) ([]Event, error)

	// Version returns the stream head (0 for an unknown stream).
	Version(ctx context.Context, stream StreamID) (int64, error)

	// FindByIdempotencyKey returns the event stored under key, or nil.
	FindByIdempotencyKey(ctx context.Context, stream StreamID, key string) (*Event, error)

	// Streams lists every stream that has at least one event.
	Streams(ctx context.Context) ([]StreamID, error)
}

// EventStore is a Store that can also cache projections.
// Both shipped implementations satisfy it.
type EventStore interface {
	Store
	SnapshotStore
}
