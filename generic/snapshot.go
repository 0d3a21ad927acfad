package generic

import (
	"context"
	"encoding/json"
	"time"
)

// =============================================================================
// SNAPSHOT - Frozen projection at a stream version
// =============================================================================

// Snapshot captures the folded state of a stream at a specific version.
// Used for:
//   - Fast reads (avoid replaying and re-simulating on every request)
//   - Audit trail (what the projection looked like at version N)
//
// A snapshot is never edited. When the stream moves, a new snapshot is
// written under the new version and the old one becomes stale.
type Snapshot struct {
	StreamID StreamID        `json:"stream_id"`
	Version  int64           `json:"version"`
	Data     json.RawMessage `json:"data"`
	TakenAt  time.Time       `json:"taken_at"`
}

// =============================================================================
// SNAPSHOT STORE - Persistence for snapshots
// =============================================================================

type SnapshotStore interface {
	// SaveSnapshot stores a snapshot. Saving the same (stream, version) twice
	// keeps the first copy.
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error

	// LatestSnapshot returns the highest-version snapshot of a stream or
	// ErrSnapshotNotFound.
	LatestSnapshot(ctx context.Context, stream StreamID) (*Snapshot, error)

	// PruneSnapshots keeps the newest `keep` snapshots per stream and deletes
	// the rest. Returns how many were removed.
	PruneSnapshots(ctx context.Context, keep int) (int64, error)
}
