/*
projection.go - Cached folds over event streams

PURPOSE:
  A projection is what a stream looks like after replaying all of its
  events. Computing it can be expensive (the loan fold runs a full
  schedule simulation), so results are cached by (stream, version).

KEY INSIGHT:
  The version IS the cache key. A projection at version N is correct
  forever, so there is nothing to invalidate: a new event moves the head
  to N+1 and the next read misses the cache and rebuilds.

LOOKUP ORDER:
  1. In-process copy of the latest projection per stream
  2. SnapshotStore (survives restarts)
  3. Replay all events through Fold, then write a snapshot

CONCURRENT REBUILDS:
  Rebuilds for the same (stream, version) are collapsed with singleflight,
  so a burst of reads after a commit simulates the schedule once.

EXAMPLE:
  projector := generic.NewProjector(ledger, snapshots, foldLoan)
  proj, err := projector.Project(ctx, "loan-123")
  fmt.Println(proj.Version, proj.Value.Schedule.PayoffDate())

SEE ALSO:
  - snapshot.go: Snapshot persistence
  - loan/service.go: Uses the projector for every read
*/
package generic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// PROJECTOR - Folds streams into T and caches by version
// =============================================================================

// FoldFunc replays a stream's events (ordered by version) into a value.
type FoldFunc[T any] func(ctx context.Context, events []Event) (T, error)

// Projection is a folded stream at a given version.
type Projection[T any] struct {
	StreamID  StreamID
	Version   int64
	Value     T
	FromCache bool
}

// Projector caches Fold results. T must round-trip through encoding/json
// when a SnapshotStore is configured.
type Projector[T any] struct {
	Ledger    Ledger
	Snapshots SnapshotStore // optional
	Fold      FoldFunc[T]
	Log       *zerolog.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	latest map[StreamID]Projection[T]
}

func NewProjector[T any](ledger Ledger, snapshots SnapshotStore, fold FoldFunc[T]) *Projector[T] {
	return &Projector[T]{
		Ledger:    ledger,
		Snapshots: snapshots,
		Fold:      fold,
		latest:    make(map[StreamID]Projection[T]),
	}
}

// Project returns the projection of the stream at its current head.
func (p *Projector[T]) Project(ctx context.Context, stream StreamID) (Projection[T], error) {
	version, err := p.Ledger.Version(ctx, stream)
	if err != nil {
		return Projection[T]{}, err
	}
	if version == 0 {
		return Projection[T]{}, ErrStreamNotFound
	}

	if cached, ok := p.cached(stream, version); ok {
		return cached, nil
	}

	key := fmt.Sprintf("%s@%d", stream, version)
	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.load(ctx, stream, version)
	})
	if err != nil {
		return Projection[T]{}, err
	}
	return v.(Projection[T]), nil
}

// Forget drops the in-process copy of a stream. Snapshots are untouched.
func (p *Projector[T]) Forget(stream StreamID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.latest, stream)
}

// ForgetAll drops every in-process copy, for use after the store is wiped.
func (p *Projector[T]) ForgetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = make(map[StreamID]Projection[T])
}

func (p *Projector[T]) cached(stream StreamID, version int64) (Projection[T], bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	proj, ok := p.latest[stream]
	if !ok || proj.Version != version {
		return Projection[T]{}, false
	}
	proj.FromCache = true
	return proj, true
}

func (p *Projector[T]) remember(proj Projection[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.latest[proj.StreamID]; ok && current.Version > proj.Version {
		return
	}
	proj.FromCache = false
	p.latest[proj.StreamID] = proj
}

func (p *Projector[T]) load(ctx context.Context, stream StreamID, version int64) (Projection[T], error) {
	if p.Snapshots != nil {
		snap, err := p.Snapshots.LatestSnapshot(ctx, stream)
		switch {
		case err == nil && snap.Version == version:
			var value T
			uerr := json.Unmarshal(snap.Data, &value)
			if uerr == nil {
				proj := Projection[T]{StreamID: stream, Version: version, Value: value}
				p.remember(proj)
				proj.FromCache = true
				return proj, nil
			}
			p.warn(uerr, stream, "discarding unreadable snapshot")
		case err != nil && !errors.Is(err, ErrSnapshotNotFound):
			return Projection[T]{}, err
		}
	}

	events, err := p.Ledger.Events(ctx, stream)
	if err != nil {
		return Projection[T]{}, err
	}
	if len(events) == 0 {
		return Projection[T]{}, ErrStreamNotFound
	}

	value, err := p.Fold(ctx, events)
	if err != nil {
		return Projection[T]{}, err
	}
	proj := Projection[T]{
		StreamID: stream,
		Version:  events[len(events)-1].Version,
		Value:    value,
	}

	if p.Snapshots != nil {
		if err := p.saveSnapshot(ctx, proj); err != nil {
			p.warn(err, stream, "snapshot write failed")
		}
	}
	p.remember(proj)
	return proj, nil
}

func (p *Projector[T]) saveSnapshot(ctx context.Context, proj Projection[T]) error {
	data, err := json.Marshal(proj.Value)
	if err != nil {
		return err
	}
	return p.Snapshots.SaveSnapshot(ctx, Snapshot{
		StreamID: proj.StreamID,
		Version:  proj.Version,
		Data:     data,
		TakenAt:  time.Now().UTC(),
	})
}

func (p *Projector[T]) warn(err error, stream StreamID, msg string) {
	if p.Log == nil {
		return
	}
	p.Log.Warn().Err(err).Str("stream_id", string(stream)).Msg(msg)
}
