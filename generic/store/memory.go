// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/loan-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.Store and generic.SnapshotStore.
type Memory struct {
	mu          sync.RWMutex
	events      map[generic.StreamID][]generic.Event
	idempotency map[idemKey]int // position in events[stream]
	snapshots   map[generic.StreamID][]generic.Snapshot
}

type idemKey struct {
	StreamID generic.StreamID
	Key      string
}

func NewMemory() *Memory {
	return &Memory{
		events:      make(map[generic.StreamID][]generic.Event),
		idempotency: make(map[idemKey]int),
		snapshots:   make(map[generic.StreamID][]generic.Snapshot),
	}
}

// Append adds a single event. Append-only.
func (m *Memory) Append(_ context.Context, ev generic.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stream := m.events[ev.StreamID]
	if ev.IdempotencyKey != "" {
		if _, ok := m.idempotency[idemKey{ev.StreamID, ev.IdempotencyKey}]; ok {
			return generic.ErrDuplicateIdempotencyKey
		}
	}
	if ev.Version != int64(len(stream))+1 {
		return generic.ErrConcurrentModification
	}

	m.events[ev.StreamID] = append(stream, cloneEvent(ev))
	if ev.IdempotencyKey != "" {
		m.idempotency[idemKey{ev.StreamID, ev.IdempotencyKey}] = len(stream)
	}
	return nil
}

func (m *Memory) Load(_ context.Context, stream generic.StreamID) ([]generic.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.events[stream]
	result := make([]generic.Event, len(src))
	for i, ev := range src {
		result[i] = cloneEvent(ev)
	}
	return result, nil
}

func (m *Memory) Version(_ context.Context, stream generic.StreamID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.events[stream])), nil
}

func (m *Memory) FindByIdempotencyKey(_ context.Context, stream generic.StreamID, key string) (*generic.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.idempotency[idemKey{stream, key}]
	if !ok {
		return nil, nil
	}
	ev := cloneEvent(m.events[stream][pos])
	return &ev, nil
}

func (m *Memory) Streams(_ context.Context) ([]generic.StreamID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.StreamID, 0, len(m.events))
	for id := range m.events {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (m *Memory) SaveSnapshot(_ context.Context, snap generic.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := m.snapshots[snap.StreamID]
	i := sort.Search(len(snaps), func(i int) bool { return snaps[i].Version >= snap.Version })
	if i < len(snaps) && snaps[i].Version == snap.Version {
		return nil
	}
	snap.Data = append([]byte(nil), snap.Data...)
	snaps = append(snaps, generic.Snapshot{})
	copy(snaps[i+1:], snaps[i:])
	snaps[i] = snap
	m.snapshots[snap.StreamID] = snaps
	return nil
}

func (m *Memory) LatestSnapshot(_ context.Context, stream generic.StreamID) (*generic.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.snapshots[stream]
	if len(snaps) == 0 {
		return nil, generic.ErrSnapshotNotFound
	}
	latest := snaps[len(snaps)-1]
	latest.Data = append([]byte(nil), latest.Data...)
	return &latest, nil
}

func (m *Memory) PruneSnapshots(_ context.Context, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if keep < 1 {
		keep = 1
	}
	var removed int64
	for stream, snaps := range m.snapshots {
		if len(snaps) <= keep {
			continue
		}
		drop := len(snaps) - keep
		removed += int64(drop)
		m.snapshots[stream] = append([]generic.Snapshot(nil), snaps[drop:]...)
	}
	return removed, nil
}

// SnapshotCount returns the number of stored snapshots across all streams.
func (m *Memory) SnapshotCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, snaps := range m.snapshots {
		n += len(snaps)
	}
	return n
}

func cloneEvent(ev generic.Event) generic.Event {
	ev.Payload = append([]byte(nil), ev.Payload...)
	if ev.Metadata != nil {
		md := make(map[string]string, len(ev.Metadata))
		for k, v := range ev.Metadata {
			md[k] = v
		}
		ev.Metadata = md
	}
	return ev
}
