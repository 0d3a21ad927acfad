package generic_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestLedger() (*generic.DefaultLedger, *store.Memory) {
	mem := store.NewMemory()
	return generic.NewLedger(mem), mem
}

func testEvent(stream, typ, key string) generic.Event {
	return generic.Event{
		StreamID:       generic.StreamID(stream),
		Type:           generic.EventType(typ),
		EffectiveAt:    generic.MustParseDate("2025-01-15"),
		Payload:        json.RawMessage(`{"n":1}`),
		IdempotencyKey: key,
	}
}

// =============================================================================
// VERSIONING
// =============================================================================

func TestLedger_Append_AssignsMonotonicVersions(t *testing.T) {
	// GIVEN: An empty stream
	// WHEN: Appending three events
	// THEN: They get versions 1, 2, 3 and the head is 3

	ctx := context.Background()
	ledger, _ := newTestLedger()

	for i := 1; i <= 3; i++ {
		ev, created, err := ledger.Append(ctx, testEvent("s-1", "e", ""), generic.AnyVersion)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(i), ev.Version)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.CreatedAt.IsZero())
	}

	head, err := ledger.Version(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), head)

	events, err := ledger.Events(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Version)
	}
}

func TestLedger_Append_StaleExpectedVersionConflicts(t *testing.T) {
	// GIVEN: A stream at version 2
	// WHEN: A writer that read version 1 tries to append
	// THEN: ConcurrencyConflictError, nothing is written

	ctx := context.Background()
	ledger, _ := newTestLedger()
	_, _, err := ledger.Append(ctx, testEvent("s-1", "e", ""), 0)
	require.NoError(t, err)
	_, _, err = ledger.Append(ctx, testEvent("s-1", "e", ""), 1)
	require.NoError(t, err)

	_, _, err = ledger.Append(ctx, testEvent("s-1", "e", ""), 1)

	var conflict *generic.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(1), conflict.Expected)
	assert.Equal(t, int64(2), conflict.Actual)
	assert.True(t, generic.IsRetryable(err))

	head, _ := ledger.Version(ctx, "s-1")
	assert.Equal(t, int64(2), head)
}

func TestLedger_Append_RequiresStream(t *testing.T) {
	ledger, _ := newTestLedger()
	_, _, err := ledger.Append(context.Background(), testEvent("", "e", ""), generic.AnyVersion)
	assert.ErrorIs(t, err, generic.ErrEmptyStreamID)
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestLedger_Append_IdempotencyKeyReplaysOriginal(t *testing.T) {
	// GIVEN: An event committed with key "req-1"
	// WHEN: The same request is retried, even with a stale expected version
	// THEN: The original event is returned with created=false, head unchanged

	ctx := context.Background()
	ledger, _ := newTestLedger()

	first, created, err := ledger.Append(ctx, testEvent("s-1", "e", "req-1"), 0)
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := ledger.Append(ctx, testEvent("s-1", "e", "req-1"), 0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Version, again.Version)

	head, _ := ledger.Version(ctx, "s-1")
	assert.Equal(t, int64(1), head)

	found, err := ledger.Lookup(ctx, "s-1", "req-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
}

func TestLedger_Append_IdempotencyKeyIsScopedToStream(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	_, created, err := ledger.Append(ctx, testEvent("s-1", "e", "req-1"), generic.AnyVersion)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = ledger.Append(ctx, testEvent("s-2", "e", "req-1"), generic.AnyVersion)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestLedger_ConcurrentWritersOnSameVersion_OneWins(t *testing.T) {
	// GIVEN: Ten writers that all read version 0
	// WHEN: They append concurrently with expectedVersion 0
	// THEN: Exactly one succeeds, the rest conflict

	ctx := context.Background()
	ledger, _ := newTestLedger()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := ledger.Append(ctx, testEvent("s-1", "e", ""), 0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, generic.ErrConcurrentModification):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 9, conflicts)
}

func TestLedger_Streams(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()
	for _, s := range []string{"b", "a", "b"} {
		_, _, err := ledger.Append(ctx, testEvent(s, "e", ""), generic.AnyVersion)
		require.NoError(t, err)
	}

	streams, err := ledger.Streams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []generic.StreamID{"a", "b"}, streams)
}
