package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func event(stream string, version int64, key string) generic.Event {
	return generic.Event{
		ID:             generic.NewEventID(),
		StreamID:       generic.StreamID(stream),
		Version:        version,
		Type:           "test",
		EffectiveAt:    generic.MustParseDate("2025-03-15"),
		Payload:        json.RawMessage(`{"n":1}`),
		IdempotencyKey: key,
		Metadata:       map[string]string{"source": "test"},
		CreatedBy:      "alice",
		CreatedAt:      time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC),
	}
}

func decimalOf(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// =============================================================================
// EVENTS
// =============================================================================

func TestStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	first := event("loan-1", 1, "k1")
	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, event("loan-1", 2, "")))

	events, err := s.Load(ctx, "loan-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	got := events[0]
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "2025-03-15", got.EffectiveAt.String())
	assert.JSONEq(t, `{"n":1}`, string(got.Payload))
	assert.Equal(t, "k1", got.IdempotencyKey)
	assert.Equal(t, "test", got.Metadata["source"])
	assert.Equal(t, "alice", got.CreatedBy)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

	head, err := s.Version(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), head)
}

func TestStore_Append_RejectsWrongVersion(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Append(ctx, event("loan-1", 1, "")))

	assert.ErrorIs(t, s.Append(ctx, event("loan-1", 1, "")), generic.ErrConcurrentModification)
	assert.ErrorIs(t, s.Append(ctx, event("loan-1", 3, "")), generic.ErrConcurrentModification)
}

func TestStore_Append_IdempotencyKeyScopedToStream(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Append(ctx, event("loan-1", 1, "k1")))

	assert.ErrorIs(t, s.Append(ctx, event("loan-1", 2, "k1")), generic.ErrDuplicateIdempotencyKey)
	assert.NoError(t, s.Append(ctx, event("loan-2", 1, "k1")))

	found, err := s.FindByIdempotencyKey(ctx, "loan-1", "k1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(1), found.Version)

	missing, err := s.FindByIdempotencyKey(ctx, "loan-1", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_Streams(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Append(ctx, event("b", 1, "")))
	require.NoError(t, s.Append(ctx, event("a", 1, "")))
	require.NoError(t, s.Append(ctx, event("a", 2, "")))

	streams, err := s.Streams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []generic.StreamID{"a", "b"}, streams)
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func TestStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.LatestSnapshot(ctx, "loan-1")
	assert.ErrorIs(t, err, generic.ErrSnapshotNotFound)

	for v := int64(1); v <= 3; v++ {
		require.NoError(t, s.SaveSnapshot(ctx, generic.Snapshot{StreamID: "loan-1", Version: v, Data: json.RawMessage(`{"v":1}`)}))
	}
	// First copy wins.
	require.NoError(t, s.SaveSnapshot(ctx, generic.Snapshot{StreamID: "loan-1", Version: 3, Data: json.RawMessage(`{"v":2}`)}))
	require.NoError(t, s.SaveSnapshot(ctx, generic.Snapshot{StreamID: "loan-2", Version: 1, Data: json.RawMessage(`{}`)}))

	latest, err := s.LatestSnapshot(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest.Version)
	assert.JSONEq(t, `{"v":1}`, string(latest.Data))

	removed, err := s.PruneSnapshots(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	latest, err = s.LatestSnapshot(ctx, "loan-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest.Version)
}

// =============================================================================
// END TO END
// =============================================================================

func TestStore_ServiceSurvivesRestart(t *testing.T) {
	// GIVEN: A loan with a committed extra payment in a file database
	// WHEN: The store is closed and reopened
	// THEN: The projection is rebuilt from the same events

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "loans.db")

	s, err := sqlite.New(path)
	require.NoError(t, err)
	svc := loan.NewService(s, s)

	created, _, err := svc.CreateLoan(ctx, loan.Loan{
		Name:             "Flat",
		Principal:        decimalOf(t, "1200000"),
		AnnualRate:       decimalOf(t, "12"),
		PaymentType:      loan.PaymentAnnuity,
		TermMonths:       12,
		FirstPaymentDate: generic.MustParseDate("2025-01-15"),
	}, loan.CommitOptions{IdempotencyKey: "create"})
	require.NoError(t, err)

	_, err = svc.CommitEvent(ctx, created.ID,
		loan.NewExtraPayment(generic.MustParseDate("2025-03-15"), decimalOf(t, "200000"), loan.ExtraOneTime, loan.StrategyReduceTerm),
		loan.CommitOptions{IdempotencyKey: "extra"})
	require.NoError(t, err)
	before, err := svc.GetLoan(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	after, err := loan.NewService(reopened, reopened).GetLoan(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), after.Version)
	assert.True(t, after.FromCache, "snapshot written before the restart")
	assert.Equal(t, before.Value.Fingerprint, after.Value.Fingerprint)
	assert.Len(t, after.Value.Schedule, 10)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Append(ctx, event("loan-1", 1, "")))
	require.NoError(t, s.Reset(ctx))

	streams, err := s.Streams(ctx)
	require.NoError(t, err)
	assert.Empty(t, streams)
}
