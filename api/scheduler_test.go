package api_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-engine/api"
	"github.com/warp/loan-engine/generic"
	"github.com/warp/loan-engine/store/sqlite"
)

func TestMaintenanceScheduler_RejectsBadSchedule(t *testing.T) {
	_, err := api.NewMaintenanceScheduler(nil, nil, "every tuesday", 1, zerolog.Nop())
	assert.Error(t, err)
}

func TestMaintenanceScheduler_RunNow(t *testing.T) {
	// GIVEN: Three snapshots of one stream and an active limiter bucket
	// WHEN: Running a maintenance pass keeping one snapshot
	// THEN: Two snapshots are pruned and the latest one survives

	ctx := context.Background()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	for v := int64(1); v <= 3; v++ {
		require.NoError(t, store.SaveSnapshot(ctx, generic.Snapshot{StreamID: "loan-1", Version: v, Data: json.RawMessage(`{}`)}))
	}
	limiter := api.NewRateLimiter(60, 5)
	limiter.Allow("alice")

	ms, err := api.NewMaintenanceScheduler(store, limiter, "@every 1h", 1, zerolog.Nop())
	require.NoError(t, err)

	report := ms.RunNow()
	require.NoError(t, report.Err)
	assert.Equal(t, int64(2), report.SnapshotsPruned)
	assert.Zero(t, report.LimitersRemoved, "alice was just seen")
	assert.Equal(t, report, ms.LastReport())

	latest, err := store.LatestSnapshot(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest.Version)
}

func TestMaintenanceScheduler_StartStop(t *testing.T) {
	ms, err := api.NewMaintenanceScheduler(nil, nil, "@every 1h", 1, zerolog.Nop())
	require.NoError(t, err)

	ms.Start()
	assert.False(t, ms.NextRunTime().IsZero())
	ms.Stop()
	ms.Stop()
}
