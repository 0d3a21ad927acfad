/*
scheduler.go - Background maintenance scheduler

PURPOSE:
  Periodically trims persisted projection snapshots and drops idle rate
  limiter buckets. Neither job changes what clients see: snapshots are a
  cache of the event stream and only the newest one per stream is read.

DESIGN:
  - robfig/cron drives the jobs from a standard cron spec or descriptor
    (MAINTENANCE_SCHEDULE, default "@every 1h")
  - SkipIfStillRunning keeps runs from overlapping
  - RunNow executes the same pass synchronously, for tests and admin use

USAGE:
  scheduler, err := NewMaintenanceScheduler(store, limiter, "@every 1h", 2, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - store/sqlite/sqlite.go: PruneSnapshots
  - ratelimit.go: RateLimiter.Cleanup
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SnapshotPruner deletes all but the newest keep snapshots of every stream.
type SnapshotPruner interface {
	PruneSnapshots(ctx context.Context, keep int) (int64, error)
}

// MaintenanceReport is the outcome of one maintenance pass.
type MaintenanceReport struct {
	SnapshotsPruned int64
	LimitersRemoved int
	Err             error
}

// MaintenanceScheduler runs snapshot pruning and limiter cleanup on a cron
// schedule.
type MaintenanceScheduler struct {
	Pruner          SnapshotPruner
	Limiter         *RateLimiter // optional
	SnapshotsToKeep int
	JobTimeout      time.Duration

	cron    *cron.Cron
	log     zerolog.Logger
	mu      sync.Mutex
	running bool
	last    MaintenanceReport
}

// NewMaintenanceScheduler validates the schedule and registers the job.
func NewMaintenanceScheduler(pruner SnapshotPruner, limiter *RateLimiter, schedule string, keep int, log zerolog.Logger) (*MaintenanceScheduler, error) {
	ms := &MaintenanceScheduler{
		Pruner:          pruner,
		Limiter:         limiter,
		SnapshotsToKeep: keep,
		JobTimeout:      time.Minute,
		log:             log.With().Str("component", "maintenance").Logger(),
	}
	ms.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{ms.log}),
		cron.SkipIfStillRunning(cronLogger{ms.log}),
	))
	if _, err := ms.cron.AddFunc(schedule, func() { ms.RunNow() }); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}
	return ms, nil
}

// Start begins the scheduler.
func (ms *MaintenanceScheduler) Start() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.running {
		return
	}
	ms.cron.Start()
	ms.running = true

	entries := ms.cron.Entries()
	if len(entries) > 0 {
		ms.log.Info().Time("next_run", entries[0].Next).Msg("maintenance scheduler started")
	}
}

// Stop stops the scheduler and waits for a running pass to finish.
func (ms *MaintenanceScheduler) Stop() {
	ms.mu.Lock()
	if !ms.running {
		ms.mu.Unlock()
		return
	}
	ms.running = false
	ms.mu.Unlock()

	<-ms.cron.Stop().Done()
	ms.log.Info().Msg("maintenance scheduler stopped")
}

// RunNow performs one maintenance pass.
func (ms *MaintenanceScheduler) RunNow() MaintenanceReport {
	ctx, cancel := context.WithTimeout(context.Background(), ms.JobTimeout)
	defer cancel()

	var report MaintenanceReport
	if ms.Pruner != nil {
		report.SnapshotsPruned, report.Err = ms.Pruner.PruneSnapshots(ctx, ms.SnapshotsToKeep)
		if report.Err != nil {
			ms.log.Error().Err(report.Err).Msg("snapshot pruning failed")
		}
	}
	if ms.Limiter != nil {
		report.LimitersRemoved = ms.Limiter.Cleanup(LimiterTTL)
	}

	if report.SnapshotsPruned > 0 || report.LimitersRemoved > 0 {
		ms.log.Info().
			Int64("snapshots_pruned", report.SnapshotsPruned).
			Int("limiters_removed", report.LimitersRemoved).
			Msg("maintenance completed")
	}

	ms.mu.Lock()
	ms.last = report
	ms.mu.Unlock()
	return report
}

// LastReport returns the outcome of the most recent pass.
func (ms *MaintenanceScheduler) LastReport() MaintenanceReport {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.last
}

// NextRunTime returns when the next scheduled pass will occur, zero when
// the scheduler is not running.
func (ms *MaintenanceScheduler) NextRunTime() time.Time {
	entries := ms.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
