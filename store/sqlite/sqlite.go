/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.Store and generic.SnapshotStore using SQLite. The same
  schema ports to PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  generic.Store:         Event log persistence
  generic.SnapshotStore: Cached loan projections

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the events table
  - No DELETE statements on the events table (Reset aside, for demos)
  - UNIQUE(stream_id, version) turns a lost race into
    ErrConcurrentModification
  - A partial unique index on (stream_id, idempotency_key) turns a replayed
    key into ErrDuplicateIdempotencyKey

KEY TABLES:
  events:    Immutable log of every loan fact
  snapshots: Folded State per (stream, version); safe to delete

MIGRATION:
  Versioned SQL files under migrations/ are embedded and applied with
  golang-migrate on New().

CONCURRENCY:
  Writes hold a mutex and run in a transaction that re-reads the stream
  head. The pool is capped at one connection: SQLite has a single writer
  anyway, and a ":memory:" database lives only as long as its connection.

USAGE:
  store, err := sqlite.New("./data/loans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := loan.NewService(store, store)

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/loan-engine/generic"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements generic.Store and generic.SnapshotStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ generic.Store         = (*Store)(nil)
	_ generic.SnapshotStore = (*Store)(nil)
)

// New opens the database and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	if dbPath == ":memory:" {
		dsn = ":memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the embedded migrations. The migrate instance is not
// closed: that would close s.db as well.
func (s *Store) migrate() error {
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// =============================================================================
// EVENT STORE (generic.Store interface)
// =============================================================================

// Append adds an event. ev.Version must be the stream head + 1.
func (s *Store) Append(ctx context.Context, ev generic.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if ev.IdempotencyKey != "" {
		var n int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM events WHERE stream_id = ? AND idempotency_key = ?",
			ev.StreamID, ev.IdempotencyKey,
		).Scan(&n); err != nil {
			return fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if n > 0 {
			return generic.ErrDuplicateIdempotencyKey
		}
	}

	var head int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = ?", ev.StreamID,
	).Scan(&head); err != nil {
		return fmt.Errorf("failed to read stream head: %w", err)
	}
	if ev.Version != head+1 {
		return generic.ErrConcurrentModification
	}

	var metadataJSON sql.NullString
	if len(ev.Metadata) > 0 {
		data, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events
		(id, stream_id, version, event_type, effective_at, payload,
		 idempotency_key, metadata_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.StreamID,
		ev.Version,
		ev.Type,
		nullString(formatDate(ev.EffectiveAt)),
		string(ev.Payload),
		nullString(ev.IdempotencyKey),
		metadataJSON,
		nullString(ev.CreatedBy),
		ev.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return tx.Commit()
}

// Load returns every event of a stream in version order.
func (s *Store) Load(ctx context.Context, stream generic.StreamID) ([]generic.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEvents(ctx, `
		SELECT id, stream_id, version, event_type, effective_at, payload,
		       idempotency_key, metadata_json, created_by, created_at
		FROM events
		WHERE stream_id = ?
		ORDER BY version ASC`, stream)
}

func (s *Store) Version(ctx context.Context, stream generic.StreamID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var head int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = ?", stream,
	).Scan(&head)
	return head, err
}

// FindByIdempotencyKey returns nil, nil when the key is unused.
func (s *Store) FindByIdempotencyKey(ctx context.Context, stream generic.StreamID, key string) (*generic.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, err := s.queryEvents(ctx, `
		SELECT id, stream_id, version, event_type, effective_at, payload,
		       idempotency_key, metadata_json, created_by, created_at
		FROM events
		WHERE stream_id = ? AND idempotency_key = ?`, stream, key)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

func (s *Store) Streams(ctx context.Context) ([]generic.StreamID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT stream_id FROM events ORDER BY stream_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	defer rows.Close()

	var streams []generic.StreamID
	for rows.Next() {
		var id generic.StreamID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		streams = append(streams, id)
	}
	return streams, rows.Err()
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]generic.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []generic.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (generic.Event, error) {
	var (
		ev             generic.Event
		effectiveAt    sql.NullString
		payload        string
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&ev.ID, &ev.StreamID, &ev.Version, &ev.Type, &effectiveAt, &payload,
		&idempotencyKey, &metadataJSON, &createdBy, &createdAt,
	)
	if err != nil {
		return ev, fmt.Errorf("failed to scan event: %w", err)
	}

	if effectiveAt.Valid && effectiveAt.String != "" {
		if ev.EffectiveAt, err = generic.ParseDate(effectiveAt.String); err != nil {
			return ev, fmt.Errorf("event %s: %w", ev.ID, err)
		}
	}
	ev.Payload = json.RawMessage(payload)
	ev.IdempotencyKey = idempotencyKey.String
	ev.CreatedBy = createdBy.String
	ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &ev.Metadata); err != nil {
			return ev, fmt.Errorf("event %s metadata: %w", ev.ID, err)
		}
	}
	return ev, nil
}

// =============================================================================
// SNAPSHOT STORE (generic.SnapshotStore interface)
// =============================================================================

// SaveSnapshot keeps the first copy written for a (stream, version).
func (s *Store) SaveSnapshot(ctx context.Context, snap generic.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	takenAt := snap.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (stream_id, version, data, taken_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (stream_id, version) DO NOTHING`,
		snap.StreamID, snap.Version, string(snap.Data), takenAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *Store) LatestSnapshot(ctx context.Context, stream generic.StreamID) (*generic.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		snap    generic.Snapshot
		data    string
		takenAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT stream_id, version, data, taken_at
		FROM snapshots
		WHERE stream_id = ?
		ORDER BY version DESC
		LIMIT 1`, stream,
	).Scan(&snap.StreamID, &snap.Version, &data, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	snap.Data = json.RawMessage(data)
	snap.TakenAt, _ = time.Parse(time.RFC3339Nano, takenAt)
	return &snap, nil
}

// PruneSnapshots keeps the newest keep snapshots of every stream.
func (s *Store) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE (stream_id, version) IN (
			SELECT stream_id, version FROM (
				SELECT stream_id, version,
				       ROW_NUMBER() OVER (PARTITION BY stream_id ORDER BY version DESC) AS rn
				FROM snapshots
			) WHERE rn > ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"snapshots", "events"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatDate(tp generic.TimePoint) string {
	if tp.IsZero() {
		return ""
	}
	return tp.String()
}

// mapConstraintError translates unique violations into the store errors
// the ledger knows how to handle.
func mapConstraintError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		if strings.Contains(sqliteErr.Error(), "idempotency_key") {
			return generic.ErrDuplicateIdempotencyKey
		}
		return generic.ErrConcurrentModification
	}
	return fmt.Errorf("failed to append event: %w", err)
}
