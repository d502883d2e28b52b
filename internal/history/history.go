// Package history persists one record per completed rename run so operators
// can review what the monitor did and roll back from the recorded artifacts.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"aninamer/internal/config"
)

// Store manages run history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// schemaVersion is the current schema version. Bump this when the schema
// changes; the history database can be deleted and recreated at any time.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    directory TEXT NOT NULL,
    series_title TEXT NOT NULL DEFAULT '',
    tmdb_id INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL,
    moves_applied INTEGER NOT NULL DEFAULT 0,
    plan_path TEXT NOT NULL DEFAULT '',
    rollback_path TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    duration_seconds REAL NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
`

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFailed         Outcome = "failed"
)

// Entry is one recorded rename run.
type Entry struct {
	ID           int64
	Directory    string
	SeriesTitle  string
	TMDBID       int64
	Outcome      Outcome
	MovesApplied int
	PlanPath     string
	RollbackPath string
	Error        string
	Duration     time.Duration
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Open initializes or connects to the run history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.HistoryDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.History.Keep > 0 {
		// Best-effort retention on open.
		_, _ = store.Prune(context.Background(), cfg.History.Keep)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to recreate)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Record inserts a run entry and returns its assigned id.
func (s *Store) Record(ctx context.Context, entry Entry) (int64, error) {
	started := entry.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	finished := entry.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO runs (
            directory, series_title, tmdb_id, outcome, moves_applied,
            plan_path, rollback_path, error, duration_seconds,
            started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Directory,
		entry.SeriesTitle,
		entry.TMDBID,
		string(entry.Outcome),
		entry.MovesApplied,
		entry.PlanPath,
		entry.RollbackPath,
		entry.Error,
		entry.Duration.Seconds(),
		started.UTC().Format(time.RFC3339Nano),
		finished.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// List returns the most recent runs, newest first. A non-positive limit
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	ctx = ensureContext(ctx)
	query := `SELECT id, directory, series_title, tmdb_id, outcome, moves_applied,
        plan_path, rollback_path, error, duration_seconds, started_at, finished_at
        FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Prune deletes all but the newest keep entries. It returns the number of
// deleted rows.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY id DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		entry      Entry
		outcome    string
		durationS  float64
		startedAt  string
		finishedAt string
	)
	if err := rows.Scan(
		&entry.ID,
		&entry.Directory,
		&entry.SeriesTitle,
		&entry.TMDBID,
		&outcome,
		&entry.MovesApplied,
		&entry.PlanPath,
		&entry.RollbackPath,
		&entry.Error,
		&durationS,
		&startedAt,
		&finishedAt,
	); err != nil {
		return Entry{}, fmt.Errorf("scan run: %w", err)
	}
	entry.Outcome = Outcome(outcome)
	entry.Duration = time.Duration(durationS * float64(time.Second))
	if ts, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		entry.StartedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
		entry.FinishedAt = ts
	}
	return entry, nil
}
