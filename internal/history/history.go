// Package history keeps a local, append-only ledger of job runs in a
// SQLite database, independent of network access to the destination —
// it supplements the destination-side last-backup checkpoint with a
// queryable local record of what ran, when, and how it went.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunSummary is one row in the ledger: the outcome of a single job run.
type RunSummary struct {
	ID               int64
	JobName          string
	StartedAt        time.Time
	FinishedAt       time.Time
	Failed           bool
	FilesProcessed   int64
	FilesUploaded    int64
	FilesSkipped     int64
	BytesTransferred int64
	ErrorCount       int
}

// Store is a handle on the run-history database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the SQLite database at dbPath, enables
// WAL mode, and applies any pending migrations. Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: opening database: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: setting WAL mode: %w", err)
	}

	if err := runMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("history database ready", slog.String("path", dbPath))

	return &Store{db: db, logger: logger}, nil
}

// runMigrations applies every pending embedded migration via goose's
// provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("history: creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("history: running migrations: %w", err)
	}

	return nil
}

// Record appends one run to the ledger.
func (s *Store) Record(ctx context.Context, run RunSummary) error {
	const q = `INSERT INTO runs
		(job_name, started_at, finished_at, failed, files_processed,
		 files_uploaded, files_skipped, bytes_transferred, error_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		run.JobName, run.StartedAt.Unix(), run.FinishedAt.Unix(), boolToInt(run.Failed),
		run.FilesProcessed, run.FilesUploaded, run.FilesSkipped, run.BytesTransferred, run.ErrorCount,
	)
	if err != nil {
		return fmt.Errorf("history: recording run for job %q: %w", run.JobName, err)
	}

	return nil
}

// Recent returns the most recent limit runs for jobName, newest first. An
// empty jobName returns runs for every job.
func (s *Store) Recent(ctx context.Context, jobName string, limit int) ([]RunSummary, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if jobName == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, job_name, started_at, finished_at, failed, files_processed,
				files_uploaded, files_skipped, bytes_transferred, error_count
			FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, job_name, started_at, finished_at, failed, files_processed,
				files_uploaded, files_skipped, bytes_transferred, error_count
			FROM runs WHERE job_name = ? ORDER BY started_at DESC LIMIT ?`, jobName, limit)
	}

	if err != nil {
		return nil, fmt.Errorf("history: querying runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary

	for rows.Next() {
		var (
			r                      RunSummary
			startedAt, finishedAt  int64
			failed                 int
		)

		if err := rows.Scan(&r.ID, &r.JobName, &startedAt, &finishedAt, &failed,
			&r.FilesProcessed, &r.FilesUploaded, &r.FilesSkipped, &r.BytesTransferred, &r.ErrorCount); err != nil {
			return nil, fmt.Errorf("history: scanning run row: %w", err)
		}

		r.StartedAt = time.Unix(startedAt, 0).UTC()
		r.FinishedAt = time.Unix(finishedAt, 0).UTC()
		r.Failed = failed != 0

		summaries = append(summaries, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating run rows: %w", err)
	}

	return summaries, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
