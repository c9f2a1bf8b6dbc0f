// Package history records launched runs and their outcome in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Finish for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Run outcomes stored in the state column.
const (
	StateRunning  = "running"
	StateReported = "reported"
	StateFailed   = "failed"
	StateNoReport = "report_failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  id          TEXT NOT NULL PRIMARY KEY,
  run_name    TEXT NOT NULL,
  folder      TEXT NOT NULL,
  state       TEXT NOT NULL,
  report_path TEXT NOT NULL DEFAULT '',
  error       TEXT NOT NULL DEFAULT '',
  started     INTEGER NOT NULL,
  finished    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS runs_started ON runs (started DESC);
`

// Record is one launched run.
type Record struct {
	ID         string
	RunName    string
	Folder     string
	State      string
	ReportPath string
	Error      string
	Started    time.Time
	// Finished is zero while the run is in flight.
	Finished time.Time
}

// Duration returns the run time, or zero while running.
func (r Record) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Store is a run history database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the history database at path. Use
// ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		params := url.Values{
			"_pragma": []string{"busy_timeout(5000)", "journal_mode(WAL)", "synchronous(NORMAL)"},
		}
		dsn = fmt.Sprintf("file:%s?%s", path, params.Encode())
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// A single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records a launched run and returns its id.
func (s *Store) Begin(ctx context.Context, runName, folder string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, run_name, folder, state, started) VALUES (?, ?, ?, ?, ?)`,
		id, runName, folder, StateRunning, s.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to record run %s: %w", runName, err)
	}
	return id, nil
}

// Finish stores the outcome of run id.
func (s *Store) Finish(ctx context.Context, id, state, reportPath, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, report_path = ?, error = ?, finished = ? WHERE id = ?`,
		state, reportPath, errMsg, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_name, folder, state, report_path, error, started, finished
		   FROM runs ORDER BY started DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                 Record
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &r.RunName, &r.Folder, &r.State, &r.ReportPath, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to read run: %w", err)
		}
		r.Started = time.UnixMilli(started)
		if finished > 0 {
			r.Finished = time.UnixMilli(finished)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
