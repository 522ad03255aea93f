// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history records conversion runs in a local SQLite database so
// earlier batches and their failures can be listed after the fact.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/cad2step/pkg/types"
)

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

const defaultListLimit = 20

// Item outcomes stored in the items table.
const (
	StatusConverted = "converted"
	StatusFailed    = "failed"
)

// Run summarises one recorded batch.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Succeeded  int
	Failed     int
	// AbortError is the error that stopped the batch early, if any.
	AbortError string
}

// Item is one recorded outcome. Path is the output path for converted
// items and the input path for failed ones.
type Item struct {
	Seq     int
	Status  string
	Path    string
	Message string
}

// Store manages the history SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path and its schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			abort_error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			status TEXT NOT NULL,
			path TEXT NOT NULL,
			message TEXT,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores report and returns its run ID, generating one when
// report.RunID is empty. abortErr is the error that ended the batch early,
// or nil.
func (s *Store) Record(ctx context.Context, report types.BatchReport, abortErr error) (string, error) {
	id := report.RunID
	if id == "" {
		id = uuid.NewString()
	}
	var abortMsg sql.NullString
	if abortErr != nil {
		abortMsg = sql.NullString{String: abortErr.Error(), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, total, succeeded, failed, abort_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, formatTime(report.StartedAt), formatTime(report.FinishedAt),
		report.Total, len(report.Successes), len(report.Failures), abortMsg,
	)
	if err != nil {
		return "", fmt.Errorf("inserting run %s: %w", id, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (run_id, seq, status, path, message) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	seq := 0
	for _, out := range report.Successes {
		seq++
		if _, err := stmt.ExecContext(ctx, id, seq, StatusConverted, out, nil); err != nil {
			return "", fmt.Errorf("inserting item %d: %w", seq, err)
		}
	}
	for _, f := range report.Failures {
		seq++
		if _, err := stmt.ExecContext(ctx, id, seq, StatusFailed, f.InputPath, f.Message); err != nil {
			return "", fmt.Errorf("inserting item %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run %s: %w", id, err)
	}
	return id, nil
}

// List returns the most recent runs, newest first. A limit of 0 selects
// the default (20).
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, total, succeeded, failed, abort_error
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns one run and its items in recorded order.
func (s *Store) Get(ctx context.Context, id string) (Run, []Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, total, succeeded, failed, abort_error
		 FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, status, path, COALESCE(message, '') FROM items WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return Run{}, nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Seq, &it.Status, &it.Path, &it.Message); err != nil {
			return Run{}, nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, it)
	}
	return r, items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                 Run
		started, finished string
		abortMsg          sql.NullString
	)
	if err := sc.Scan(&r.ID, &started, &finished, &r.Total, &r.Succeeded, &r.Failed, &abortMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	r.AbortError = abortMsg.String
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
