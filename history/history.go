// Package history appends completed-run records to a SQLite database.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store handles SQLite storage for run history.
type Store struct {
	db   *sql.DB
	path string
}

// Run is one recorded execution.
type Run struct {
	ID       int64
	Program  string
	Files    int
	Records  uint64
	BytesOut int
	Duration time.Duration
	Status   string
	When     time.Time
}

// Open creates (if needed) and opens the history database.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		program TEXT NOT NULL,
		files INTEGER NOT NULL,
		records INTEGER NOT NULL,
		bytes_out INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one run.
func (s *Store) Record(r Run) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (program, files, records, bytes_out, duration_ms, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Program, r.Files, r.Records, r.BytesOut,
		r.Duration.Milliseconds(), r.Status, r.When.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, program, files, records, bytes_out, duration_ms, status, started_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durationMs int64
		var when string
		if err := rows.Scan(&r.ID, &r.Program, &r.Files, &r.Records,
			&r.BytesOut, &durationMs, &r.Status, &when); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.When, _ = time.Parse(time.RFC3339, when)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
