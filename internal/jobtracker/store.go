package jobtracker

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists finished job records so a host CLI can list or
// inspect runs after the process that ran them has exited — the
// optional persistence layer behind spec §4.11's in-memory registry,
// mirroring the teacher's StateStore.ListRuns/GetRun.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a sqlite database at
// dbPath and ensures the job_runs table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("jobtracker: opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("jobtracker: enabling WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return nil, fmt.Errorf("jobtracker: setting busy timeout: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS job_runs (
		job_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		prompt_preview TEXT,
		result_preview TEXT,
		error TEXT
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("jobtracker: creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveRecord upserts rec into job_runs. Implements Store.
func (s *SQLiteStore) SaveRecord(rec Record) error {
	var endedAt any
	if rec.EndedAt != nil {
		endedAt = rec.EndedAt.Unix()
	}
	_, err := s.db.Exec(`
		INSERT INTO job_runs (job_id, type, status, started_at, ended_at, prompt_preview, result_preview, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status=excluded.status, ended_at=excluded.ended_at,
			result_preview=excluded.result_preview, error=excluded.error`,
		rec.JobID, rec.Type, rec.Status, rec.StartedAt.Unix(), endedAt, rec.PromptPreview, rec.ResultPreview, rec.Error)
	if err != nil {
		return fmt.Errorf("jobtracker: saving record %s: %w", rec.JobID, err)
	}
	return nil
}

// ListRuns returns up to limit most-recent runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT job_id, type, status, started_at, ended_at, prompt_preview, result_preview, error
		FROM job_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("jobtracker: listing runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var startedAt int64
		var endedAt sql.NullInt64
		if err := rows.Scan(&rec.JobID, &rec.Type, &rec.Status, &startedAt, &endedAt,
			&rec.PromptPreview, &rec.ResultPreview, &rec.Error); err != nil {
			return nil, fmt.Errorf("jobtracker: scanning run row: %w", err)
		}
		rec.StartedAt = time.Unix(startedAt, 0)
		if endedAt.Valid {
			t := time.Unix(endedAt.Int64, 0)
			rec.EndedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRun returns one run by job ID.
func (s *SQLiteStore) GetRun(jobID string) (Record, error) {
	var rec Record
	var startedAt int64
	var endedAt sql.NullInt64
	err := s.db.QueryRow(`
		SELECT job_id, type, status, started_at, ended_at, prompt_preview, result_preview, error
		FROM job_runs WHERE job_id = ?`, jobID).
		Scan(&rec.JobID, &rec.Type, &rec.Status, &startedAt, &endedAt,
			&rec.PromptPreview, &rec.ResultPreview, &rec.Error)
	if err != nil {
		return Record{}, fmt.Errorf("jobtracker: getting run %s: %w", jobID, err)
	}
	rec.StartedAt = time.Unix(startedAt, 0)
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0)
		rec.EndedAt = &t
	}
	return rec, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
