// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/streamstage/internal/persistence/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	pipeline TEXT NOT NULL DEFAULT '',
	dir TEXT NOT NULL,
	filename TEXT NOT NULL,
	fps REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL CHECK(status IN ('pending', 'in-stage', 'completed', 'failed')),
	stage INTEGER NOT NULL DEFAULT -1,
	chunks INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

// SQLiteStore persists records in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path, verifies it and
// applies the schema.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	cfg := sqlite.DefaultConfig()
	cfg.Schema = sqliteSchema
	db, err := sqlite.Open(ctx, path, cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, pipeline, dir, filename, fps, status, stage, chunks, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pipeline = excluded.pipeline,
			dir = excluded.dir,
			filename = excluded.filename,
			fps = excluded.fps,
			status = excluded.status,
			stage = excluded.stage,
			chunks = excluded.chunks,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Pipeline, rec.Dir, rec.Filename, rec.FPS, string(rec.Status), rec.Stage, rec.Chunks, rec.Error,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put job %s: %w", rec.ID, err)
	}
	return nil
}

const selectJob = `SELECT id, pipeline, dir, filename, fps, status, stage, chunks, error, created_at, updated_at FROM jobs`

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectJob+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec              Record
		status           string
		created, updated string
	)
	if err := sc.Scan(&rec.ID, &rec.Pipeline, &rec.Dir, &rec.Filename, &rec.FPS, &status,
		&rec.Stage, &rec.Chunks, &rec.Error, &created, &updated); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return Record{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
