// Package sqlite persists drafts and ingestion jobs in an embedded SQLite database for local runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/tenkings/setops-ingest/internal/setops"
	"github.com/tenkings/setops-ingest/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS set_drafts (
	id         TEXT PRIMARY KEY,
	set_id     TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS set_ingestion_jobs (
	id                 TEXT PRIMARY KEY,
	set_id             TEXT NOT NULL,
	draft_id           TEXT NOT NULL REFERENCES set_drafts(id),
	dataset_type       TEXT NOT NULL,
	source_url         TEXT NOT NULL,
	raw_payload        TEXT NOT NULL,
	parser_version     TEXT NOT NULL,
	status             TEXT NOT NULL,
	parse_summary_json TEXT NOT NULL,
	created_by_id      TEXT,
	created_at         INTEGER NOT NULL
);`

// JobStore writes drafts and jobs to SQLite. Timestamps are stored as Unix microseconds.
type JobStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*JobStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	store := &JobStore{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *JobStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks the database handle.
func (s *JobStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *JobStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// SaveImport upserts the draft and inserts the job in one transaction.
func (s *JobStore) SaveImport(ctx context.Context, job setops.IngestionJob) (setops.IngestionJob, error) {
	payload, summary, err := storage.EncodeJob(job)
	if err != nil {
		return setops.IngestionJob{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return setops.IngestionJob{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := job.CreatedAt.UnixMicro()
	var draftID string
	err = tx.QueryRowContext(ctx, `
INSERT INTO set_drafts (id, set_id, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (set_id) DO UPDATE SET updated_at = excluded.updated_at
RETURNING id`, job.DraftID, job.SetID, setops.DraftStatus, created, created).Scan(&draftID)
	if err != nil {
		return setops.IngestionJob{}, fmt.Errorf("upsert draft: %w", err)
	}
	job.DraftID = draftID

	_, err = tx.ExecContext(ctx, `
INSERT INTO set_ingestion_jobs (
	id, set_id, draft_id, dataset_type, source_url, raw_payload, parser_version,
	status, parse_summary_json, created_by_id, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SetID, job.DraftID, string(job.DatasetType), job.SourceURL, string(payload),
		job.ParserVersion, string(job.Status), string(summary), storage.NullString(job.CreatedByID), created)
	if err != nil {
		return setops.IngestionJob{}, fmt.Errorf("insert job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return setops.IngestionJob{}, fmt.Errorf("commit tx: %w", err)
	}
	return job, nil
}

// GetJob loads a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (setops.IngestionJob, error) {
	var (
		job       setops.IngestionJob
		dataset   string
		status    string
		payload   string
		summary   string
		createdBy sql.NullString
		created   int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, set_id, draft_id, dataset_type, source_url, raw_payload, parser_version,
	status, parse_summary_json, created_by_id, created_at
FROM set_ingestion_jobs WHERE id = ?`, jobID).Scan(
		&job.ID, &job.SetID, &job.DraftID, &dataset, &job.SourceURL, &payload,
		&job.ParserVersion, &status, &summary, &createdBy, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return setops.IngestionJob{}, setops.ErrNotFound
	}
	if err != nil {
		return setops.IngestionJob{}, fmt.Errorf("select job: %w", err)
	}
	job.DatasetType = setops.DatasetType(dataset)
	job.Status = setops.JobStatus(status)
	job.CreatedByID = createdBy.String
	job.CreatedAt = time.UnixMicro(created).UTC()
	if err := storage.DecodeJob(&job, []byte(payload), []byte(summary)); err != nil {
		return setops.IngestionJob{}, err
	}
	return job, nil
}

// Draft returns the draft stored for a set.
func (s *JobStore) Draft(ctx context.Context, setID string) (setops.Draft, error) {
	var (
		d                setops.Draft
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, set_id, status, created_at, updated_at FROM set_drafts WHERE set_id = ?`, setID).
		Scan(&d.ID, &d.SetID, &d.Status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return setops.Draft{}, setops.ErrNotFound
	}
	if err != nil {
		return setops.Draft{}, fmt.Errorf("select draft: %w", err)
	}
	d.CreatedAt = time.UnixMicro(created).UTC()
	d.UpdatedAt = time.UnixMicro(updated).UTC()
	return d, nil
}
