// Package postgres persists drafts and ingestion jobs in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tenkings/setops-ingest/internal/setops"
	"github.com/tenkings/setops-ingest/internal/storage"
)

// Schema creates the draft and job tables.
const Schema = `
CREATE TABLE IF NOT EXISTS set_drafts (
	id         TEXT PRIMARY KEY,
	set_id     TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS set_ingestion_jobs (
	id                 TEXT PRIMARY KEY,
	set_id             TEXT NOT NULL,
	draft_id           TEXT NOT NULL REFERENCES set_drafts(id),
	dataset_type       TEXT NOT NULL,
	source_url         TEXT NOT NULL,
	raw_payload        JSONB NOT NULL,
	parser_version     TEXT NOT NULL,
	status             TEXT NOT NULL,
	parse_summary_json JSONB NOT NULL,
	created_by_id      TEXT,
	created_at         TIMESTAMPTZ NOT NULL
);`

const upsertDraftSQL = `
INSERT INTO set_drafts (id, set_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (set_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
RETURNING id`

const insertJobSQL = `
INSERT INTO set_ingestion_jobs (
	id,
	set_id,
	draft_id,
	dataset_type,
	source_url,
	raw_payload,
	parser_version,
	status,
	parse_summary_json,
	created_by_id,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`

const selectJobSQL = `
SELECT id, set_id, draft_id, dataset_type, source_url, raw_payload, parser_version,
	status, parse_summary_json, created_by_id, created_at
FROM set_ingestion_jobs
WHERE id = $1`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// JobStore writes drafts and ingestion jobs into Postgres.
type JobStore struct {
	pool pool
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: p}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(p pool) (*JobStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: p}, nil
}

// Migrate creates the tables when they do not exist.
func (s *JobStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *JobStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveImport upserts the draft and inserts the job in one transaction.
func (s *JobStore) SaveImport(ctx context.Context, job setops.IngestionJob) (setops.IngestionJob, error) {
	payload, summary, err := storage.EncodeJob(job)
	if err != nil {
		return setops.IngestionJob{}, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return setops.IngestionJob{}, fmt.Errorf("begin tx: %w", err)
	}

	var draftID string
	err = tx.QueryRow(ctx, upsertDraftSQL, job.DraftID, job.SetID, setops.DraftStatus, job.CreatedAt).Scan(&draftID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return setops.IngestionJob{}, fmt.Errorf("upsert draft: %w", err)
	}
	job.DraftID = draftID

	_, err = tx.Exec(ctx, insertJobSQL,
		job.ID,
		job.SetID,
		job.DraftID,
		string(job.DatasetType),
		job.SourceURL,
		payload,
		job.ParserVersion,
		string(job.Status),
		summary,
		storage.NullString(job.CreatedByID),
		job.CreatedAt,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return setops.IngestionJob{}, fmt.Errorf("insert job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
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
		payload   []byte
		summary   []byte
		createdBy *string
	)
	err := s.pool.QueryRow(ctx, selectJobSQL, jobID).Scan(
		&job.ID,
		&job.SetID,
		&job.DraftID,
		&dataset,
		&job.SourceURL,
		&payload,
		&job.ParserVersion,
		&status,
		&summary,
		&createdBy,
		&job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return setops.IngestionJob{}, setops.ErrNotFound
	}
	if err != nil {
		return setops.IngestionJob{}, fmt.Errorf("select job: %w", err)
	}
	job.DatasetType = setops.DatasetType(dataset)
	job.Status = setops.JobStatus(status)
	if createdBy != nil {
		job.CreatedByID = *createdBy
	}
	if err := storage.DecodeJob(&job, payload, summary); err != nil {
		return setops.IngestionJob{}, err
	}
	return job, nil
}
