package setops

import (
	"context"
	"io"
	"time"
)

// Fetcher performs a single HTTP GET and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// JobStore persists drafts and ingestion jobs.
type JobStore interface {
	// SaveImport upserts the draft keyed by job.SetID and creates the job in one unit.
	// The returned job carries the draft ID actually stored.
	SaveImport(ctx context.Context, job IngestionJob) (IngestionJob, error)
	GetJob(ctx context.Context, jobID string) (IngestionJob, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes job events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and draft IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher digests raw source bytes for provenance.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Sleeper blocks for a duration or until the context is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}
