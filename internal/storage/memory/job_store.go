package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/tenkings/setops-ingest/internal/setops"
)

// JobStore provides an in-memory draft and job store for development/testing.
type JobStore struct {
	mu     sync.RWMutex
	drafts map[string]setops.Draft
	jobs   map[string]setops.IngestionJob
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		drafts: make(map[string]setops.Draft),
		jobs:   make(map[string]setops.IngestionJob),
	}
}

// SaveImport upserts the draft for job.SetID and stores the job against it.
func (s *JobStore) SaveImport(_ context.Context, job setops.IngestionJob) (setops.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return setops.IngestionJob{}, errors.New("job already exists")
	}
	draft, ok := s.drafts[job.SetID]
	if ok {
		draft.UpdatedAt = job.CreatedAt
	} else {
		draft = setops.Draft{
			ID:        job.DraftID,
			SetID:     job.SetID,
			Status:    setops.DraftStatus,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.CreatedAt,
		}
	}
	s.drafts[job.SetID] = draft
	job.DraftID = draft.ID
	s.jobs[job.ID] = job
	return job, nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (setops.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return setops.IngestionJob{}, setops.ErrNotFound
	}
	return job, nil
}

// Draft returns the draft stored for a set.
func (s *JobStore) Draft(setID string) (setops.Draft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[setID]
	return d, ok
}

// Ping always succeeds.
func (s *JobStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *JobStore) Close() {}
