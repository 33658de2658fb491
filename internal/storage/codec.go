// Package storage holds the persistence backends for drafts, ingestion jobs and archived sources.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/tenkings/setops-ingest/internal/setops"
)

// EncodeJob returns the JSON columns of an ingestion job.
func EncodeJob(job setops.IngestionJob) (payload []byte, summary []byte, err error) {
	rows := job.RawPayload
	if rows == nil {
		rows = []setops.NormalizedRow{}
	}
	if payload, err = json.Marshal(rows); err != nil {
		return nil, nil, fmt.Errorf("marshal raw payload: %w", err)
	}
	if summary, err = json.Marshal(job.ParseSummary); err != nil {
		return nil, nil, fmt.Errorf("marshal parse summary: %w", err)
	}
	return payload, summary, nil
}

// DecodeJob fills the JSON columns of job.
func DecodeJob(job *setops.IngestionJob, payload, summary []byte) error {
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &job.RawPayload); err != nil {
			return fmt.Errorf("unmarshal raw payload: %w", err)
		}
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &job.ParseSummary); err != nil {
			return fmt.Errorf("unmarshal parse summary: %w", err)
		}
	}
	return nil
}

// NullString maps "" to nil for nullable text columns.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
