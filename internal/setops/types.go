// Package setops defines core types shared across the discovery and ingestion subsystems.
package setops

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// Record is a loosely-typed parsed row keyed by source column or field name.
type Record map[string]string

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DatasetType selects which quality rules apply to an import.
type DatasetType string

// Dataset types accepted by the importer.
const (
	DatasetParallelDB      DatasetType = "PARALLEL_DB"
	DatasetPlayerWorksheet DatasetType = "PLAYER_WORKSHEET"
)

// Valid reports whether the dataset type is one of the known values.
func (d DatasetType) Valid() bool {
	return d == DatasetParallelDB || d == DatasetPlayerWorksheet
}

// JobStatus represents the lifecycle state of an ingestion job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued JobStatus = "QUEUED"
)

// DraftStatus is the status assigned to freshly upserted drafts.
const DraftStatus = "DRAFT"

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentType returns the response Content-Type header, if any.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// SourceFetchResult is produced per fetch+parse of a source.
type SourceFetchResult struct {
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Rows        []Record  `json:"rows"`
	ParserName  string    `json:"parserName"`
	ContentType string    `json:"contentType"`
	FetchedAt   time.Time `json:"fetchedAt"`
	Attempts    int       `json:"attempts"`
	Body        []byte    `json:"-"`
}

// DiscoveryResult is one ranked candidate source returned by discovery.
type DiscoveryResult struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Snippet      string    `json:"snippet"`
	Provider     string    `json:"provider"`
	Domain       string    `json:"domain"`
	SetIDGuess   string    `json:"setIdGuess"`
	Score        float64   `json:"score"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// NormalizedRow is a parsed record mapped onto the canonical checklist shape.
type NormalizedRow struct {
	Index      int
	SetID      string
	CardNumber string
	Parallel   string
	PlayerSeed string
	ListingID  string
	SourceURL  string
	Fields     Record
}

// Canonical JSON keys for NormalizedRow.
const (
	KeyIndex      = "index"
	KeySetID      = "setId"
	KeyCardNumber = "cardNumber"
	KeyParallel   = "parallel"
	KeyPlayerSeed = "playerSeed"
	KeyListingID  = "listingId"
	KeySourceURL  = "sourceUrl"
)

// MarshalJSON flattens the original fields and the canonical fields into one object.
// Canonical values win over original fields with the same key.
func (r NormalizedRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+7)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[KeyIndex] = r.Index
	out[KeySetID] = r.SetID
	out[KeyParallel] = r.Parallel
	out[KeyPlayerSeed] = r.PlayerSeed
	out[KeySourceURL] = r.SourceURL
	if r.CardNumber != "" {
		out[KeyCardNumber] = r.CardNumber
	} else {
		delete(out, KeyCardNumber)
	}
	if r.ListingID != "" {
		out[KeyListingID] = r.ListingID
	} else {
		delete(out, KeyListingID)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal normalized row: %w", err)
	}
	return data, nil
}

// UnmarshalJSON restores a row written by MarshalJSON.
func (r *NormalizedRow) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal normalized row: %w", err)
	}
	row := NormalizedRow{Fields: Record{}}
	for k, v := range raw {
		switch k {
		case KeyIndex:
			if f, ok := v.(float64); ok {
				row.Index = int(f)
			}
		case KeySetID:
			row.SetID = stringValue(v)
		case KeyCardNumber:
			row.CardNumber = stringValue(v)
		case KeyParallel:
			row.Parallel = stringValue(v)
		case KeyPlayerSeed:
			row.PlayerSeed = stringValue(v)
		case KeyListingID:
			row.ListingID = stringValue(v)
		case KeySourceURL:
			row.SourceURL = stringValue(v)
		default:
			row.Fields[k] = stringValue(v)
		}
	}
	*r = row
	return nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// ParseSummary is the provenance persisted alongside an ingestion job.
type ParseSummary struct {
	SourceURL        string         `json:"sourceUrl"`
	SourceProvider   string         `json:"sourceProvider,omitempty"`
	SourceTitle      string         `json:"sourceTitle,omitempty"`
	DiscoveryQuery   string         `json:"discoveryQuery,omitempty"`
	ParserName       string         `json:"parserName"`
	ContentType      string         `json:"contentType,omitempty"`
	FetchedAt        time.Time      `json:"fetchedAt"`
	FetchAttempts    int            `json:"fetchAttempts"`
	ParsedRows       int            `json:"parsedRows"`
	AcceptedRows     int            `json:"acceptedRows"`
	RejectedRows     int            `json:"rejectedRows"`
	RejectionReasons map[string]int `json:"rejectionReasons"`
	ArchiveURI       string         `json:"archiveUri,omitempty"`
	ContentSHA256    string         `json:"contentSha256,omitempty"`
}

// Draft is the mutable staging record for a set's checklist data.
type Draft struct {
	ID        string    `json:"id"`
	SetID     string    `json:"setId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IngestionJob is the queued unit of work created by one successful import.
type IngestionJob struct {
	ID            string          `json:"id"`
	SetID         string          `json:"setId"`
	DraftID       string          `json:"draftId"`
	DatasetType   DatasetType     `json:"datasetType"`
	SourceURL     string          `json:"sourceUrl"`
	RawPayload    []NormalizedRow `json:"rawPayload"`
	ParserVersion string          `json:"parserVersion"`
	Status        JobStatus       `json:"status"`
	ParseSummary  ParseSummary    `json:"parseSummaryJson"`
	CreatedByID   string          `json:"createdById,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// JobQueuedEvent is published once an ingestion job has been persisted.
type JobQueuedEvent struct {
	JobID       string      `json:"jobId"`
	SetID       string      `json:"setId"`
	DraftID     string      `json:"draftId"`
	DatasetType DatasetType `json:"datasetType"`
	RowCount    int         `json:"rowCount"`
	SourceURL   string      `json:"sourceUrl"`
	CreatedAt   time.Time   `json:"createdAt"`
}
