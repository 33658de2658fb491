// Package ingest turns a fetched or uploaded checklist source into a queued ingestion job.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tenkings/setops-ingest/internal/fetcher"
	"github.com/tenkings/setops-ingest/internal/hash/sha256"
	"github.com/tenkings/setops-ingest/internal/logging"
	"github.com/tenkings/setops-ingest/internal/metrics"
	"github.com/tenkings/setops-ingest/internal/normalize"
	"github.com/tenkings/setops-ingest/internal/setops"
	"github.com/tenkings/setops-ingest/internal/source"
)

// PreviewRows is how many accepted rows an import returns for review.
const PreviewRows = 5

// ProviderUpload is recorded as the source provider of uploaded files.
const ProviderUpload = "upload"

// SourceParser fetches or parses checklist sources into records.
type SourceParser interface {
	FetchRowsFromSource(ctx context.Context, rawURL string) (setops.SourceFetchResult, error)
	ParseUploadedSourceFile(file source.UploadedFile) (source.ParsedUpload, error)
}

// Config tunes the importer.
type Config struct {
	Thresholds    normalize.Thresholds
	ArchivePrefix string
	Topic         string
	// Hasher digests the raw source; defaults to SHA-256.
	Hasher setops.Hasher
}

// Importer validates, parses, filters and persists checklist imports.
type Importer struct {
	sources   SourceParser
	jobs      setops.JobStore
	blobs     setops.BlobStore
	publisher setops.Publisher
	ids       setops.IDGenerator
	clock     setops.Clock
	cfg       Config
	logger    *zap.Logger
}

// New wires an Importer. blobs and publisher may be nil.
func New(
	sources SourceParser,
	jobs setops.JobStore,
	blobs setops.BlobStore,
	publisher setops.Publisher,
	ids setops.IDGenerator,
	clock setops.Clock,
	cfg Config,
	logger *zap.Logger,
) *Importer {
	if cfg.Thresholds == (normalize.Thresholds{}) {
		cfg.Thresholds = normalize.DefaultThresholds()
	}
	if cfg.Hasher == nil {
		cfg.Hasher = sha256.New()
	}
	return &Importer{
		sources:   sources,
		jobs:      jobs,
		blobs:     blobs,
		publisher: publisher,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logging.OrNop(logger),
	}
}

// Preview summarizes an import for the operator.
type Preview struct {
	SetID            string                 `json:"setId"`
	ParserName       string                 `json:"parserName"`
	RowCount         int                    `json:"rowCount"`
	ParsedRows       int                    `json:"parsedRows"`
	RejectedRows     int                    `json:"rejectedRows"`
	RejectionReasons map[string]int         `json:"rejectionReasons"`
	SampleRows       []setops.NormalizedRow `json:"sampleRows"`
}

// Result is the outcome of a successful import.
type Result struct {
	Job     setops.IngestionJob `json:"job"`
	Preview Preview             `json:"preview"`
}

// sourceData is the parser output shared by URL and upload imports.
type sourceData struct {
	url         string
	title       string
	rows        []setops.Record
	parser      string
	contentType string
	fetchedAt   time.Time
	attempts    int
	body        []byte
	fileName    string
}

// ImportDiscoveredSource fetches params.SourceURL and queues an ingestion job for its rows.
func (im *Importer) ImportDiscoveredSource(ctx context.Context, params ImportParams) (Result, error) {
	res, err := im.importDiscovered(ctx, params)
	observe(err)
	return res, err
}

func (im *Importer) importDiscovered(ctx context.Context, params ImportParams) (Result, error) {
	if err := validateDataset(params.DatasetType); err != nil {
		return Result{}, err
	}
	sourceURL, err := parseSourceURL(params.SourceURL)
	if err != nil {
		return Result{}, err
	}
	params.SourceURL = sourceURL

	fetched, err := im.sources.FetchRowsFromSource(ctx, sourceURL)
	if err != nil {
		return Result{}, fetchFailure(err)
	}
	return im.persist(ctx, params, sourceData{
		url:         fetched.URL,
		title:       fetched.Title,
		rows:        fetched.Rows,
		parser:      fetched.ParserName,
		contentType: fetched.ContentType,
		fetchedAt:   fetched.FetchedAt,
		attempts:    fetched.Attempts,
		body:        fetched.Body,
	})
}

// ImportUploadedFile queues an ingestion job from a manually uploaded source file.
// params.SourceURL is optional and, when set, is recorded as the rows' origin.
func (im *Importer) ImportUploadedFile(ctx context.Context, params ImportParams, file source.UploadedFile) (Result, error) {
	res, err := im.importUploaded(ctx, params, file)
	observe(err)
	return res, err
}

func (im *Importer) importUploaded(ctx context.Context, params ImportParams, file source.UploadedFile) (Result, error) {
	if err := validateDataset(params.DatasetType); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(params.SourceURL) != "" {
		u, err := parseSourceURL(params.SourceURL)
		if err != nil {
			return Result{}, err
		}
		params.SourceURL = u
	}
	if params.SourceProvider == "" {
		params.SourceProvider = ProviderUpload
	}
	parsed, err := im.sources.ParseUploadedSourceFile(file)
	if err != nil {
		return Result{}, err
	}
	title := parsed.Title
	if title == "" {
		title = strings.TrimSuffix(path.Base(file.FileName), path.Ext(file.FileName))
	}
	return im.persist(ctx, params, sourceData{
		url:         params.SourceURL,
		title:       title,
		rows:        parsed.Rows,
		parser:      parsed.ParserName,
		contentType: file.ContentType,
		fetchedAt:   im.now(),
		body:        file.Buffer,
		fileName:    file.FileName,
	})
}

// fetchFailure maps access-denied statuses to a manual-upload hint.
func fetchFailure(err error) error {
	switch code := fetcher.StatusCode(err); code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return setops.Wrap(setops.KindFetch, fmt.Sprintf(
			"The source site refused the download (HTTP %d). Download the file in a browser and upload it manually.", code), err)
	}
	return err
}

func (im *Importer) persist(ctx context.Context, params ImportParams, src sourceData) (Result, error) {
	title := params.SourceTitle
	if title == "" {
		title = src.title
	}
	setID := normalize.InferSetID(src.rows, params.SetID, title)
	if setID == "" {
		return Result{}, setops.Errorf(setops.KindInference,
			"Could not determine the set from the source. Pass setId explicitly.")
	}

	rows := normalize.Rows(src.rows, normalize.Options{SetID: setID, SourceURL: src.url})
	accepted, reasons := normalize.Filter(rows, params.DatasetType)
	rejected := normalize.RejectedCount(reasons)
	metrics.ObserveRows(len(accepted), rejected, reasons)
	if err := normalize.EvaluateAcceptance(len(rows), len(accepted), im.cfg.Thresholds); err != nil {
		im.logger.Info("import rejected by quality checks",
			zap.String("source_url", src.url),
			zap.String("parser", src.parser),
			zap.Int("parsed", len(rows)),
			zap.Int("accepted", len(accepted)),
			zap.String("reasons", normalize.FormatReasons(reasons)),
		)
		return Result{}, err
	}

	jobID, err := im.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate job id: %w", err)
	}
	draftID, err := im.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate draft id: %w", err)
	}
	now := im.now()
	parserVersion := params.ParserVersion
	if parserVersion == "" {
		parserVersion = src.parser
	}

	job := setops.IngestionJob{
		ID:            jobID,
		SetID:         setID,
		DraftID:       draftID,
		DatasetType:   params.DatasetType,
		SourceURL:     src.url,
		RawPayload:    accepted,
		ParserVersion: parserVersion,
		Status:        setops.JobStatusQueued,
		ParseSummary: setops.ParseSummary{
			SourceURL:        src.url,
			SourceProvider:   params.SourceProvider,
			SourceTitle:      title,
			DiscoveryQuery:   params.DiscoveryQuery,
			ParserName:       src.parser,
			ContentType:      src.contentType,
			FetchedAt:        src.fetchedAt,
			FetchAttempts:    src.attempts,
			ParsedRows:       len(rows),
			AcceptedRows:     len(accepted),
			RejectedRows:     rejected,
			RejectionReasons: reasons,
			ArchiveURI:       im.archive(ctx, setID, jobID, src),
			ContentSHA256:    im.digest(src.body),
		},
		CreatedByID: params.CreatedByID,
		CreatedAt:   now,
	}
	job, err = im.jobs.SaveImport(ctx, job)
	if err != nil {
		return Result{}, fmt.Errorf("save import: %w", err)
	}
	im.publish(ctx, job)
	im.logger.Info("ingestion job queued",
		zap.String("job_id", job.ID),
		zap.String("set_id", job.SetID),
		zap.String("draft_id", job.DraftID),
		zap.String("parser", src.parser),
		zap.Int("rows", len(accepted)),
		zap.Int("rejected", rejected),
	)

	sample := accepted
	if len(sample) > PreviewRows {
		sample = sample[:PreviewRows]
	}
	return Result{
		Job: job,
		Preview: Preview{
			SetID:            setID,
			ParserName:       src.parser,
			RowCount:         len(accepted),
			ParsedRows:       len(rows),
			RejectedRows:     rejected,
			RejectionReasons: reasons,
			SampleRows:       sample,
		},
	}, nil
}

// archive stores the raw source bytes; failures are logged and leave the URI empty.
func (im *Importer) archive(ctx context.Context, setID, jobID string, src sourceData) string {
	if im.blobs == nil || len(src.body) == 0 {
		return ""
	}
	objectPath := archivePath(im.cfg.ArchivePrefix, setID, jobID, archiveExt(src))
	uri, err := im.blobs.PutObject(ctx, objectPath, src.contentType, bytes.NewReader(src.body))
	if err != nil {
		im.logger.Warn("archive source payload failed", zap.String("path", objectPath), zap.Error(err))
		return ""
	}
	return uri
}

func (im *Importer) digest(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum, err := im.cfg.Hasher.Hash(body)
	if err != nil {
		im.logger.Warn("hash source payload failed", zap.Error(err))
		return ""
	}
	return sum
}

func (im *Importer) publish(ctx context.Context, job setops.IngestionJob) {
	if im.publisher == nil || im.cfg.Topic == "" {
		return
	}
	event := setops.JobQueuedEvent{
		JobID:       job.ID,
		SetID:       job.SetID,
		DraftID:     job.DraftID,
		DatasetType: job.DatasetType,
		RowCount:    len(job.RawPayload),
		SourceURL:   job.SourceURL,
		CreatedAt:   job.CreatedAt,
	}
	if _, err := im.publisher.Publish(ctx, im.cfg.Topic, event); err != nil {
		im.logger.Warn("publish job queued event failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (im *Importer) now() time.Time {
	if im.clock == nil {
		return time.Now().UTC()
	}
	return im.clock.Now()
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

func archivePath(prefix, setID, jobID, ext string) string {
	slug := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(setID), "-"), "-")
	if slug == "" {
		slug = "unknown-set"
	}
	name := fmt.Sprintf("%s/%s%s", slug, jobID, ext)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		return prefix + "/" + name
	}
	return name
}

func archiveExt(src sourceData) string {
	if ext := strings.ToLower(path.Ext(src.fileName)); ext != "" {
		return ext
	}
	switch p := src.parser; {
	case strings.HasPrefix(p, "pdf"):
		return ".pdf"
	case strings.HasPrefix(p, "json"):
		return ".json"
	case strings.HasPrefix(p, "csv"):
		return ".csv"
	case strings.HasPrefix(p, "html"):
		return ".html"
	case strings.HasPrefix(p, "markdown"):
		return ".md"
	default:
		return ".txt"
	}
}

func observe(err error) {
	if err == nil {
		metrics.ObserveImport("queued")
		return
	}
	if kind := setops.KindOf(err); kind != "" {
		metrics.ObserveImport(string(kind))
		return
	}
	metrics.ObserveImport("error")
}
