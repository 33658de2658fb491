package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenkings/setops-ingest/internal/hash/sha256"
	"github.com/tenkings/setops-ingest/internal/normalize"
	pubmemory "github.com/tenkings/setops-ingest/internal/publisher/memory"
	"github.com/tenkings/setops-ingest/internal/setops"
	"github.com/tenkings/setops-ingest/internal/source"
	"github.com/tenkings/setops-ingest/internal/storage/memory"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return testNow }

type sequenceIDs struct{ n int }

func (s *sequenceIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

type stubFetcher struct {
	contentType string
	body        string
	err         error
	calls       int
}

func (f *stubFetcher) FetchWithRetry(_ context.Context, rawURL string, _ int) (setops.FetchResponse, int, error) {
	f.calls++
	if f.err != nil {
		return setops.FetchResponse{}, 3, f.err
	}
	return setops.FetchResponse{
		URL:        rawURL,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {f.contentType}},
		Body:       []byte(f.body),
	}, 1, nil
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

type harness struct {
	fetcher  *stubFetcher
	jobs     *memory.JobStore
	blobs    *memory.BlobStore
	pub      *pubmemory.Publisher
	importer *Importer
}

func newHarness(f *stubFetcher, blobs setops.BlobStore) *harness {
	h := &harness{
		fetcher: f,
		jobs:    memory.NewJobStore(),
		blobs:   memory.NewBlobStore(),
		pub:     pubmemory.New(),
	}
	if blobs == nil {
		blobs = h.blobs
	}
	dispatcher := source.New(f, nil, fixedClock{}, source.Config{Attempts: 3, MaxDepth: source.DefaultMaxDepth}, nil)
	h.importer = New(dispatcher, h.jobs, blobs, h.pub, &sequenceIDs{}, fixedClock{},
		Config{Thresholds: normalize.DefaultThresholds(), ArchivePrefix: "sources", Topic: "jobs"}, nil)
	return h
}

func checklistCSV(rows, emptyParallel int) string {
	var sb strings.Builder
	sb.WriteString("Set,Parallel,CardNumber\n")
	for i := 1; i <= rows; i++ {
		parallel := "Gold Refractor"
		if i <= emptyParallel {
			parallel = ""
		}
		fmt.Fprintf(&sb, "2023 Topps Chrome,%s,%d\n", parallel, i)
	}
	return sb.String()
}

func TestImportDiscoveredSourceQueuesJob(t *testing.T) {
	t.Parallel()

	h := newHarness(&stubFetcher{contentType: "text/csv", body: checklistCSV(50, 0)}, nil)
	res, err := h.importer.ImportDiscoveredSource(context.Background(), ImportParams{
		DatasetType:    setops.DatasetParallelDB,
		SourceURL:      "https://example.com/2023-topps-chrome.csv",
		SourceProvider: "duckduckgo",
		DiscoveryQuery: "2023 Topps Chrome checklist",
		CreatedByID:    "user-7",
	})
	require.NoError(t, err)

	require.Equal(t, 50, res.Preview.RowCount)
	require.Len(t, res.Preview.SampleRows, PreviewRows)
	require.Equal(t, "2023 Topps Chrome", res.Preview.SetID)
	require.Equal(t, setops.JobStatusQueued, res.Job.Status)
	require.Equal(t, "id-1", res.Job.ID)
	require.Equal(t, "id-2", res.Job.DraftID)
	require.Equal(t, "csv-v1", res.Job.ParserVersion)
	require.Len(t, res.Job.RawPayload, 50)
	require.Equal(t, "Gold Refractor", res.Job.RawPayload[0].Parallel)
	require.Equal(t, "1", res.Job.RawPayload[0].CardNumber)
	require.Equal(t, "https://example.com/2023-topps-chrome.csv", res.Job.RawPayload[0].SourceURL)

	summary := res.Job.ParseSummary
	assert.Equal(t, "duckduckgo", summary.SourceProvider)
	assert.Equal(t, "2023 Topps Chrome checklist", summary.DiscoveryQuery)
	assert.Equal(t, "csv-v1", summary.ParserName)
	assert.Equal(t, "text/csv", summary.ContentType)
	assert.Equal(t, 1, summary.FetchAttempts)
	assert.Equal(t, testNow, summary.FetchedAt)
	assert.Equal(t, 50, summary.ParsedRows)
	assert.Equal(t, 0, summary.RejectedRows)
	assert.Equal(t, "memory://sources/2023-topps-chrome/id-1.csv", summary.ArchiveURI)
	wantSum, err := sha256.New().Hash([]byte(checklistCSV(50, 0)))
	require.NoError(t, err)
	assert.Equal(t, wantSum, summary.ContentSHA256)

	stored, err := h.jobs.GetJob(context.Background(), "id-1")
	require.NoError(t, err)
	require.Equal(t, res.Job, stored)
	_, _, ok := h.blobs.Object("sources/2023-topps-chrome/id-1.csv")
	require.True(t, ok)

	msgs := h.pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "jobs", msgs[0].Topic)
	var event setops.JobQueuedEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &event))
	require.Equal(t, 50, event.RowCount)
	require.Equal(t, "id-2", event.DraftID)
}

func TestImportRejectsMostlyEmptyParallels(t *testing.T) {
	t.Parallel()

	h := newHarness(&stubFetcher{contentType: "text/csv", body: checklistCSV(50, 45)}, nil)
	_, err := h.importer.ImportDiscoveredSource(context.Background(), ImportParams{
		DatasetType: setops.DatasetParallelDB,
		SourceURL:   "https://example.com/list.csv",
	})
	require.ErrorIs(t, err, setops.ErrQuality)
	require.Contains(t, setops.Message(err), "mostly non-checklist content")

	_, ok := h.jobs.Draft("2023 Topps Chrome")
	require.False(t, ok)
	require.Empty(t, h.pub.Messages())
	_, _, ok = h.blobs.Object("sources/2023-topps-chrome/id-1.csv")
	require.False(t, ok)
}

func TestImportMapsAccessDeniedToUploadHint(t *testing.T) {
	t.Parallel()

	denied := setops.Wrap(setops.KindFetch, "fetch failed", &setops.StatusError{URL: "https://example.com/x.pdf", StatusCode: http.StatusForbidden})
	h := newHarness(&stubFetcher{err: denied}, nil)
	_, err := h.importer.ImportDiscoveredSource(context.Background(), ImportParams{
		DatasetType: setops.DatasetParallelDB,
		SourceURL:   "https://example.com/x.pdf",
	})
	require.ErrorIs(t, err, setops.ErrFetch)
	require.Contains(t, setops.Message(err), "upload it manually")
	require.Contains(t, setops.Message(err), "403")
}

func TestImportValidatesBeforeFetching(t *testing.T) {
	t.Parallel()

	cases := []ImportParams{
		{DatasetType: "CARDS", SourceURL: "https://example.com/list.csv"},
		{DatasetType: setops.DatasetParallelDB, SourceURL: "/relative/list.csv"},
		{DatasetType: setops.DatasetParallelDB, SourceURL: "ftp://example.com/list.csv"},
		{DatasetType: setops.DatasetParallelDB, SourceURL: "https://duckduckgo.com/?q=topps+checklist"},
		{DatasetType: setops.DatasetParallelDB, SourceURL: "https://www.tcdb.com/Search.cfm?SearchCategory=Sets&q=topps"},
	}
	for _, params := range cases {
		f := &stubFetcher{contentType: "text/csv", body: checklistCSV(5, 0)}
		h := newHarness(f, nil)
		_, err := h.importer.ImportDiscoveredSource(context.Background(), params)
		require.ErrorIs(t, err, setops.ErrInput, params.SourceURL)
		require.Zero(t, f.calls, params.SourceURL)
	}
}

func TestImportFailsWhenSetCannotBeInferred(t *testing.T) {
	t.Parallel()

	h := newHarness(&stubFetcher{contentType: "text/csv", body: "Parallel,CardNumber\nGold,1\nGold,2\n"}, nil)
	_, err := h.importer.ImportDiscoveredSource(context.Background(), ImportParams{
		DatasetType: setops.DatasetParallelDB,
		SourceURL:   "https://example.com/list.csv",
	})
	require.ErrorIs(t, err, setops.ErrInference)

	res, err := h.importer.ImportDiscoveredSource(context.Background(), ImportParams{
		SetID:       "2023 Bowman",
		DatasetType: setops.DatasetParallelDB,
		SourceURL:   "https://example.com/list.csv",
	})
	require.NoError(t, err)
	require.Equal(t, "2023 Bowman", res.Job.SetID)
}

func TestImportSurvivesArchiveAndPublishFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(&stubFetcher{contentType: "text/csv", body: checklistCSV(10, 0)}, failingBlobs{})
	h.pub.FailWith(errors.New("topic not found"))
	res, err := h.importer.ImportDiscoveredSource(context.Background(), ImportParams{
		DatasetType: setops.DatasetParallelDB,
		SourceURL:   "https://example.com/list.csv",
	})
	require.NoError(t, err)
	require.Empty(t, res.Job.ParseSummary.ArchiveURI)
	_, err = h.jobs.GetJob(context.Background(), res.Job.ID)
	require.NoError(t, err)
}

func TestImportUploadedFile(t *testing.T) {
	t.Parallel()

	h := newHarness(&stubFetcher{}, nil)
	res, err := h.importer.ImportUploadedFile(context.Background(), ImportParams{
		SetID:       "2023 Bowman",
		DatasetType: setops.DatasetPlayerWorksheet,
	}, source.UploadedFile{
		FileName: "bowman.txt",
		Buffer:   []byte("Base Set\n1 Mike Trout\n2 Aaron Judge\n3 Juan Soto\n"),
	})
	require.NoError(t, err)
	require.Equal(t, 3, res.Preview.RowCount)
	require.Equal(t, source.ParserPlainText, res.Preview.ParserName)
	require.Equal(t, ProviderUpload, res.Job.ParseSummary.SourceProvider)
	require.Equal(t, "bowman", res.Job.ParseSummary.SourceTitle)
	require.Equal(t, "Aaron Judge", res.Job.RawPayload[1].PlayerSeed)
	require.Equal(t, "memory://sources/2023-bowman/id-1.txt", res.Job.ParseSummary.ArchiveURI)
	require.Zero(t, h.fetcher.calls)

	_, err = h.importer.ImportUploadedFile(context.Background(), ImportParams{
		DatasetType: setops.DatasetPlayerWorksheet,
	}, source.UploadedFile{FileName: "scan.pdf", Buffer: []byte("%PDF-1.4\n")})
	require.ErrorIs(t, err, setops.ErrParse)
}

func TestIsSearchPage(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"https://www.bing.com/search?q=topps":                     true,
		"https://www.cardboardconnection.com/?s=2023+topps":       true,
		"https://www.beckett.com/search/?term=topps":              true,
		"https://www.beckett.com/search/":                         true,
		"https://example.com/research-checklist":                  false,
		"https://example.com/?p=123":                              false,
		"https://example.com/2023-topps-checklist?utm_source=x":   false,
		"https://www.tcdb.com/ViewSet.cfm/sid/1/2023-Topps-Chrome": false,
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, want, isSearchPage(u), raw)
	}
}

func TestArchivePath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "sources/2023-topps-chrome/j1.pdf", archivePath("/sources/", "2023 Topps Chrome", "j1", ".pdf"))
	require.Equal(t, "unknown-set/j1.txt", archivePath("", "!!!", "j1", ".txt"))
	require.Equal(t, ".md", archiveExt(sourceData{parser: "markdown-checklist-v1+checklist-link-v1"}))
	require.Equal(t, ".csv", archiveExt(sourceData{fileName: "LIST.CSV", parser: "pdf-checklist-v1"}))
}
