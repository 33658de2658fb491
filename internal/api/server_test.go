package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tenkings/setops-ingest/internal/clock/system"
	"github.com/tenkings/setops-ingest/internal/config"
	"github.com/tenkings/setops-ingest/internal/discovery"
	"github.com/tenkings/setops-ingest/internal/ingest"
	"github.com/tenkings/setops-ingest/internal/setops"
	"github.com/tenkings/setops-ingest/internal/source"
	memoryStorage "github.com/tenkings/setops-ingest/internal/storage/memory"
)

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) SearchSetSources(ctx context.Context, q discovery.Query) ([]setops.DiscoveryResult, error) {
	args := m.Called(ctx, q)
	results, _ := args.Get(0).([]setops.DiscoveryResult)
	return results, args.Error(1)
}

type mockImporter struct {
	mock.Mock
}

func (m *mockImporter) ImportDiscoveredSource(ctx context.Context, params ingest.ImportParams) (ingest.Result, error) {
	args := m.Called(ctx, params)
	res, _ := args.Get(0).(ingest.Result)
	return res, args.Error(1)
}

func (m *mockImporter) ImportUploadedFile(
	ctx context.Context,
	params ingest.ImportParams,
	file source.UploadedFile,
) (ingest.Result, error) {
	args := m.Called(ctx, params, file)
	res, _ := args.Get(0).(ingest.Result)
	return res, args.Error(1)
}

type failingStore struct {
	*memoryStorage.JobStore
}

func (failingStore) Ping(context.Context) error {
	return context.DeadlineExceeded
}

type harness struct {
	searcher *mockSearcher
	importer *mockImporter
	jobs     *memoryStorage.JobStore
	server   *Server
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, MaxUploadBytes: 1 << 20},
		Fetch:  config.FetchConfig{Attempts: 3, TimeoutSeconds: 5},
	}
}

func newHarness(cfg config.Config) *harness {
	h := &harness{
		searcher: &mockSearcher{},
		importer: &mockImporter{},
		jobs:     memoryStorage.NewJobStore(),
	}
	parser := source.New(nil, nil, system.New(), source.Config{Attempts: 1, MaxDepth: source.DefaultMaxDepth}, nil)
	h.server = NewServer(h.searcher, h.importer, parser, h.jobs, cfg, zap.NewNop())
	return h
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, target, fileName string, body []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile(uploadField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	h := newHarness(testConfig())

	rec := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = h.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ready")

	rec = h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ReadyzReportsStoreFailure(t *testing.T) {
	t.Parallel()

	parser := source.New(nil, nil, system.New(), source.Config{Attempts: 1}, nil)
	server := NewServer(&mockSearcher{}, &mockImporter{}, parser,
		failingStore{memoryStorage.NewJobStore()}, testConfig(), nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_SearchSources(t *testing.T) {
	t.Parallel()

	h := newHarness(testConfig())
	want := []setops.DiscoveryResult{{ID: "r1", URL: "https://www.tcdb.com/x", Score: 42}}
	h.searcher.On("SearchSetSources", mock.Anything, discovery.Query{Year: 2023, Manufacturer: "Topps"}).
		Return(want, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/v1/sources/search",
		bytes.NewBufferString(`{"year":2023,"manufacturer":"Topps"}`))
	rec := h.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Results, 1)
	require.Equal(t, "https://www.tcdb.com/x", got.Results[0].URL)
	h.searcher.AssertExpectations(t)
}

func TestServer_SearchSourcesEmptyResultsEncodeAsArray(t *testing.T) {
	t.Parallel()

	h := newHarness(testConfig())
	h.searcher.On("SearchSetSources", mock.Anything, mock.Anything).Return(nil, nil).Once()

	rec := h.do(httptest.NewRequest(http.MethodPost, "/v1/sources/search", bytes.NewBufferString(`{"query":"x"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"results":[]}`, rec.Body.String())
}

func TestServer_SearchSourcesInvalidJSON(t *testing.T) {
	t.Parallel()

	h := newHarness(testConfig())
	rec := h.do(httptest.NewRequest(http.MethodPost, "/v1/sources/search", bytes.NewBufferString("{invalid")))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	h.searcher.AssertNotCalled(t, "SearchSetSources", mock.Anything, mock.Anything)
}

func TestServer_ErrorKindsMapToStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"input", setops.Errorf(setops.KindInput, "Set ID is required."), http.StatusBadRequest},
		{"fetch", setops.Errorf(setops.KindFetch, "Source blocked (HTTP 403)."), http.StatusBadGateway},
		{"parse", setops.Errorf(setops.KindParse, "Could not parse rows from source URL."), http.StatusUnprocessableEntity},
		{"inference", setops.Errorf(setops.KindInference, "Could not infer set."), http.StatusUnprocessableEntity},
		{"quality", setops.Errorf(setops.KindQuality, "mostly non-checklist content"), http.StatusUnprocessableEntity},
		{"loop", setops.Errorf(setops.KindLoop, "redirect loop"), http.StatusLoopDetected},
		{"discovery", setops.Errorf(setops.KindDiscovery, "Source search failed"), http.StatusBadGateway},
		{"unclassified", context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(testConfig())
			h.importer.On("ImportDiscoveredSource", mock.Anything, mock.Anything).
				Return(ingest.Result{}, tc.err).Once()

			req := httptest.NewRequest(http.MethodPost, "/v1/sources/import",
				bytes.NewBufferString(`{"datasetType":"PARALLEL_DB","sourceUrl":"https://example.com/a.csv"}`))
			rec := h.do(req)

			require.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			if tc.status == http.StatusInternalServerError {
				require.Equal(t, "internal server error", body.Error)
				return
			}
			require.Equal(t, setops.Message(tc.err), body.Error)
			require.Equal(t, string(setops.KindOf(tc.err)), body.Kind)
		})
	}
}

func TestServer_ImportSourceAccepted(t *testing.T) {
	t.Parallel()

	h := newHarness(testConfig())
	params := ingest.ImportParams{
		SetID:       "2023 Topps Chrome",
		DatasetType: setops.DatasetParallelDB,
		SourceURL:   "https://example.com/a.csv",
	}
	result := ingest.Result{
		Job:     setops.IngestionJob{ID: "job-1", Status: setops.JobStatusQueued},
		Preview: ingest.Preview{SetID: "2023 Topps Chrome", RowCount: 50},
	}
	h.importer.On("ImportDiscoveredSource", mock.Anything, params).Return(result, nil).Once()

	body, err := json.Marshal(params)
	require.NoError(t, err)
	rec := h.do(httptest.NewRequest(http.MethodPost, "/v1/sources/import", bytes.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"job-1"`)
	require.Contains(t, rec.Body.String(), `"rowCount":50`)
	h.importer.AssertExpectations(t)
}

func TestServer_UploadSource(t *testing.T) {
	t.Parallel()

	h := newHarness(testConfig())
	content := []byte("Set\tParallel\nA\tGold\n")
	h.importer.On("ImportUploadedFile", mock.Anything,
		ingest.ImportParams{SetID: "Bowman 2024", DatasetType: setops.DatasetPlayerWorksheet},
		mock.MatchedBy(func(f source.UploadedFile) bool {
			return f.FileName == "list.tsv" && bytes.Equal(f.Buffer, content)
		}),
	).Return(ingest.Result{Job: setops.IngestionJob{ID: "job-2"}}, nil).Once()

	req := multipartRequest(t, "/v1/sources/upload", "list.tsv", content, map[string]string{
		"setId":       "Bowman 2024",
		"datasetType": "PLAYER_WORKSHEET",
	})
	rec := h.do(req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "job-2")
	h.importer.AssertExpectations(t)
}

func TestServer_UploadMissingFile(t *testing.T) {
	t.Parallel()

	h := newHarness(testConfig())
	rec := h.do(multipartRequest(t, "/v1/sources/upload", "", nil, map[string]string{"setId": "x"}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeError(t, rec).Error, `"file"`)
	h.importer.AssertNotCalled(t, "ImportUploadedFile", mock.Anything, mock.Anything, mock.Anything)
}

func TestServer_UploadTooLarge(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.MaxUploadBytes = 64
	h := newHarness(cfg)
	rec := h.do(multipartRequest(t, "/v1/sources/upload", "big.csv", bytes.Repeat([]byte("a,b\n"), 100), nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ParseUploadDryRun(t *testing.T) {
	t.Parallel()

	h := newHarness(testConfig())
	rec := h.do(multipartRequest(t, "/v1/sources/parse", "list.tsv", []byte("Set\tParallel\nA\tGold\nB\tSilver\n"), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got parseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, source.ParserCSV, got.ParserName)
	require.Equal(t, 2, got.RowCount)
	require.Equal(t, setops.Record{"Set": "A", "Parallel": "Gold"}, got.SampleRows[0])

	_, found := h.jobs.Draft("A")
	require.False(t, found)
}

func TestServer_ParseUploadExplainsScannedPDF(t *testing.T) {
	t.Parallel()

	h := newHarness(testConfig())
	scanned := []byte("%PDF-1.4\n1 0 obj\n<< /Subtype /Image >>\nstream\nxx\nendstream\n")
	rec := h.do(multipartRequest(t, "/v1/sources/parse", "scan.pdf", scanned, nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, decodeError(t, rec).Error, "scanned")
}

func TestServer_GetJob(t *testing.T) {
	t.Parallel()

	h := newHarness(testConfig())
	_, err := h.jobs.SaveImport(context.Background(), setops.IngestionJob{
		ID:          "job-status",
		SetID:       "2023 Topps Chrome",
		DraftID:     "draft-1",
		DatasetType: setops.DatasetParallelDB,
		Status:      setops.JobStatusQueued,
		CreatedAt:   time.Unix(100, 0).UTC(),
	})
	require.NoError(t, err)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/v1/jobs/job-status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "QUEUED")

	rec = h.do(httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_APIKeyGuardsV1Only(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	h := newHarness(cfg)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/v1/jobs/x", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/x", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = h.do(req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/v1/jobs/x?api_key=secret", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	h := newHarness(testConfig())
	h.searcher.On("SearchSetSources", mock.Anything, mock.Anything).Panic("boom").Once()

	rec := h.do(httptest.NewRequest(http.MethodPost, "/v1/sources/search", bytes.NewBufferString(`{"query":"x"}`)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestBudget(t *testing.T) {
	t.Parallel()

	require.Equal(t, 30*time.Second, requestBudget(testConfig()))
	require.Equal(t, 60*time.Second, requestBudget(config.Config{}))
}
