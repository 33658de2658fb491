package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tenkings/setops-ingest/internal/api"
	"github.com/tenkings/setops-ingest/internal/discovery"
	"github.com/tenkings/setops-ingest/internal/ingest"
	"github.com/tenkings/setops-ingest/internal/setops"
	"github.com/tenkings/setops-ingest/internal/source"
)

type fakeApp struct {
	closed   bool
	ran      bool
	query    discovery.Query
	params   ingest.ImportParams
	uploaded source.UploadedFile
	err      error
}

func (f *fakeApp) Close(context.Context) { f.closed = true }
func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }
func (f *fakeApp) Searcher() api.Searcher { return f }
func (f *fakeApp) Importer() api.Importer { return f }
func (f *fakeApp) Parser() api.UploadParser {
	return f
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return f.err
}

func (f *fakeApp) SearchSetSources(_ context.Context, q discovery.Query) ([]setops.DiscoveryResult, error) {
	f.query = q
	if f.err != nil {
		return nil, f.err
	}
	return []setops.DiscoveryResult{{ID: "r1", URL: "https://www.tcdb.com/x"}}, nil
}

func (f *fakeApp) ImportDiscoveredSource(_ context.Context, p ingest.ImportParams) (ingest.Result, error) {
	f.params = p
	return ingest.Result{Job: setops.IngestionJob{ID: "job-url"}}, f.err
}

func (f *fakeApp) ImportUploadedFile(_ context.Context, p ingest.ImportParams, file source.UploadedFile) (ingest.Result, error) {
	f.params = p
	f.uploaded = file
	return ingest.Result{Job: setops.IngestionJob{ID: "job-file"}}, f.err
}

func (f *fakeApp) ParseUploadedSourceFile(file source.UploadedFile) (source.ParsedUpload, error) {
	f.uploaded = file
	rows := make([]setops.Record, 8)
	for i := range rows {
		rows[i] = setops.Record{"card": "x"}
	}
	return source.ParsedUpload{Rows: rows, ParserName: source.ParserCSV}, f.err
}

func runCLI(t *testing.T, fake *fakeApp, args ...string) (string, error) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return fake, nil }
	t.Cleanup(func() { newApp = orig })

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSearchCommand(t *testing.T) {
	fake := &fakeApp{}
	out, err := runCLI(t, fake, "search", "--year", "2023", "--manufacturer", "Topps", "--limit", "4")
	require.NoError(t, err)

	assert.Equal(t, discovery.Query{Year: 2023, Manufacturer: "Topps", Limit: 4}, fake.query)
	var results []setops.DiscoveryResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.True(t, fake.closed)
}

func TestSearchCommandReportsKind(t *testing.T) {
	fake := &fakeApp{err: setops.Errorf(setops.KindDiscovery, "Source search failed: x")}
	_, err := runCLI(t, fake, "search", "--query", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery: Source search failed")
	assert.ErrorIs(t, err, setops.ErrDiscovery)
}

func TestImportCommandURL(t *testing.T) {
	fake := &fakeApp{}
	out, err := runCLI(t, fake, "import", "--url", "https://example.com/a.csv", "--set-id", "2023 Topps")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/a.csv", fake.params.SourceURL)
	assert.Equal(t, setops.DatasetParallelDB, fake.params.DatasetType)
	assert.Contains(t, out, "job-url")
}

func TestImportCommandFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bowman.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o600))

	fake := &fakeApp{}
	out, err := runCLI(t, fake, "import", "--file", path, "--dataset", "PLAYER_WORKSHEET")
	require.NoError(t, err)

	assert.Equal(t, "bowman.csv", fake.uploaded.FileName)
	assert.Equal(t, []byte("a,b\n"), fake.uploaded.Buffer)
	assert.Equal(t, setops.DatasetPlayerWorksheet, fake.params.DatasetType)
	assert.Contains(t, out, "job-file")
}

func TestImportCommandNeedsSource(t *testing.T) {
	_, err := runCLI(t, &fakeApp{}, "import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--url or --file")
}

func TestParseCommandLimitsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.csv")
	require.NoError(t, os.WriteFile(path, []byte("card\nx\n"), 0o600))

	out, err := runCLI(t, &fakeApp{}, "parse", path, "--limit", "3")
	require.NoError(t, err)

	var got parseOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 8, got.RowCount)
	assert.Len(t, got.Rows, 3)
	assert.Equal(t, "list.csv", got.FileName)
}

func TestServeCommand(t *testing.T) {
	fake := &fakeApp{}
	_, err := runCLI(t, fake, "serve")
	require.NoError(t, err)
	assert.True(t, fake.ran)
}

func TestAppInitFailure(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("boom") }
	t.Cleanup(func() { newApp = orig })

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"search"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize application services")
}
