package app

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tenkings/setops-ingest/internal/config"
	localstorage "github.com/tenkings/setops-ingest/internal/storage/local"
	memoryStorage "github.com/tenkings/setops-ingest/internal/storage/memory"
	sqlitestore "github.com/tenkings/setops-ingest/internal/storage/sqlite"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Fetch.HostGapMs = 0
	return cfg
}

func TestBuild_MemoryDefaults(t *testing.T) {
	ctx := context.Background()

	a, err := Build(ctx, defaultConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.NotNil(t, a.Logger())
	assert.NotNil(t, a.Sources())
	assert.NotNil(t, a.Discovery())
	assert.NotNil(t, a.Importer())
	assert.IsType(t, &memoryStorage.JobStore{}, a.Jobs())
	assert.Nil(t, a.archive)
	assert.Nil(t, a.pubsubClient)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuild_SQLiteStore(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig(t)
	cfg.Storage.Driver = config.DriverSQLite
	cfg.Storage.DSN = ":memory:"

	a, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.IsType(t, &sqlitestore.JobStore{}, a.Jobs())
	require.NoError(t, a.Jobs().Ping(ctx))
}

func TestBuild_LocalArchive(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig(t)
	cfg.Storage.ArchiveDir = t.TempDir()

	a, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)

	blobs, err := setupArchive(ctx, a)
	require.NoError(t, err)
	assert.IsType(t, &localstorage.BlobStore{}, blobs)
}

func TestBuild_UnknownProvider(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Discovery.Providers = []string{"duckduckgo", "altavista"}

	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "altavista")
}

func TestBuild_UnknownStorageDriver(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Storage.Driver = "cassandra"

	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestBuild_ParseRouteUsesDispatcher(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, defaultConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "list.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Card,Player\n1,Mike Trout\n2,Shohei Ohtani\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/sources/parse", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rowCount":2`)
	assert.Contains(t, rec.Body.String(), "csv-v1")
}

func TestSetupProviders(t *testing.T) {
	providers, err := setupProviders([]string{"bing", "duckduckgo"}, nil)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "bing", providers[0].Name())
	assert.Equal(t, "duckduckgo", providers[1].Name())
}
