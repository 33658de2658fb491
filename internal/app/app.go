// Package app builds and holds the long-lived services of the ingestion service,
// acting as its dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/tenkings/setops-ingest/internal/api"
	"github.com/tenkings/setops-ingest/internal/clock/system"
	"github.com/tenkings/setops-ingest/internal/config"
	"github.com/tenkings/setops-ingest/internal/discovery"
	"github.com/tenkings/setops-ingest/internal/fetcher"
	collyfetcher "github.com/tenkings/setops-ingest/internal/fetcher/colly"
	"github.com/tenkings/setops-ingest/internal/htmltable"
	"github.com/tenkings/setops-ingest/internal/id/uuid"
	"github.com/tenkings/setops-ingest/internal/ingest"
	"github.com/tenkings/setops-ingest/internal/logging"
	"github.com/tenkings/setops-ingest/internal/metrics"
	"github.com/tenkings/setops-ingest/internal/normalize"
	"github.com/tenkings/setops-ingest/internal/policy/ratelimit"
	memorypublisher "github.com/tenkings/setops-ingest/internal/publisher/memory"
	gcppublisher "github.com/tenkings/setops-ingest/internal/publisher/pubsub"
	"github.com/tenkings/setops-ingest/internal/setops"
	"github.com/tenkings/setops-ingest/internal/source"
	gcsstorage "github.com/tenkings/setops-ingest/internal/storage/gcs"
	localstorage "github.com/tenkings/setops-ingest/internal/storage/local"
	memoryStorage "github.com/tenkings/setops-ingest/internal/storage/memory"
	pgstore "github.com/tenkings/setops-ingest/internal/storage/postgres"
	sqlitestore "github.com/tenkings/setops-ingest/internal/storage/sqlite"
)

// JobStore is a job store that can be probed and released.
type JobStore interface {
	setops.JobStore
	Ping(ctx context.Context) error
	Close()
}

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	sources      *source.Dispatcher
	discovery    *discovery.Service
	importer     *ingest.Importer
	jobs         JobStore
	apiServer    *api.Server
	archive      *gcsstorage.BlobStore
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Sources returns the source dispatcher used for fetching and parsing.
func (a *App) Sources() *source.Dispatcher { return a.sources }

// Discovery returns the source discovery service.
func (a *App) Discovery() *discovery.Service { return a.discovery }

// Importer returns the ingestion job writer.
func (a *App) Importer() *ingest.Importer { return a.importer }

// Jobs returns the configured job store.
func (a *App) Jobs() JobStore { return a.jobs }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Build creates the application's dependencies from cfg. A nil logger builds one from cfg.Logging.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	a.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Strings("providers", cfg.Discovery.Providers),
	)

	clock := system.New()
	sleeper := system.NewSleeper()
	client := setupFetcher(a, clock, sleeper)

	a.sources = source.New(
		client,
		htmltable.New(cfg.Quality.MinTableScore),
		clock,
		source.Config{Attempts: cfg.Fetch.Attempts, MaxDepth: source.DefaultMaxDepth},
		logger.Named("source"),
	)

	providers, err := setupProviders(cfg.Discovery.Providers, client)
	if err != nil {
		return nil, err
	}
	a.discovery = discovery.New(providers, discovery.Config{
		DefaultLimit:      cfg.Discovery.DefaultLimit,
		MaxLimit:          cfg.Discovery.MaxLimit,
		TrustedDomains:    cfg.Discovery.TrustedDomains,
		BlockedDomains:    cfg.Discovery.BlockedDomains,
		SyntheticFallback: cfg.Discovery.SyntheticFallback,
	}, clock, logger.Named("discovery"))

	if a.jobs, err = setupJobStore(ctx, a); err != nil {
		a.Close(ctx)
		return nil, err
	}
	blobs, err := setupArchive(ctx, a)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	publisher, err := setupPublisher(ctx, a)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.importer = ingest.New(a.sources, a.jobs, blobs, publisher, uuid.New(), clock, ingest.Config{
		Thresholds: normalize.Thresholds{
			MinAcceptRows:  cfg.Quality.MinAcceptRows,
			MinAcceptRatio: cfg.Quality.MinAcceptRatio,
			RatioFloorRows: cfg.Quality.RatioFloorRows,
		},
		ArchivePrefix: cfg.Storage.ArchivePrefix,
		Topic:         cfg.PubSub.TopicName,
	}, logger.Named("ingest"))

	a.apiServer = api.NewServer(a.discovery, a.importer, a.sources, a.jobs, cfg, logger.Named("api"))
	return a, nil
}

func setupFetcher(a *App, clock setops.Clock, sleeper setops.Sleeper) *fetcher.Client {
	cfg := a.cfg
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Accept:       cfg.Fetch.Accept,
		Timeout:      cfg.RequestBudget(),
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
	})
	throttle := ratelimit.New(ratelimit.Config{Gap: cfg.HostGap()}, clock, sleeper)
	policy := fetcher.RetryPolicy{
		MaxAttempts: cfg.Fetch.Attempts,
		BaseDelay:   time.Duration(cfg.Fetch.BackoffBaseMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Fetch.BackoffMaxMs) * time.Millisecond,
	}
	a.logger.Info("using colly fetcher",
		zap.String("user_agent", cfg.Fetch.UserAgent),
		zap.Duration("host_gap", cfg.HostGap()),
		zap.Int("attempts", policy.MaxAttempts),
	)
	return fetcher.NewClient(probe, throttle, sleeper, policy, a.logger.Named("fetcher"))
}

func setupProviders(names []string, f setops.Fetcher) ([]discovery.Provider, error) {
	providers := make([]discovery.Provider, 0, len(names))
	for _, name := range names {
		switch name {
		case discovery.ProviderDuckDuckGo:
			providers = append(providers, discovery.NewDuckDuckGo(f, discovery.DuckDuckGoEndpoint))
		case discovery.ProviderBing:
			providers = append(providers, discovery.NewBing(f, discovery.BingEndpoint))
		default:
			return nil, fmt.Errorf("unknown discovery provider: %s", name)
		}
	}
	return providers, nil
}

func setupJobStore(ctx context.Context, a *App) (JobStore, error) {
	switch a.cfg.Storage.Driver {
	case config.DriverPostgres:
		store, err := pgstore.NewJobStore(ctx, pgstore.Config{DSN: a.cfg.Storage.DSN})
		if err != nil {
			return nil, fmt.Errorf("postgres job store init failed: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("postgres job store migrate failed: %w", err)
		}
		a.logger.Info("using postgres job store")
		return store, nil
	case config.DriverSQLite:
		store, err := sqlitestore.Open(ctx, a.cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("sqlite job store init failed: %w", err)
		}
		a.logger.Info("using sqlite job store", zap.String("dsn", a.cfg.Storage.DSN))
		return store, nil
	case config.DriverMemory, "":
		a.logger.Warn("using in-memory job store; jobs are lost on restart")
		return memoryStorage.NewJobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", a.cfg.Storage.Driver)
	}
}

func setupArchive(ctx context.Context, a *App) (setops.BlobStore, error) {
	if a.cfg.Storage.ArchiveBucket == "" {
		if dir := a.cfg.Storage.ArchiveDir; dir != "" {
			store, err := localstorage.New(localstorage.Config{BaseDir: dir})
			if err != nil {
				return nil, fmt.Errorf("local archive init failed: %w", err)
			}
			a.logger.Info("using local archive", zap.String("path", dir))
			return store, nil
		}
		a.logger.Info("no archive configured, using in-memory archive")
		return memoryStorage.NewBlobStore(), nil
	}
	store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.ArchiveBucket}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("gcs archive init failed: %w", err)
	}
	a.archive = store
	a.logger.Info("using GCS archive", zap.String("bucket", a.cfg.Storage.ArchiveBucket))
	return store, nil
}

func setupPublisher(ctx context.Context, a *App) (setops.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.gcpPublisher = gcppublisher.New(a.pubsubClient)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.gcpPublisher, nil
}

// Run serves the HTTP API and blocks until ctx is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

// Close releases every owned client. It is safe to call on a partially built App.
func (a *App) Close(_ context.Context) {
	if a.gcpPublisher != nil {
		a.gcpPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.jobs != nil {
		a.jobs.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}
