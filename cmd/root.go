// Package cmd defines and implements the CLI commands for the setops executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tenkings/setops-ingest/internal/api"
	"github.com/tenkings/setops-ingest/internal/app"
	"github.com/tenkings/setops-ingest/internal/config"
	"github.com/tenkings/setops-ingest/internal/logging"
	cfgpath "github.com/tenkings/setops-ingest/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application surface that commands use.
// Tests inject a fake through newApp.
type App interface {
	Close(ctx context.Context)
	Logger() *zap.Logger
	Searcher() api.Searcher
	Importer() api.Importer
	Parser() api.UploadParser
	Run(ctx context.Context) error
}

type cliApp struct {
	*app.App
}

func (c cliApp) Searcher() api.Searcher { return c.Discovery() }
func (c cliApp) Importer() api.Importer { return c.App.Importer() }
func (c cliApp) Parser() api.UploadParser { return c.Sources() }

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, path string) (App, error) {
	resolved, err := cfgpath.ResolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("locate config: %w", err)
	}
	cfg, err := config.Load(resolved)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	if resolved != "" {
		logger.Info("Using config file", zap.String("path", resolved))
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return cliApp{App: a}, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setops",
		Short: "Discover and ingest trading card checklist sources.",
		Long: `setops finds checklist sources for a card set (PDFs, CSV, JSON, HTML tables
and checklist pages), parses them into normalized rows, filters noise, and
queues an ingestion job against the set's draft for review.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close(cmd.Context())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./setops.yaml, /etc/setops/ or $HOME/.setops)")

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Error("Command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
