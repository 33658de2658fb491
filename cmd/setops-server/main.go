// Package main runs the ingestion HTTP API without the CLI wrapper.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/tenkings/setops-ingest/internal/app"
	"github.com/tenkings/setops-ingest/internal/config"
	"github.com/tenkings/setops-ingest/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	// Cloud Run injects PORT.
	if port, convErr := strconv.Atoi(os.Getenv("PORT")); convErr == nil && port > 0 {
		cfg.Server.Port = port
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build application failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	runErr := a.Run(ctx)
	a.Close(ctx)
	if runErr != nil {
		logger.Error("server exited", zap.Error(runErr))
		os.Exit(1)
	}
}
