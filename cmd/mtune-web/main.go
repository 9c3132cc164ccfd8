package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/emiliopalmerini/mtune/internal/app"
	"github.com/emiliopalmerini/mtune/internal/infrastructure/config"
	"github.com/emiliopalmerini/mtune/internal/infrastructure/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Storage.URL == "" {
		return fmt.Errorf("MTUNE_STORAGE is required")
	}

	logger, err := logging.New(logging.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.RunWeb(ctx, cfg, logger)
}
