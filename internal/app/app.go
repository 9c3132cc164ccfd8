package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/emiliopalmerini/mtune/internal/infrastructure/config"
	"github.com/emiliopalmerini/mtune/internal/study"
	"github.com/emiliopalmerini/mtune/internal/web"
)

// RunWeb serves the web view of the configured storage until ctx is done.
func RunWeb(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	storage, err := OpenStorage(ctx, cfg.Storage.URL, cfg.Storage.AuthToken, logger, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logger.Warn("Failed to close storage", zap.Error(err))
		}
	}()

	svc := study.NewService(storage, nil, logger)
	if err := web.NewServer(svc, cfg.ServePort, logger).Start(ctx); err != nil {
		return fmt.Errorf("web server stopped: %w", err)
	}
	return nil
}
