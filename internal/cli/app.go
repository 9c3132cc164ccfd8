package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	outputs "github.com/emiliopalmerini/mtune/internal/adapters/storage"
	"github.com/emiliopalmerini/mtune/internal/app"
	"github.com/emiliopalmerini/mtune/internal/infrastructure/config"
	"github.com/emiliopalmerini/mtune/internal/ports"
	"github.com/emiliopalmerini/mtune/internal/study"
)

// AppContext holds all shared dependencies for CLI commands.
type AppContext struct {
	Config  *config.Config
	Logger  *zap.Logger
	Storage ports.Storage
	Metrics ports.MetricsExporter
	Service *study.Service
}

// NewAppContext loads the configuration and opens the storage. With
// skipSchemaCheck an outdated schema is accepted, which storage commands
// need in order to upgrade it.
func NewAppContext(ctx context.Context, skipSchemaCheck bool) (*AppContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	url := storageURL
	if url == "" {
		url = cfg.Storage.URL
	}
	storage, err := app.OpenStorage(ctx, url, cfg.Storage.AuthToken, logger, skipSchemaCheck)
	if err != nil {
		return nil, err
	}
	metrics := app.NewMetrics(ctx, cfg.Otel, logger)

	return &AppContext{
		Config:  cfg,
		Logger:  logger,
		Storage: storage,
		Metrics: metrics,
		Service: study.NewService(storage, metrics, logger),
	}, nil
}

// OutputArchive opens the directory keeping objective outputs, MTUNE_OUTPUT_DIR
// or the XDG data directory.
func (a *AppContext) OutputArchive() (ports.OutputArchive, error) {
	archive, err := outputs.NewOutputArchive(a.Config.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open output archive: %w", err)
	}
	return archive, nil
}

// Close releases all resources held by the AppContext.
func (a *AppContext) Close() error {
	var errs []error
	if a.Metrics != nil {
		errs = append(errs, a.Metrics.Close(context.Background()))
	}
	if a.Storage != nil {
		errs = append(errs, a.Storage.Close())
	}
	return errors.Join(errs...)
}

// withApp opens the application context around fn.
func withApp(ctx context.Context, skipSchemaCheck bool, fn func(app *AppContext) error) error {
	a, err := NewAppContext(ctx, skipSchemaCheck)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Failed to close storage", zap.Error(err))
		}
	}()
	return fn(a)
}
