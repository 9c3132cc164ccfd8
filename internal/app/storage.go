package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/emiliopalmerini/mtune/internal/adapters/otel"
	"github.com/emiliopalmerini/mtune/internal/adapters/redisstore"
	"github.com/emiliopalmerini/mtune/internal/adapters/turso"
	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/infrastructure/config"
	"github.com/emiliopalmerini/mtune/internal/infrastructure/database"
	"github.com/emiliopalmerini/mtune/internal/ports"
)

// ErrNoStorage is returned when no storage URL was configured.
var ErrNoStorage = errors.New("storage URL is specified neither in command line nor environment variable: use --storage or MTUNE_STORAGE")

// OpenStorage picks the backend from the URL scheme: redis:// and rediss://
// go to redis, everything libsql understands goes to the SQL storage.
// Unless skipSchemaCheck is set an outdated schema is an error.
func OpenStorage(ctx context.Context, url, authToken string, logger *zap.Logger, skipSchemaCheck bool) (ports.Storage, error) {
	if url == "" {
		return nil, ErrNoStorage
	}

	var (
		storage ports.Storage
		err     error
	)
	switch {
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		storage, err = redisstore.Open(ctx, url, logger, skipSchemaCheck)
	case database.IsSQLURL(url):
		var client *database.Client
		client, err = database.NewWithOptions(url, database.Options{AuthToken: authToken, Ping: true})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to storage: %w", err)
		}
		storage, err = turso.Open(ctx, client.DB, logger, skipSchemaCheck)
		if err != nil {
			_ = client.Close()
		}
	default:
		return nil, fmt.Errorf("unsupported storage URL %q", url)
	}

	switch {
	case errors.Is(err, domain.ErrSchemaOutdated):
		return nil, fmt.Errorf("%w. Please execute `mtune storage upgrade --storage %s` to migrate it", err, url)
	case errors.Is(err, domain.ErrSchemaUnknown):
		return nil, fmt.Errorf("%w. Please try updating mtune to the latest version", err)
	case err != nil:
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return storage, nil
}

// NewMetrics returns the OTLP exporter when enabled, and a no-op exporter
// otherwise or when the exporter cannot be created.
func NewMetrics(ctx context.Context, cfg config.Otel, logger *zap.Logger) ports.MetricsExporter {
	if !cfg.Enabled {
		return otel.NewNoOpExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	exp, err := otel.NewExporter(ctx, otel.ConfigFrom(cfg))
	if err != nil {
		logger.Warn("Metrics export disabled", zap.Error(err))
		return otel.NewNoOpExporter()
	}
	return exp
}
