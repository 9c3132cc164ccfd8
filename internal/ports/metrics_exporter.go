package ports

import (
	"context"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

// MetricsExporter exports trial outcomes to an external observability system.
type MetricsExporter interface {
	// RecordTrialFinished records a trial that reached a finished state.
	RecordTrialFinished(ctx context.Context, study *domain.Study, trial *domain.Trial)
	// Close shuts down the exporter and flushes any pending metrics.
	Close(ctx context.Context) error
}
