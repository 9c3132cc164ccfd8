package otel

import (
	"context"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

// NoOpExporter is a metrics exporter that does nothing.
type NoOpExporter struct{}

// NewNoOpExporter creates a new no-op exporter for graceful degradation.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (e *NoOpExporter) RecordTrialFinished(ctx context.Context, study *domain.Study, trial *domain.Trial) {
}

func (e *NoOpExporter) Close(ctx context.Context) error {
	return nil
}
