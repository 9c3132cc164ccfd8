package otel

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

func TestExporter_RecordTrialFinished(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exp, err := newExporter(provider)
	if err != nil {
		t.Fatalf("newExporter: %v", err)
	}
	t.Cleanup(func() { _ = exp.Close(ctx) })

	study := &domain.Study{Name: "s", Directions: []domain.StudyDirection{domain.DirectionMinimize}}
	start := time.Now().Add(-2 * time.Second)
	end := time.Now()

	complete := domain.NewTrial(domain.TrialComplete)
	complete.Values = []float64{0.5}
	complete.DatetimeStart = &start
	complete.DatetimeComplete = &end
	exp.RecordTrialFinished(ctx, study, complete)

	failed := domain.NewTrial(domain.TrialFail)
	exp.RecordTrialFinished(ctx, study, failed)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name != "mtune_trials_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("mtune_trials_total has data %T", m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			if total != 2 {
				t.Errorf("mtune_trials_total = %d, want 2", total)
			}
		}
	}

	for _, name := range []string{"mtune_trials_total", "mtune_trial_value", "mtune_trial_duration_seconds"} {
		if !found[name] {
			t.Errorf("metric %s not recorded", name)
		}
	}
}

func TestNewExporter_Disabled(t *testing.T) {
	if _, err := NewExporter(context.Background(), Config{}); err == nil {
		t.Error("expected error when exporter is disabled")
	}
}
