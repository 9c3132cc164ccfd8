package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/emiliopalmerini/mtune/internal/buildinfo"
	"github.com/emiliopalmerini/mtune/internal/domain"
)

const meterName = "github.com/emiliopalmerini/mtune"

// Exporter exports trial outcomes to an OTEL Collector.
type Exporter struct {
	provider     *sdkmetric.MeterProvider
	trialsTotal  metric.Int64Counter
	valueHist    metric.Float64Histogram
	durationHist metric.Float64Histogram
}

// NewExporter creates a new OTEL metrics exporter.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "mtune"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(buildinfo.Resolve()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.ExportInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.ExportInterval))
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return newExporter(provider)
}

func newExporter(provider *sdkmetric.MeterProvider) (*Exporter, error) {
	meter := provider.Meter(meterName)

	trialsTotal, err := meter.Int64Counter(
		"mtune_trials_total",
		metric.WithDescription("Number of finished trials"),
		metric.WithUnit("{trial}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trials counter: %w", err)
	}

	valueHist, err := meter.Float64Histogram(
		"mtune_trial_value",
		metric.WithDescription("Objective values of completed trials"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating value histogram: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"mtune_trial_duration_seconds",
		metric.WithDescription("Trial duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return &Exporter{
		provider:     provider,
		trialsTotal:  trialsTotal,
		valueHist:    valueHist,
		durationHist: durationHist,
	}, nil
}

// RecordTrialFinished records a trial that reached a finished state.
func (e *Exporter) RecordTrialFinished(ctx context.Context, study *domain.Study, trial *domain.Trial) {
	attrs := []attribute.KeyValue{
		attribute.String("study", study.Name),
		attribute.String("state", trial.State.String()),
	}
	opt := metric.WithAttributes(attrs...)

	e.trialsTotal.Add(ctx, 1, opt)

	if d := trial.Duration(); d != nil {
		e.durationHist.Record(ctx, d.Seconds(), opt)
	}

	if trial.State != domain.TrialComplete {
		return
	}
	for i, v := range trial.Values {
		e.valueHist.Record(ctx, v, metric.WithAttributes(
			attribute.String("study", study.Name),
			attribute.Int("objective", i),
		))
	}
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
