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

	"github.com/emiliopalmerini/mexp/internal/ports"
)

const (
	serviceName    = "mexp"
	serviceVersion = "1.0.0"
)

// Exporter exports experiment service metrics to an OTEL Collector.
type Exporter struct {
	provider        *sdkmetric.MeterProvider
	operationsTotal metric.Int64Counter
	durationHist    metric.Float64Histogram
	timePointsTotal metric.Int64Counter
}

// NewExporter creates an exporter that pushes over OTLP/gRPC.
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

	return NewExporterWithReader(ctx, sdkmetric.NewPeriodicReader(exp))
}

// NewExporterWithReader builds an exporter around any metric reader.
func NewExporterWithReader(ctx context.Context, reader sdkmetric.Reader) (*Exporter, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	operationsTotal, err := meter.Int64Counter(
		"mexp_operations_total",
		metric.WithDescription("Experiment service operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operations counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"mexp_operation_duration_seconds",
		metric.WithDescription("Experiment service operation latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	timePointsTotal, err := meter.Int64Counter(
		"mexp_time_points_total",
		metric.WithDescription("Time points written by successful operations"),
		metric.WithUnit("{time_point}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating time points counter: %w", err)
	}

	return &Exporter{
		provider:        provider,
		operationsTotal: operationsTotal,
		durationHist:    durationHist,
		timePointsTotal: timePointsTotal,
	}, nil
}

// RecordOperation records one service call.
func (e *Exporter) RecordOperation(ctx context.Context, m ports.OperationMetrics) {
	opt := metric.WithAttributes(
		attribute.String("operation", m.Operation),
		attribute.String("outcome", m.Outcome),
	)

	e.operationsTotal.Add(ctx, 1, opt)
	e.durationHist.Record(ctx, m.Duration.Seconds(), opt)

	if m.Outcome == ports.OutcomeOK && m.TimePoints > 0 && m.Operation != "get" && m.Operation != "list" {
		e.timePointsTotal.Add(ctx, int64(m.TimePoints), metric.WithAttributes(
			attribute.String("operation", m.Operation),
		))
	}
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
