package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "voucherd"
	ServiceVersion = "v1.0.0"
	MeterName      = "voucherd"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // "stdout", "none"
	EnableMetrics  bool
	EnableTracing  bool
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// DefaultOTelConfig returns a default OpenTelemetry configuration
func DefaultOTelConfig() *OTelConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	return &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    env,
		TraceExporter:  "stdout",
		EnableMetrics:  true,
		EnableTracing:  true,
	}
}

// InitializeOTel initializes tracing and metrics providers
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}

	ctx := context.Background()

	logger.InfoContext(ctx, "Initializing OpenTelemetry",
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.ServiceVersion),
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
	)

	providers := &OTelProviders{Logger: logger}

	if cfg.EnableTracing && cfg.TraceExporter != "none" {
		exporter, err := stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		providers.TracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(providers.TracerProvider)
		providers.Tracer = providers.TracerProvider.Tracer(ServiceName)
	}

	if cfg.EnableMetrics {
		exporter, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		providers.MeterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(providers.MeterProvider)
		providers.Meter = providers.MeterProvider.Meter(MeterName)
		providers.PrometheusHTTP = promhttp.Handler()
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return providers, nil
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("tracer provider shutdown: %w", err)
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("meter provider shutdown: %w", err)
		}
	}
	return nil
}

// VoucherMetrics holds the business counters recorded across the voucher
// lifecycle.
type VoucherMetrics struct {
	VouchersGenerated  metric.Int64Counter
	BatchesFailed      metric.Int64Counter
	SessionsTerminated metric.Int64Counter
	RendersServed      metric.Int64Counter
}

// CreateVoucherMetrics registers the voucher business metrics on the meter
func CreateVoucherMetrics(meter metric.Meter) (*VoucherMetrics, error) {
	if meter == nil {
		return nil, fmt.Errorf("meter is nil")
	}

	generated, err := meter.Int64Counter("voucherd.vouchers.generated",
		metric.WithDescription("Vouchers created by committed batches"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("voucherd.batches.failed",
		metric.WithDescription("Batch generation requests that failed"))
	if err != nil {
		return nil, err
	}
	terminated, err := meter.Int64Counter("voucherd.sessions.terminated",
		metric.WithDescription("Sessions force-terminated by operators"))
	if err != nil {
		return nil, err
	}
	renders, err := meter.Int64Counter("voucherd.renders.served",
		metric.WithDescription("Voucher sheet renders served"))
	if err != nil {
		return nil, err
	}

	return &VoucherMetrics{
		VouchersGenerated:  generated,
		BatchesFailed:      failed,
		SessionsTerminated: terminated,
		RendersServed:      renders,
	}, nil
}

// RecordBatch records a committed batch of size n for the given device
func (m *VoucherMetrics) RecordBatch(ctx context.Context, deviceID string, n int) {
	if m == nil {
		return
	}
	m.VouchersGenerated.Add(ctx, int64(n), metric.WithAttributes(attribute.String("device_id", deviceID)))
}

// RecordBatchFailure records a failed batch request
func (m *VoucherMetrics) RecordBatchFailure(ctx context.Context, deviceID, reason string) {
	if m == nil {
		return
	}
	m.BatchesFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("device_id", deviceID),
		attribute.String("reason", reason)))
}

// RecordTermination records a forced session termination
func (m *VoucherMetrics) RecordTermination(ctx context.Context, deviceID string) {
	if m == nil {
		return
	}
	m.SessionsTerminated.Add(ctx, 1, metric.WithAttributes(attribute.String("device_id", deviceID)))
}

// RecordRender records a served render in the given format
func (m *VoucherMetrics) RecordRender(ctx context.Context, format string) {
	if m == nil {
		return
	}
	m.RendersServed.Add(ctx, 1, metric.WithAttributes(attribute.String("format", format)))
}
