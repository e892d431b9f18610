package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/zapr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rotationalio/oscar/internal/config"
)

// TracerName is the instrumentation scope of spans created by the service.
const TracerName = "github.com/rotationalio/oscar"

// Defaults applied to empty resource attributes.
const (
	DefaultServiceName = "oscar"
	DefaultInstanceID  = "unknown"
)

// TelemetryConfig holds configuration for initializing the tracer provider.
type TelemetryConfig struct {
	Service config.ServiceConfig
	Tracing config.TracingConfig

	// ServiceVersion is recorded as the service.version resource attribute.
	ServiceVersion string

	// Logger receives OpenTelemetry SDK diagnostics and export errors.
	Logger *Logger

	// Exporter replaces the OTLP exporter, typically with an in-memory
	// exporter in tests. When set, spans are exported even if no endpoint
	// is configured.
	Exporter sdktrace.SpanExporter
}

// Telemetry is the handle returned by ConfigureTelemetry.
type Telemetry struct {
	provider  *sdktrace.TracerProvider
	tracer    trace.Tracer
	resource  *resource.Resource
	endpoint  string
	exporting bool
}

// ConfigureTelemetry builds the service resource, installs a global
// TracerProvider and W3C propagators, and returns a handle to them.
//
// If an exporter endpoint is configured, spans are batched and exported over
// OTLP/HTTP. Otherwise spans are still created and sampled in-process, so log
// records can carry trace and span identifiers, but nothing is transmitted.
//
// ConfigureTelemetry should be called once per process. The returned
// Telemetry must be shut down to flush pending spans.
func ConfigureTelemetry(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	res, err := NewResource(ctx, cfg.Service, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(newSampler(cfg.Tracing.SamplingRatio))),
	}

	endpoint := cfg.Tracing.ExporterEndpoint()
	exporter := cfg.Exporter
	if exporter == nil && endpoint != "" {
		if exporter, err = newOTLPExporter(ctx, endpoint, cfg.Tracing); err != nil {
			return nil, err
		}
	}

	if exporter != nil {
		var batchOpts []sdktrace.BatchSpanProcessorOption
		if cfg.Tracing.ExportTimeout > 0 {
			batchOpts = append(batchOpts, sdktrace.WithExportTimeout(cfg.Tracing.ExportTimeout))
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, batchOpts...))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.Logger != nil {
		otelLogger := cfg.Logger.WithComponent("otel")
		otel.SetLogger(zapr.NewLogger(otelLogger.Logger))
		otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
			otelLogger.Warn("opentelemetry error", zap.Error(err))
		}))
	}

	return &Telemetry{
		provider:  tp,
		tracer:    tp.Tracer(TracerName),
		resource:  res,
		endpoint:  endpoint,
		exporting: exporter != nil,
	}, nil
}

// NewResource describes this service instance: service.name,
// service.version and service.instance.id.
func NewResource(ctx context.Context, svc config.ServiceConfig, version string) (*resource.Resource, error) {
	name := svc.Name
	if name == "" {
		name = DefaultServiceName
	}

	instance := svc.InstanceID
	if instance == "" {
		instance = DefaultInstanceID
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
			semconv.ServiceInstanceID(instance),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func newSampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.NeverSample()
	case ratio >= 1.0:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

func newOTLPExporter(ctx context.Context, endpoint string, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if cfg.ExportTimeout > 0 {
		opts = append(opts, otlptracehttp.WithTimeout(cfg.ExportTimeout))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

// Tracer returns the service tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// TracerProvider returns the provider installed as the global provider.
func (t *Telemetry) TracerProvider() *sdktrace.TracerProvider {
	return t.provider
}

// Resource returns the service resource descriptor.
func (t *Telemetry) Resource() *resource.Resource {
	return t.resource
}

// Endpoint returns the OTLP traces URL, or an empty string in local mode.
func (t *Telemetry) Endpoint() string {
	return t.endpoint
}

// Exporting reports whether spans leave the process.
func (t *Telemetry) Exporting() bool {
	return t.exporting
}

// Shutdown flushes pending spans and stops the provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}

	if err := t.provider.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to shut down tracer provider: %w", err)
	}
	return nil
}
