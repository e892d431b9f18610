package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/rotationalio/oscar/internal/config"
	"github.com/rotationalio/oscar/internal/observability"
)

func configureTestTelemetry(t *testing.T, cfg observability.TelemetryConfig) *observability.Telemetry {
	t.Helper()

	prev := otel.GetTracerProvider()
	tel, err := observability.ConfigureTelemetry(context.Background(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = tel.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return tel
}

func TestConfigureTelemetryLocal(t *testing.T) {
	tel := configureTestTelemetry(t, observability.TelemetryConfig{
		Service:        config.ServiceConfig{Name: "oscar-test", InstanceID: "host-1"},
		Tracing:        config.TracingConfig{SamplingRatio: 1.0},
		ServiceVersion: "0.1.0",
	})

	assert.False(t, tel.Exporting())
	assert.Empty(t, tel.Endpoint())

	// Spans carry valid identifiers even though nothing is exported.
	_, span := tel.Tracer().Start(context.Background(), "local")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().IsSampled())

	assert.Equal(t, tel.TracerProvider(), otel.GetTracerProvider())
}

func TestConfigureTelemetryExporter(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tel := configureTestTelemetry(t, observability.TelemetryConfig{
		Service:        config.ServiceConfig{Name: "oscar-test"},
		Tracing:        config.TracingConfig{SamplingRatio: 1.0},
		ServiceVersion: "0.1.0",
		Logger:         observability.NewNopLogger(),
		Exporter:       exporter,
	})
	assert.True(t, tel.Exporting())

	_, span := otel.Tracer("test").Start(context.Background(), "exported")
	span.End()

	require.NoError(t, tel.TracerProvider().ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "exported", spans[0].Name)

	name, ok := spans[0].Resource.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "oscar-test", name.AsString())
}

func TestConfigureTelemetryEndpoint(t *testing.T) {
	tel := configureTestTelemetry(t, observability.TelemetryConfig{
		Tracing: config.TracingConfig{
			Endpoint:      "http://collector:4318/",
			SamplingRatio: 1.0,
		},
	})

	assert.True(t, tel.Exporting())
	assert.Equal(t, "http://collector:4318/v1/traces", tel.Endpoint())
}

func TestConfigureTelemetrySampling(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tel := configureTestTelemetry(t, observability.TelemetryConfig{
		Tracing:  config.TracingConfig{SamplingRatio: 0},
		Exporter: exporter,
	})

	_, span := tel.Tracer().Start(context.Background(), "dropped")
	span.End()

	require.NoError(t, tel.TracerProvider().ForceFlush(context.Background()))
	assert.Empty(t, exporter.GetSpans())
}

func TestNewResource(t *testing.T) {
	res, err := observability.NewResource(context.Background(), config.ServiceConfig{}, "1.2.3")
	require.NoError(t, err)

	tests := []struct {
		key  string
		want string
	}{
		{key: string(semconv.ServiceNameKey), want: observability.DefaultServiceName},
		{key: string(semconv.ServiceVersionKey), want: "1.2.3"},
		{key: string(semconv.ServiceInstanceIDKey), want: observability.DefaultInstanceID},
	}

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, attrs[tt.key], tt.key)
	}
}

func TestShutdownNil(t *testing.T) {
	var tel *observability.Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}
