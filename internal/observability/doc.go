// Package observability provides the logging, tracing and metrics plumbing
// shared by every Oscar component.
//
// # Logging
//
// Build the loggers once at startup. Application records go to the primary
// sink and access records to a second sink reached through Access:
//
//	logger, err := observability.NewLogger(cfg.Observability.Logging)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
// Records rendered as JSON carry timestamp, level, logger and message keys.
// When a valid span is active, WithContext adds trace_id and span_id:
//
//	logger.WithContext(ctx).Info("document converted", zap.String("file", name))
//
// # Tracing
//
// ConfigureTelemetry installs the global TracerProvider. Spans are exported
// over OTLP/HTTP only when an endpoint is configured:
//
//	tel, err := observability.ConfigureTelemetry(ctx, observability.TelemetryConfig{
//	    Service:        cfg.Service,
//	    Tracing:        cfg.Observability.Tracing,
//	    ServiceVersion: version.Short(),
//	    Logger:         logger,
//	})
//
// # Metrics
//
// Metrics are registered on an explicit registry:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics("oscar", reg)
//	reg.MustRegister(observability.NewStateCollector("oscar", store, nil))
package observability
