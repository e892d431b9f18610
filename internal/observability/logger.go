package observability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rotationalio/oscar/internal/config"
)

const (
	// LoggerName names the application logger.
	LoggerName = "oscar"

	// RequestLoggerName is appended to LoggerName for the access logger ("oscar.requests").
	RequestLoggerName = "requests"

	// Canonical field names of a rendered log record.
	TimestampKey = "timestamp"
	LevelKey     = "level"
	LoggerKey    = "logger"
	MessageKey   = "message"
	TraceIDKey   = "trace_id"
	SpanIDKey    = "span_id"
)

// CriticalLevel is the severity of unhandled request failures. It maps onto
// zap's DPanic level, which only panics in development loggers; the loggers
// built here are never development loggers.
const CriticalLevel = zapcore.DPanicLevel

// Logger is a wrapper around zap.Logger with additional convenience methods.
// It carries a second logger bound to the access sink, see Access.
type Logger struct {
	*zap.Logger
	access  *zap.Logger
	closers []func()
}

// loggerContextKey is the context key for storing logger instances.
type loggerContextKey struct{}

// ParseLevel converts a level name to a zap level. Names are case-insensitive;
// "warning" and "critical" are accepted alongside zap's own names.
func ParseLevel(name string) (zapcore.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "warning":
		return zapcore.WarnLevel, nil
	case "critical":
		return CriticalLevel, nil
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return level, fmt.Errorf("invalid log level: %w", err)
	}
	return level, nil
}

// LevelEncoder renders levels as DEBUG, INFO, WARNING, ERROR, CRITICAL and FATAL.
func LevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.WarnLevel:
		enc.AppendString("WARNING")
	case CriticalLevel:
		enc.AppendString("CRITICAL")
	default:
		enc.AppendString(level.CapitalString())
	}
}

// NewEncoderConfig returns the encoder configuration shared by every sink:
// canonical key names, ISO8601 timestamps, and no caller or stacktrace keys.
func NewEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        TimestampKey,
		LevelKey:       LevelKey,
		NameKey:        LoggerKey,
		MessageKey:     MessageKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    LevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

func newEncoder(format string) (zapcore.Encoder, error) {
	switch format {
	case "", "json":
		return zapcore.NewJSONEncoder(NewEncoderConfig()), nil
	case "console":
		return zapcore.NewConsoleEncoder(NewEncoderConfig()), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s (must be json or console)", format)
	}
}

// NewLogger builds the application and access loggers from configuration,
// opening the configured output paths.
//
// The access sink is wrapped with the probe filter so that successful requests
// matching cfg.ProbeFilters never reach it. The returned Logger owns the opened
// outputs; Close releases them.
func NewLogger(cfg config.LoggingConfig) (*Logger, error) {
	app, closeApp, err := zap.Open(cfg.OutputPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output: %w", err)
	}

	access, closeAccess, err := zap.Open(cfg.AccessOutputPaths...)
	if err != nil {
		closeApp()
		return nil, fmt.Errorf("failed to open access log output: %w", err)
	}

	logger, err := NewLoggerWithWriters(cfg, app, access)
	if err != nil {
		closeApp()
		closeAccess()
		return nil, err
	}

	logger.closers = []func(){closeApp, closeAccess}
	return logger, nil
}

// NewLoggerWithWriters builds the loggers on top of already opened sinks.
func NewLoggerWithWriters(cfg config.LoggingConfig, app, access zapcore.WriteSyncer) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	atom := zap.NewAtomicLevelAt(level)

	appEnc, err := newEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}
	accessEnc, err := newEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	appCore := zapcore.NewCore(appEnc, zapcore.Lock(app), atom)
	accessCore := NewProbeFilter(zapcore.NewCore(accessEnc, zapcore.Lock(access), atom), cfg.ProbeFilters)

	return &Logger{
		Logger: zap.New(appCore).Named(LoggerName),
		access: zap.New(accessCore).Named(LoggerName).Named(RequestLoggerName),
	}, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{Logger: zap.NewNop(), access: zap.NewNop()}
}

// Access returns the logger bound to the access sink.
func (l *Logger) Access() *Logger {
	return &Logger{Logger: l.access, access: l.access}
}

// WithContext creates a new logger with fields from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := ExtractContextFields(ctx)
	if len(fields) > 0 {
		return l.WithFields(fields...)
	}
	return l
}

// WithFields creates a new logger with additional fields.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.With(fields...), access: l.access.With(fields...)}
}

// WithError adds an error field to the logger.
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields(zap.Error(err))
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields(zap.String("component", component))
}

// Critical logs a message at CriticalLevel.
func (l *Logger) Critical(msg string, fields ...zap.Field) {
	if ce := l.Check(CriticalLevel, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Sync flushes any buffered log entries of both sinks.
// Should be called before application shutdown.
func (l *Logger) Sync() error {
	if err := errors.Join(l.Logger.Sync(), l.access.Sync()); err != nil {
		return fmt.Errorf("failed to sync logger: %w", err)
	}
	return nil
}

// Close flushes both sinks and closes the outputs opened by NewLogger. Loggers
// derived with WithFields, WithContext or Access share the outputs and must
// not be used afterwards. Close is a no-op for loggers built on writers.
func (l *Logger) Close() error {
	err := l.Sync()
	for _, closeFn := range l.closers {
		closeFn()
	}
	l.closers = nil
	return err
}

// ContextWithLogger adds the logger to the context.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext retrieves the logger from context, enriched with the
// trace context of ctx. Returns fallback if no logger was stored.
func LoggerFromContext(ctx context.Context, fallback *Logger) *Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return logger.WithContext(ctx)
	}
	return fallback.WithContext(ctx)
}

// ExtractContextFields returns the trace_id and span_id of the span active in
// ctx, or nothing if no valid span is active.
func ExtractContextFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}

	return []zap.Field{
		zap.String(TraceIDKey, sc.TraceID().String()),
		zap.String(SpanIDKey, sc.SpanID().String()),
	}
}
