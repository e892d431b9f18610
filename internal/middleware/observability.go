// Package middleware provides the gin pipeline stages that wrap every Oscar request.
package middleware

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/utils/clock"

	"github.com/rotationalio/oscar/internal/observability"
)

// DefaultProbePaths are the liveness and readiness endpoints logged at debug level.
var DefaultProbePaths = []string{"/healthz", "/livez", "/readyz"}

// InternalServerError is the body of every response produced for an unhandled failure.
var InternalServerError = gin.H{"error": "Internal Server Error"}

// Request log field names.
const (
	ServiceKey   = "service"
	PathKey      = "path"
	VersionKey   = "version"
	RespTimeKey  = "resp_time"
	MethodKey    = "method"
	StatusKey    = "status"
	ErrorTypeKey = "error_type"
	ErrorKey     = "error"
	TracebackKey = "traceback"
)

// ObservabilityConfig configures the request observability stage.
type ObservabilityConfig struct {
	// Logger receives one entry per request. Usually the access logger.
	Logger *observability.Logger

	// Service and Version are attached to every entry.
	Service string
	Version string

	// ProbePaths are logged at debug level when they succeed.
	// Defaults to DefaultProbePaths.
	ProbePaths []string

	// Metrics, when set, counts unhandled failures.
	Metrics *observability.Metrics

	// Clock measures request latency. Defaults to the real clock.
	Clock clock.PassiveClock
}

// RequestObservability returns a gin middleware that logs every request exactly
// once and converts a panic anywhere downstream into a fixed 500 response.
//
// Completed requests are logged as "<service> <method> <path> <status>" at a
// severity derived from the status code and path, see RequestLevel. A panic is
// logged at critical severity with its type, message and stack, and the caller
// receives InternalServerError; the panic does not propagate past this stage.
// The exception is http.ErrAbortHandler, which is logged as a warning and
// re-panicked so that net/http aborts the response.
func RequestObservability(cfg ObservabilityConfig) gin.HandlerFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	probes := cfg.ProbePaths
	if probes == nil {
		probes = DefaultProbePaths
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	return func(c *gin.Context) {
		start := clk.Now()
		method := c.Request.Method
		path := RequestPath(c.Request)

		defer func() {
			rec := recover()
			elapsed := clk.Since(start)
			log := logger.WithContext(c.Request.Context())

			if rec == nil {
				status := c.Writer.Status()
				if ce := log.Check(RequestLevel(status, path, probes), requestMessage(cfg.Service, method, path, status)); ce != nil {
					ce.Write(requestFields(c, cfg, method, path, status, elapsed)...)
				}
				return
			}

			// net/http uses ErrAbortHandler to drop a response on purpose.
			if rec == http.ErrAbortHandler {
				msg := fmt.Sprintf("%s %s - aborted", method, path)
				log.Warn(msg, requestFields(c, cfg, method, path, c.Writer.Status(), elapsed)...)
				panic(rec)
			}

			errType, errMsg := describePanic(rec)

			span := trace.SpanFromContext(c.Request.Context())
			span.RecordError(fmt.Errorf("%s: %s", errType, errMsg))
			span.SetStatus(codes.Error, "unhandled exception")

			if cfg.Metrics != nil {
				route := c.FullPath()
				if route == "" {
					route = "unmatched"
				}
				cfg.Metrics.RecordUnhandledFailure(method, route)
			}

			if c.Writer.Written() {
				c.Abort()
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError, InternalServerError)
			}

			fields := requestFields(c, cfg, method, path, http.StatusInternalServerError, elapsed)
			fields = append(fields,
				zap.String(ErrorTypeKey, errType),
				zap.String(ErrorKey, errMsg),
				zap.Stack(TracebackKey),
			)
			log.Critical(fmt.Sprintf("%s %s - Unhandled Exception %s: %s", method, path, errType, errMsg), fields...)
		}()

		c.Next()
	}
}

// RequestLevel selects the log severity of a completed request: status >= 500
// is an error, status >= 400 a warning, a probe path is debug and anything
// else is info.
func RequestLevel(status int, path string, probes []string) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	case slices.Contains(probes, path):
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// RequestPath returns the URL path of r followed by its query string, if any.
func RequestPath(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

// FormatResponseTime renders d as milliseconds with four decimals, e.g. "12.3456ms".
func FormatResponseTime(d time.Duration) string {
	return fmt.Sprintf("%.4fms", float64(d)/float64(time.Millisecond))
}

func requestMessage(service, method, path string, status int) string {
	return fmt.Sprintf("%s %s %s %d", service, method, path, status)
}

func requestFields(c *gin.Context, cfg ObservabilityConfig, method, path string, status int, elapsed time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.String(ServiceKey, cfg.Service),
		zap.String(PathKey, path),
		zap.String(VersionKey, cfg.Version),
		zap.String(RespTimeKey, FormatResponseTime(elapsed)),
		zap.String(MethodKey, method),
		zap.Int(StatusKey, status),
	}

	if requestID := RequestIDFromContext(c.Request.Context()); requestID != "" {
		fields = append(fields, zap.String(RequestIDKey, requestID))
	}
	return fields
}

// describePanic returns the dynamic type and message of a recovered value.
func describePanic(rec any) (string, string) {
	switch v := rec.(type) {
	case error:
		return fmt.Sprintf("%T", v), v.Error()
	default:
		return fmt.Sprintf("%T", v), fmt.Sprint(v)
	}
}
