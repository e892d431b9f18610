package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rotationalio/oscar/internal/observability"
)

// RequestIDHeader carries the request identifier in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestIDKey is the gin context key of the request identifier.
const RequestIDKey = "request_id"

type requestIDContextKey struct{}

// RequestID returns a gin middleware that propagates the caller's X-Request-ID
// or generates a new one. The identifier is echoed in the response, stored in
// the gin and request contexts, and recorded on the active span.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		ctx := ContextWithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		trace.SpanFromContext(ctx).SetAttributes(attribute.String("http.request_id", requestID))

		c.Next()
	}
}

// ContextWithRequestID adds a request identifier to ctx.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext returns the request identifier stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return id
	}
	return ""
}

// RequestLogger returns a gin middleware that stores logger, tagged with the
// request identifier, in the request context for handlers to retrieve with
// observability.LoggerFromContext. It must run after RequestID.
func RequestLogger(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		log := logger
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			log = log.WithFields(zap.String(RequestIDKey, requestID))
		}

		c.Request = c.Request.WithContext(observability.ContextWithLogger(ctx, log))
		c.Next()
	}
}
