package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rotationalio/oscar/internal/config"
	"github.com/rotationalio/oscar/internal/docling"
	"github.com/rotationalio/oscar/internal/middleware"
	"github.com/rotationalio/oscar/internal/server"
)

func TestAccessRecordTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	srv := newTestServer(t, nil, nil, server.WithTracerProvider(tp))

	w := srv.get("/v1/status")
	require.Equal(t, http.StatusOK, w.Code)

	records := srv.accessRecords(t)
	require.Len(t, records, 1)
	assert.Regexp(t, `^[0-9a-f]{32}$`, records[0]["trace_id"])
	assert.Regexp(t, `^[0-9a-f]{16}$`, records[0]["span_id"])
	assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), records[0]["request_id"])
}

func TestAccessRecordWithoutTracing(t *testing.T) {
	srv := newTestServer(t, nil, nil, server.WithTracerProvider(noop.NewTracerProvider()))

	require.Equal(t, http.StatusOK, srv.get("/v1/status").Code)

	records := srv.accessRecords(t)
	require.Len(t, records, 1)
	assert.NotContains(t, records[0], "trace_id")
	assert.NotContains(t, records[0], "span_id")
}

func TestHandlerRecordsCarryRequestContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	converter := &fakeConverter{err: fmt.Errorf("%w: connection refused", docling.ErrBackend)}
	srv := newTestServer(t, nil, converter, server.WithTracerProvider(tp))

	req := uploadRequest(t, "file", "scan.png", "image/png", "png")
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	w := srv.do(req)
	require.Equal(t, http.StatusBadGateway, w.Code)

	var found bool
	for _, line := range srv.app.Lines() {
		record := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &record), line)
		if record["message"] != "docling backend request failed" {
			continue
		}

		found = true
		assert.Equal(t, "req-42", record["request_id"])
		assert.Equal(t, "docling", record["component"])
		assert.Contains(t, record["error"], "connection refused")
		assert.Regexp(t, `^[0-9a-f]{32}$`, record["trace_id"])
	}
	assert.True(t, found, "no handler record written to the application sink")
}

func TestProbeFilterKeepsFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.Logging.ProbeFilters = config.DefaultProbeFilters
	srv := newTestServer(t, cfg, nil)
	srv.Router().GET("/readyz/deep", func(c *gin.Context) { panic("boom") })

	// Initialized, so readiness fails.
	require.Equal(t, http.StatusServiceUnavailable, srv.get("/readyz").Code)
	require.Equal(t, http.StatusOK, srv.get("/livez").Code)

	w := srv.get("/readyz/deep")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error": "Internal Server Error"}`, w.Body.String())

	records := srv.accessRecords(t)
	require.Len(t, records, 2)

	assert.Equal(t, "ERROR", records[0]["level"])
	assert.Equal(t, "oscar GET /readyz 503", records[0]["message"])

	assert.Equal(t, "CRITICAL", records[1]["level"])
	assert.Equal(t, "/readyz/deep", records[1]["path"])
	assert.Equal(t, "boom", records[1]["error"])
}
