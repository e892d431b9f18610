package docling_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotationalio/oscar/internal/config"
	"github.com/rotationalio/oscar/internal/docling"
	"github.com/rotationalio/oscar/internal/observability"
)

// backend emulates the docling-serve endpoints used by Remote.
type backend struct {
	status  string
	apiKey  string
	healthy bool
	pings   atomic.Int32

	mu       sync.Mutex
	received struct {
		name        string
		contentType string
		body        string
		apiKey      string
	}
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.apiKey != "" && r.Header.Get(docling.APIKeyHeader) != b.apiKey {
		http.Error(w, `{"detail":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	switch r.URL.Path {
	case docling.HealthPath:
		b.pings.Add(1)
		if !b.healthy {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"status":"ok"}`)

	case docling.VersionPath:
		_, _ = io.WriteString(w, `{"docling-serve":"1.0.0","docling":"2.31.0","python":"3.12"}`)

	case docling.ConvertPath:
		file, header, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, _ := io.ReadAll(file)
		b.mu.Lock()
		b.received.name = header.Filename
		b.received.contentType = header.Header.Get("Content-Type")
		b.received.body = string(data)
		b.received.apiKey = r.Header.Get(docling.APIKeyHeader)
		b.mu.Unlock()

		result := map[string]any{
			"status":          b.status,
			"document":        map[string]any{"filename": header.Filename, "md_content": "# Title"},
			"processing_time": 0.25,
		}
		if b.status != docling.StatusSuccess {
			result["errors"] = []map[string]string{
				{"component_type": "document_backend", "module_name": "pdf", "error_message": "page 2 is corrupt"},
				{"error_message": "ocr failed"},
			}
		}
		_ = json.NewEncoder(w).Encode(result)

	default:
		http.NotFound(w, r)
	}
}

func newRemote(t *testing.T, b *backend) (*docling.Remote, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	remote, err := docling.NewRemote(srv.URL+"/", b.apiKey, 0)
	require.NoError(t, err)
	return remote, srv
}

func TestUnavailable(t *testing.T) {
	var converter docling.Converter = docling.Unavailable{}

	info, err := converter.Info(context.Background())
	assert.Nil(t, info)
	assert.ErrorIs(t, err, docling.ErrUnavailable)

	result, err := converter.Convert(context.Background(), docling.Document{Name: "a.pdf"})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, docling.ErrUnavailable)
}

func TestDocumentExtension(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "report.pdf", want: ".pdf"},
		{name: "archive.tar.gz", want: ".gz"},
		{name: "README", want: ""},
		{name: "", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, docling.Document{Name: tt.name}.Extension(), tt.name)
	}
}

func TestNewRemote(t *testing.T) {
	remote, err := docling.NewRemote("http://docling:5001/", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://docling:5001", remote.BaseURL)

	_, err = docling.NewRemote("docling:5001", "", 0)
	require.Error(t, err)

	_, err = docling.NewRemote("ftp://docling", "", 0)
	require.Error(t, err)
}

func TestRemoteInfo(t *testing.T) {
	remote, _ := newRemote(t, &backend{apiKey: "secret"})

	info, err := remote.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, docling.NewModelInfo("2.31.0"), info)
	assert.Equal(t, "Docling", info.Name)
	assert.Equal(t, "MIT", info.License)
}

func TestRemoteConvert(t *testing.T) {
	b := &backend{status: docling.StatusSuccess, apiKey: "secret"}
	remote, _ := newRemote(t, b)

	result, err := remote.Convert(context.Background(), docling.Document{
		Name:        "report.pdf",
		ContentType: "application/pdf",
		Size:        7,
		Body:        strings.NewReader("%PDF-1.7"),
	})
	require.NoError(t, err)

	assert.Equal(t, docling.StatusSuccess, result.Status)
	assert.Equal(t, "# Title", result.Document["md_content"])
	assert.InDelta(t, 0.25, result.ProcessingTime, 1e-9)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, "report.pdf", b.received.name)
	assert.Equal(t, "application/pdf", b.received.contentType)
	assert.Equal(t, "%PDF-1.7", b.received.body)
	assert.Equal(t, "secret", b.received.apiKey)
}

func TestRemoteConvertFailure(t *testing.T) {
	remote, _ := newRemote(t, &backend{status: "failure"})

	result, err := remote.Convert(context.Background(), docling.Document{Body: strings.NewReader("x")})
	require.Error(t, err)
	require.NotNil(t, result)

	var convErr *docling.ConversionError
	require.True(t, errors.As(err, &convErr))
	assert.Equal(t, "failure", convErr.Status)
	assert.Equal(t, "page 2 is corrupt; ocr failed", convErr.Error())
	assert.NotErrorIs(t, err, docling.ErrBackend)
}

func TestRemoteBackendErrors(t *testing.T) {
	// Wrong API key.
	remote, _ := newRemote(t, &backend{apiKey: "secret"})
	remote.APIKey = "wrong"

	_, err := remote.Info(context.Background())
	require.ErrorIs(t, err, docling.ErrBackend)
	assert.Contains(t, err.Error(), "401")

	// Unreachable backend.
	remote, srv := newRemote(t, &backend{})
	srv.Close()

	_, err = remote.Convert(context.Background(), docling.Document{Name: "a.pdf", Body: strings.NewReader("x")})
	require.ErrorIs(t, err, docling.ErrBackend)
}

func TestConversionError(t *testing.T) {
	err := docling.NewConversionError(&docling.ConversionResult{Status: "partial_success"})
	assert.Equal(t, "conversion partial_success", err.Error())
}

func TestDetect(t *testing.T) {
	logger := observability.NewNopLogger()

	t.Run("not configured", func(t *testing.T) {
		converter, err := docling.Detect(context.Background(), config.DoclingConfig{}, logger)
		require.NoError(t, err)
		assert.IsType(t, docling.Unavailable{}, converter)
	})

	t.Run("available", func(t *testing.T) {
		b := &backend{healthy: true}
		srv := httptest.NewServer(b)
		t.Cleanup(srv.Close)

		converter, err := docling.Detect(context.Background(), config.DoclingConfig{URL: srv.URL, StartupAttempts: 3}, logger)
		require.NoError(t, err)
		assert.IsType(t, &docling.Remote{}, converter)
		assert.Equal(t, int32(1), b.pings.Load())
	})

	t.Run("unreachable", func(t *testing.T) {
		b := &backend{healthy: false}
		srv := httptest.NewServer(b)
		t.Cleanup(srv.Close)

		converter, err := docling.Detect(context.Background(), config.DoclingConfig{URL: srv.URL, StartupAttempts: 2}, logger)
		require.NoError(t, err)
		assert.IsType(t, &docling.Remote{}, converter)
		assert.Equal(t, int32(2), b.pings.Load())
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := docling.Detect(context.Background(), config.DoclingConfig{URL: "::"}, logger)
		require.Error(t, err)
	})
}
