package server_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/rotationalio/oscar/internal/version"
)

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	doc := srv.OpenAPI()
	require.NotNil(t, doc)
	assert.Equal(t, "Oscar", doc.Info.Title)
	assert.Equal(t, version.Short(), doc.Info.Version)

	for _, path := range []string{"/healthz", "/livez", "/readyz", "/v1/status", "/v1/docling/"} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}

	for _, path := range []string{"/docs", "/swagger", "/openapi.json", "/metrics"} {
		assert.Nil(t, doc.Paths.Find(path), path)
	}
}

func TestOpenAPIJSON(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.get("/openapi.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Equal(t, version.Short(), doc["info"].(map[string]any)["version"])
}

func TestOpenAPIYAML(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.get("/openapi.yaml")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-yaml", w.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "Oscar", doc["info"].(map[string]any)["title"])
}

func TestDocsPages(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	tests := []struct {
		path     string
		contains string
		csp      string
	}{
		{path: "/docs", contains: `<redoc spec-url="/openapi.json">`, csp: "https://cdn.jsdelivr.net"},
		{path: "/swagger", contains: `url: "/openapi.json"`, csp: "https://unpkg.com"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := srv.get(tt.path)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tt.contains)
			assert.Contains(t, w.Body.String(), "/static/favicon.svg")
			assert.Contains(t, w.Header().Get("Content-Security-Policy"), tt.csp)
		})
	}
}

func TestStaticFiles(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.get("/static/favicon.svg")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<svg")

	assert.Equal(t, http.StatusNotFound, srv.get("/static/missing.png").Code)
}
