package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Endpoints of the docling-serve API.
const (
	VersionPath = "/version"
	HealthPath  = "/health"
	ConvertPath = "/v1/convert/file"
)

// APIKeyHeader authenticates requests to docling-serve.
const APIKeyHeader = "X-Api-Key"

// maxErrorBody bounds how much of an error response is kept in the error message.
const maxErrorBody = 1024

// Remote is a Converter backed by a docling-serve instance.
type Remote struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewRemote creates a client for the docling-serve instance at baseURL.
// Outgoing requests carry the trace context of the calling request.
func NewRemote(baseURL, apiKey string, timeout time.Duration) (*Remote, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid docling url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid docling url: %q (must be http or https)", baseURL)
	}

	return &Remote{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(&http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			}),
		},
	}, nil
}

// Ping checks that the backend is up.
func (r *Remote) Ping(ctx context.Context) error {
	req, err := r.newRequest(ctx, http.MethodGet, HealthPath, nil)
	if err != nil {
		return err
	}

	resp, err := r.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Info returns the model description with the version reported by the backend.
func (r *Remote) Info(ctx context.Context) (*ModelInfo, error) {
	req, err := r.newRequest(ctx, http.MethodGet, VersionPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	versions := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&versions); err != nil {
		return nil, fmt.Errorf("%w: failed to decode version response: %w", ErrBackend, err)
	}

	version, ok := versions["docling"].(string)
	if !ok || version == "" {
		version = "unknown"
	}
	return NewModelInfo(version), nil
}

// Convert uploads doc to the backend and returns the conversion result.
func (r *Remote) Convert(ctx context.Context, doc Document) (*ConversionResult, error) {
	body, contentType, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}

	req, err := r.newRequest(ctx, http.MethodPost, ConvertPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	result := &ConversionResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode conversion response: %w", ErrBackend, err)
	}

	if result.Status != StatusSuccess {
		return result, NewConversionError(result)
	}
	return result, nil
}

func encodeDocument(doc Document) (*bytes.Buffer, string, error) {
	name := doc.Name
	if name == "" {
		name = "file"
	}
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", multipart.FileContentDisposition("files", name))
	header.Set("Content-Type", contentType)

	part, err := form.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if doc.Body != nil {
		if _, err := io.Copy(part, doc.Body); err != nil {
			return nil, "", fmt.Errorf("failed to read document: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to encode form: %w", err)
	}

	return body, form.FormDataContentType(), nil
}

func (r *Remote) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create docling request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if r.APIKey != "" {
		req.Header.Set(APIKeyHeader, r.APIKey)
	}
	return req, nil
}

// do executes req and returns the response if its status is 2xx. Transport
// failures and unexpected statuses wrap ErrBackend.
func (r *Remote) do(req *http.Request) (*http.Response, error) {
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackend, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %s %s returned status %d: %s",
			ErrBackend, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
