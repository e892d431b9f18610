// Package docling connects Oscar to an optional document-conversion backend.
//
// The backend is a capability: when none is configured the Unavailable
// converter answers every call with ErrUnavailable, which the server reports
// as 501 Not Implemented rather than failing the process.
package docling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
)

var (
	// ErrUnavailable is returned when no conversion backend is configured.
	ErrUnavailable = errors.New("docling is not installed")

	// ErrBackend is returned when the configured backend cannot be reached
	// or answers with an unexpected status.
	ErrBackend = errors.New("docling backend request failed")
)

// StatusSuccess is the conversion status of a fully converted document.
const StatusSuccess = "success"

// Descriptive fields of the Docling model.
const (
	ModelName        = "Docling"
	ModelDescription = "Docling simplifies document processing, parsing diverse formats, " +
		"including advanced PDF understanding, and providing seamless integrations " +
		"with the generative AI ecosystem."
	ModelURL        = "https://docling.ai"
	ModelRepository = "https://github.com/docling-project/docling"
	ModelLicense    = "MIT"
)

// Converter converts uploaded documents and describes the model doing it.
type Converter interface {
	// Info describes the conversion model.
	Info(ctx context.Context) (*ModelInfo, error)

	// Convert converts doc. If the backend reports a status other than
	// StatusSuccess, the partial result is returned with a *ConversionError.
	Convert(ctx context.Context, doc Document) (*ConversionResult, error)
}

// ModelInfo describes an OCR or document-conversion model.
type ModelInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
	Repository  string `json:"repository,omitempty"`
	License     string `json:"license,omitempty"`
}

// NewModelInfo returns the Docling model description at the given version.
func NewModelInfo(version string) *ModelInfo {
	return &ModelInfo{
		Name:        ModelName,
		Version:     version,
		Description: ModelDescription,
		URL:         ModelURL,
		Repository:  ModelRepository,
		License:     ModelLicense,
	}
}

// Document is an uploaded file awaiting conversion.
type Document struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Extension returns the file extension of the document name, including the dot.
func (d Document) Extension() string {
	return filepath.Ext(d.Name)
}

// ConversionResult is the outcome of a conversion as reported by the backend.
type ConversionResult struct {
	Status         string         `json:"status"`
	Document       map[string]any `json:"document,omitempty"`
	Errors         []ErrorItem    `json:"errors,omitempty"`
	ProcessingTime float64        `json:"processing_time"`
	Timings        map[string]any `json:"timings,omitempty"`
}

// ErrorItem is a single error reported during conversion.
type ErrorItem struct {
	ComponentType string `json:"component_type,omitempty"`
	ModuleName    string `json:"module_name,omitempty"`
	ErrorMessage  string `json:"error_message"`
}

// ConversionError reports a conversion that did not succeed.
type ConversionError struct {
	Status  string
	Message string
}

func (e *ConversionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("conversion %s", e.Status)
	}
	return e.Message
}

// NewConversionError summarizes the errors of an unsuccessful result.
func NewConversionError(result *ConversionResult) *ConversionError {
	err := &ConversionError{Status: result.Status}
	for i, item := range result.Errors {
		if i > 0 {
			err.Message += "; "
		}
		err.Message += item.ErrorMessage
	}
	return err
}

// Unavailable is the Converter used when no backend is configured.
type Unavailable struct{}

// Info always returns ErrUnavailable.
func (Unavailable) Info(context.Context) (*ModelInfo, error) {
	return nil, ErrUnavailable
}

// Convert always returns ErrUnavailable.
func (Unavailable) Convert(context.Context, Document) (*ConversionResult, error) {
	return nil, ErrUnavailable
}
