package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rotationalio/oscar/internal/docling"
	"github.com/rotationalio/oscar/internal/observability"
)

// DoclingFormField is the multipart field holding the uploaded document.
const DoclingFormField = "file"

// doclingAvailable reports whether a conversion backend is configured and
// writes the 501 response if it is not.
func (s *Server) doclingAvailable(c *gin.Context) bool {
	if _, ok := s.converter.(docling.Unavailable); ok {
		c.JSON(http.StatusNotImplemented, gin.H{"detail": "Docling is not installed"})
		return false
	}
	return true
}

// handleDoclingInfo describes the document conversion model.
// GET /v1/docling/
func (s *Server) handleDoclingInfo(c *gin.Context) {
	if !s.doclingAvailable(c) {
		return
	}

	ctx, span := s.tracer.Start(c.Request.Context(), "docling.info")
	defer span.End()

	info, err := s.converter.Info(ctx)
	if err != nil {
		s.doclingError(c, span, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// handleDoclingProcess converts the uploaded document.
// POST /v1/docling/ (multipart/form-data, field "file")
func (s *Server) handleDoclingProcess(c *gin.Context) {
	if !s.doclingAvailable(c) {
		return
	}

	if limit := s.config.Server.MaxUploadBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	header, err := c.FormFile(DoclingFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "Uploaded file is too large"})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "A document must be uploaded in the \"file\" form field"})
		return
	}

	ctx, span := s.tracer.Start(c.Request.Context(), "docling.process")
	defer span.End()

	doc := docling.Document{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}

	span.SetAttributes(
		attribute.String("file.name", doc.Name),
		attribute.String("file.content_type", doc.ContentType),
		attribute.Int64("file.size", doc.Size),
		attribute.String("file.extension", doc.Extension()),
	)

	file, err := header.Open()
	if err != nil {
		s.doclingError(c, span, err)
		return
	}
	defer func() { _ = file.Close() }()
	doc.Body = file

	result, err := s.converter.Convert(ctx, doc)
	if err != nil {
		s.doclingError(c, span, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// doclingError maps converter errors onto responses:
// ErrUnavailable is 501, a failed conversion is 500 with the converter's
// message, an unreachable backend is 502 and anything else is 500.
func (s *Server) doclingError(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	log := observability.LoggerFromContext(c.Request.Context(), s.logger).WithComponent("docling")

	var convErr *docling.ConversionError
	switch {
	case errors.Is(err, docling.ErrUnavailable):
		c.JSON(http.StatusNotImplemented, gin.H{"detail": "Docling is not installed"})

	case errors.As(err, &convErr):
		log.WithError(err).Error("document conversion failed", zap.String("conversion_status", convErr.Status))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": convErr.Error()})

	case errors.Is(err, docling.ErrBackend):
		log.WithError(err).Warn("docling backend request failed")
		c.JSON(http.StatusBadGateway, gin.H{"detail": "Bad Gateway"})

	default:
		log.WithError(err).Error("document conversion error")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
	}
}
