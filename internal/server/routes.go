package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes of the Oscar service.
// It organizes routes into logical groups:
//   - Probe endpoints
//   - Prometheus metrics endpoint
//   - API v1 endpoints
//   - Documentation and static assets
func (s *Server) setupRoutes() {
	// Probe endpoints
	s.router.GET("/healthz", s.handleLiveness)
	s.router.GET("/livez", s.handleLiveness)
	s.router.GET("/readyz", s.handleReadiness)

	// Metrics endpoint (if enabled)
	if s.registry != nil {
		s.router.GET(s.config.Observability.Metrics.Path, s.handleMetrics)
	}

	// API v1 routes
	v1 := s.router.Group("/v1")
	{
		v1.GET("/status", s.handleStatus)

		// Document conversion
		docling := v1.Group("/docling")
		{
			docling.GET("/", s.handleDoclingInfo)
			docling.POST("/", s.handleDoclingProcess)
		}
	}

	s.setupDocsRoutes()

	s.router.NoRoute(s.handleNotFound)
	s.router.NoMethod(s.handleMethodNotAllowed)
}

// handleMetrics serves Prometheus metrics from the server registry.
func (s *Server) handleMetrics(c *gin.Context) {
	handler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	handler.ServeHTTP(c.Writer, c.Request)
}

// handleNotFound returns 404 for unknown paths.
func (s *Server) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
}

// handleMethodNotAllowed returns 405 for known paths with an unsupported method.
func (s *Server) handleMethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"detail": "Method Not Allowed"})
}
