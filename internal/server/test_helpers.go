package server

import (
	"net/http"

	"github.com/rotationalio/oscar/internal/config"
	"github.com/rotationalio/oscar/internal/observability"
	"github.com/rotationalio/oscar/internal/state"
)

// Getter methods for testing - these expose internal fields for test assertions.
// These should only be used in tests.

// Config returns the server configuration for testing.
func (s *Server) Config() *config.Config {
	return s.config
}

// Logger returns the server logger for testing.
func (s *Server) Logger() *observability.Logger {
	return s.logger
}

// State returns the service state store for testing.
func (s *Server) State() *state.Store {
	return s.state
}

// HTTPServer returns the HTTP server instance for testing.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}
