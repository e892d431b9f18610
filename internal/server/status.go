package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rotationalio/oscar/internal/state"
	"github.com/rotationalio/oscar/internal/version"
)

// UnknownUptime is reported when the service has not recorded a start time.
const UnknownUptime = "unknown"

// StatusView is the response of the status endpoint.
type StatusView struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
	Service string `json:"service"`
}

// NewStatusView projects a state snapshot at the given time.
func (s *Server) NewStatusView(snap state.Snapshot) StatusView {
	uptime := UnknownUptime
	if elapsed, ok := snap.Uptime(s.clock.Now()); ok {
		uptime = elapsed.String()
	}

	return StatusView{
		Status:  snap.State.String(),
		Uptime:  uptime,
		Version: version.Short(),
		Service: s.config.Service.Name,
	}
}

// handleLiveness reports that the process is able to serve requests at all.
// It does not consult the service state.
func (s *Server) handleLiveness(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// handleReadiness reports whether the service accepts application traffic:
// ok when Online, 503 in every other state.
func (s *Server) handleReadiness(c *gin.Context) {
	if s.state.Snapshot().State != state.Online {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Service Unavailable"})
		return
	}
	c.String(http.StatusOK, "ok")
}

// handleStatus returns the service state, uptime and version.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.NewStatusView(s.state.Snapshot()))
}
