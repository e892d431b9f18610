package middleware

import (
	"github.com/gin-gonic/gin"
	"k8s.io/utils/clock"

	"github.com/rotationalio/oscar/internal/observability"
)

// Metrics returns a gin middleware that records request counts, latency and
// response sizes. Requests that match no route are grouped under "unmatched"
// so that arbitrary URLs cannot grow the label set.
func Metrics(metrics *observability.Metrics, clk clock.PassiveClock) gin.HandlerFunc {
	if clk == nil {
		clk = clock.RealClock{}
	}

	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}

		start := clk.Now()
		metrics.HTTPInFlightInc()
		defer metrics.HTTPInFlightDec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), clk.Since(start), c.Writer.Size())
	}
}
