package middleware

import (
	"strconv"
	"time"

	"github.com/GoPolymarket/solvergate/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware observes latency and counts responses per route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.LatencyBucket.WithLabelValues(route).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
