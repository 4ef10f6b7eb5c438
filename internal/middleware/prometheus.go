package middleware

import (
	"strconv"
	"time"

	"github.com/mstfa13/asura-backend/internal/observability"

	"github.com/gin-gonic/gin"
)

// PrometheusMiddleware tracks request counts, latency and in-flight requests.
func PrometheusMiddleware(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()

		method := c.Request.Method
		endpoint := c.FullPath() // e.g. /api/data/:key
		if endpoint == "" {
			// unmatched routes share one label to bound cardinality
			endpoint = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
	}
}
