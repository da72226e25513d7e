package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sessionkeeper-go/internal/monitoring"
)

// statusClass buckets a status code as "2xx", "4xx" and so on.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Metrics observes request count and latency per route template, so
// unmatched paths share one series.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := []string{c.Request.Method, route, statusClass(c.Writer.Status())}
		monitoring.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
		monitoring.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	}
}
