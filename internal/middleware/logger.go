package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"sessionkeeper-go/internal/logging"
)

// RequestLogger logs each request. Reads that succeed go to debug so that
// scrapes and probes stay out of the info log.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"status":     status,
			"latency_ms": logging.DurationMS(time.Since(start)),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString(requestIDKey),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Warn("http_request")
		case c.Request.Method == http.MethodGet && status < http.StatusBadRequest:
			entry.Debug("http_request")
		default:
			entry.Info("http_request")
		}
	}
}
