package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/alert-engine/pkg/logger"
)

// Logger returns a middleware that logs HTTP requests. Bodies are never
// logged; they carry clinical notes.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		fields := []interface{}{
			"request_id", c.GetString(ContextRequestID),
			"method", c.Request.Method,
			"path", path,
			"ip", c.ClientIP(),
			"status", statusCode,
			"duration_ms", latency.Milliseconds(),
			"user_agent", c.Request.UserAgent(),
		}

		// Log based on status code
		switch {
		case statusCode >= 500:
			log.Error(nil, "Server error", fields...)
		case statusCode >= 400:
			log.Warn("Client error", fields...)
		default:
			log.Info("Request processed", fields...)
		}
	}
}
