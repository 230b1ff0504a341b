package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/alert-engine/internal/handler"
	apperrors "github.com/jwalitptl/alert-engine/pkg/errors"
	"github.com/jwalitptl/alert-engine/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// AppErrors map to their status; anything else is a 500 whose detail is
// logged but not returned.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only handle errors if they exist
		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)

		for _, e := range c.Errors {
			log.Error(e.Err, "request error",
				"trace_id", traceID,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"client_ip", c.ClientIP(),
			)
		}

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last().Err
		status := http.StatusInternalServerError
		message := "internal server error"

		var appErr *apperrors.AppError
		if errors.As(lastErr, &appErr) {
			status = appErr.StatusCode()
			if status < http.StatusInternalServerError {
				message = appErr.Message
			}
		}

		c.JSON(status, handler.NewErrorResponse(status, message, traceID))
	}
}

// abortWithError ends the chain with an error envelope carrying the request id.
func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, handler.NewErrorResponse(status, message, c.GetString(ContextRequestID)))
}
