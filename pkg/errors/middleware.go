package errors

import (
	"fmt"
	"runtime/debug"

	"storygen/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Body is the JSON error envelope every failed request receives.
type Body struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details"`
	RequestID string `json:"request_id,omitempty"`
}

// Render aborts c with the envelope for appErr.
func Render(c *gin.Context, appErr *AppError) {
	c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
		"error": Body{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Details:   appErr.Details,
			RequestID: c.GetString("requestID"),
		},
	})
}

// ErrorHandler renders the first error a handler attached with c.Error.
// Server-side failures are logged at error level, client mistakes at warn.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := FromError(c.Errors[0].Err)
		args := []any{
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"status_code", appErr.StatusCode,
			"error_code", appErr.Code,
		}
		log := requestLogger(c)
		if appErr.Server() {
			log.LogError(c.Errors[0].Err, appErr.Message, args...)
		} else {
			log.Warn("Request rejected", append(args, "message", appErr.Message)...)
		}

		Render(c, appErr)
	}
}

// RecoveryWithLogger turns a panic into a 500 SERVER_ERROR envelope and logs
// the stack. The stack is only echoed to the client in gin debug mode.
func RecoveryWithLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := string(debug.Stack())
			requestLogger(c).Error("Panic recovered",
				"error", r,
				"stack", stack,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			appErr := NewInternalServerError("SERVER_ERROR", "The server encountered an unexpected error")
			if gin.Mode() == gin.DebugMode {
				appErr.Details = fmt.Sprintf("Panic: %v\n%s", r, stack)
			}
			Render(c, appErr)
		}()

		c.Next()
	}
}

// requestLogger returns the request-scoped logger set by logger.Middleware,
// falling back to the global one
func requestLogger(c *gin.Context) *logger.Logger {
	if l, ok := c.Get("logger"); ok {
		if log, ok := l.(*logger.Logger); ok {
			return log
		}
	}
	return logger.FromContext(c.Request.Context())
}
