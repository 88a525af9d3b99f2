package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Middleware attaches a request-scoped logger to the gin and request
// contexts and writes one access log line per request.
func Middleware(base *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetString("requestID")
		if requestID == "" {
			requestID = c.GetHeader("X-Request-ID")
		}
		if requestID == "" {
			requestID = uuid.NewString()
			c.Header("X-Request-ID", requestID)
		}

		reqLogger := base.WithRequestID(requestID)
		c.Set("logger", reqLogger)
		c.Request = c.Request.WithContext(NewContext(c.Request.Context(), reqLogger))

		start := time.Now()
		c.Next()

		// unmatched routes log the raw path
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		reqLogger.LogRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start), c.Writer.Size())
	}
}
