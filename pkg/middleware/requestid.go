package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	RequestIDKey contextKey = "requestID"
	TraceIDKey   contextKey = "traceID"
)

// maxIDLength bounds ids accepted from clients
const maxIDLength = 128

// inboundID returns the header value when it is a printable token of
// reasonable length, else a fresh uuid.
func inboundID(c *gin.Context, header string) string {
	v := c.GetHeader(header)
	if v == "" || len(v) > maxIDLength {
		return uuid.NewString()
	}
	for _, r := range v {
		if r <= ' ' || r > '~' {
			return uuid.NewString()
		}
	}
	return v
}

// RequestIDMiddleware assigns the request id used by logs and error
// envelopes, reusing X-Request-ID when the client sent a valid one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := inboundID(c, "X-Request-ID")
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), RequestIDKey, id))
		c.Set("requestID", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// ContextPropagationMiddleware sets the trace id, preferring an active otel
// span, and echoes a correlation id that defaults to the request id.
func ContextPropagationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var traceID string
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		} else {
			traceID = inboundID(c, "X-Trace-ID")
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), TraceIDKey, traceID))
		c.Set("traceID", traceID)
		c.Header("X-Trace-ID", traceID)

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = c.GetString("requestID")
		}
		c.Set("correlationID", correlationID)
		c.Header("X-Correlation-ID", correlationID)
		c.Next()
	}
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// GetRequestID extracts the request ID from a context
func GetRequestID(ctx context.Context) string { return stringValue(ctx, RequestIDKey) }

// GetTraceID extracts the trace ID from a context
func GetTraceID(ctx context.Context) string { return stringValue(ctx, TraceIDKey) }
