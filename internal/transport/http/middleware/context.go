package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// TraceIDHeader is the HTTP header name for the trace id.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the gin context key for the trace id.
	TraceIDKey = "trace_id"
	// SessionKey is the gin context key for the authenticated session.
	SessionKey = "session"
	// UserIDKey is the gin context key for the authenticated user id.
	UserIDKey = "user_id"
)

// EnrichContext propagates or mints a trace id for each request.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}

// GetTraceID retrieves the trace id from the context.
func GetTraceID(c *gin.Context) string {
	val, exists := c.Get(TraceIDKey)
	if exists {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}
