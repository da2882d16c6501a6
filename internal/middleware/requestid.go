package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the request ID string is stored.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware returns a Gin handler that ensures every request carries a unique
// identifier. An inbound X-Request-ID header set by a proxy or caller is reused unchanged;
// otherwise a UUID v4 is generated.
//
// The identifier is stored under RequestIDKey and echoed in the response header so that
// clients can correlate a response with the server-side log record.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// RequestID returns the identifier assigned by RequestIDMiddleware, or "" when the
// middleware did not run for this request.
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
