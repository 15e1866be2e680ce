// Package middleware provides HTTP middleware for the legacy-use gateway.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation ID between client and gateway.
const RequestIDHeader = "X-Request-ID"

// RequestIDKey is the gin context key the structured logger reads.
const RequestIDKey = "request_id"

// RequestID attaches a correlation ID to every request so a session's
// create/connect/destroy log lines can be tied together even though each
// is handled by a different goroutine. An incoming X-Request-ID is
// honored if it looks sane; otherwise a fresh UUID is minted.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request's correlation ID, or "" when the
// RequestID middleware did not run.
func GetRequestID(c *gin.Context) string {
	id, _ := c.Value(RequestIDKey).(string)
	return id
}
