// Package middleware provides HTTP middleware for the legacy-use gateway.
// This file implements request timeout enforcement.
//
// A fixed request deadline is wrong for this gateway's two long-lived
// routes — the browser-facing VNC relay (/vnc/:session_id/websockify)
// and the internal shared-gateway relay (/websockify) both hold their
// connection open for the lifetime of a session, not a single request/
// response cycle. Any WebSocket upgrade is therefore exempted outright,
// on top of the configurable ExcludedPaths prefix list.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// TimeoutConfig holds configuration for request timeouts.
type TimeoutConfig struct {
	// Timeout is the maximum duration for the entire request.
	Timeout time.Duration

	// ErrorMessage is the message returned when timeout occurs.
	ErrorMessage string

	// ExcludedPaths are path prefixes that should not have the timeout
	// applied, beyond the automatic WebSocket-upgrade exemption.
	ExcludedPaths []string
}

// DefaultTimeoutConfig returns the default timeout configuration: 30s for
// ordinary HTTP handlers (pool admin, init-status, health).
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Timeout:      30 * time.Second,
		ErrorMessage: "Request timeout",
	}
}

// Timeout middleware enforces a request deadline to prevent a slow or
// stuck handler from holding a server goroutine indefinitely.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) || isExcluded(c.Request.URL.Path, config.ExcludedPaths) {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		go func() {
			c.Next()
			close(finished)
		}()

		select {
		case <-finished:
			return
		case <-ctx.Done():
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"error":   config.ErrorMessage,
				"message": "The request took too long to process",
				"timeout": config.Timeout.String(),
			})
		}
	}
}

func isExcluded(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// TimeoutWithDuration creates a timeout middleware with the given duration.
func TimeoutWithDuration(timeout time.Duration) gin.HandlerFunc {
	config := DefaultTimeoutConfig()
	config.Timeout = timeout
	return Timeout(config)
}
