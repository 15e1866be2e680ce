// Package middleware provides HTTP middleware for the legacy-use gateway.
// This file implements structured request logging.
//
// Purpose:
// The structured logger middleware captures detailed information about every HTTP
// request in a consistent, machine-parseable format. This enables log analysis,
// alerting, debugging, and observability in production environments.
//
// Logged Fields:
// - request_id: Correlation ID for distributed tracing (from RequestID middleware)
// - method, path, query, status, duration, client_ip, user_agent
// - errors: Concatenated error messages (if any occurred)
//
// Log Levels:
// - info: Successful requests (2xx/3xx)
// - warn: Client errors (4xx)
// - error: Server errors (5xx)
//
// Usage:
//   router.Use(middleware.StructuredLogger())
//
//   config := middleware.DefaultStructuredLoggerConfig()
//   config.SkipHealthCheck = true
//   config.LogQuery = false
//   router.Use(middleware.StructuredLoggerWithConfigFunc(config))
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/legacy-use/gateway/internal/logger"
)

// StructuredLogger provides structured logging for all requests using the
// default configuration.
func StructuredLogger() gin.HandlerFunc {
	return StructuredLoggerWithConfigFunc(DefaultStructuredLoggerConfig())
}

// StructuredLoggerConfig allows customization of structured logging.
type StructuredLoggerConfig struct {
	// SkipPaths is a list of paths to skip logging (e.g., health checks).
	SkipPaths []string

	// SkipHealthCheck if true, skips logging for /health endpoints.
	SkipHealthCheck bool

	// LogQuery if false, skips logging query parameters (for privacy).
	LogQuery bool

	// LogUserAgent if false, skips logging user agent.
	LogUserAgent bool
}

// DefaultStructuredLoggerConfig returns default configuration.
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipPaths:       []string{},
		SkipHealthCheck: true,
		LogQuery:        true,
		LogUserAgent:    true,
	}
}

// StructuredLoggerWithConfigFunc creates a structured logger with custom config.
func StructuredLoggerWithConfigFunc(config StructuredLoggerConfig) gin.HandlerFunc {
	skipMap := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}
	if config.SkipHealthCheck {
		skipMap["/health"] = true
		skipMap["/api/v1/health"] = true
	}

	log := logger.HTTP()

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skipMap[path] {
			c.Next()
			return
		}

		start := time.Now()
		raw := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		evt := log.Info()
		switch {
		case status >= 500:
			evt = log.Error()
		case status >= 400:
			evt = log.Warn()
		}

		evt = evt.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP())

		if config.LogQuery && raw != "" {
			evt = evt.Str("query", raw)
		}
		if config.LogUserAgent {
			evt = evt.Str("user_agent", c.Request.UserAgent())
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}

		evt.Msg("request handled")
	}
}
