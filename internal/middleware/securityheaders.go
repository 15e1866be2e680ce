package middleware

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/gin-gonic/gin"
)

// cspNonce returns a fresh base64-encoded 128-bit value, or "" if the
// system's entropy source fails (callers then emit a nonce-free CSP).
func cspNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// SecurityHeaders adds the standard security header set to every
// response. The VNC relay under /vnc/ is the one path class a viewer
// page embeds in an iframe and holds a WebSocket open to, so framing and
// connect-src are relaxed there; everything else gets the strict policy.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		vncRelay := strings.HasPrefix(c.Request.URL.Path, "/vnc/")

		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Header("X-Download-Options", "noopen")
		c.Header("Server", "")

		if vncRelay {
			c.Header("X-Frame-Options", "SAMEORIGIN")
		} else {
			c.Header("X-Frame-Options", "DENY")
		}

		c.Header("Content-Security-Policy", buildCSP(vncRelay, cspNonce()))

		if c.Request.URL.Path != "/health" {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
			c.Header("Pragma", "no-cache")
		}

		c.Next()
	}
}

// buildCSP assembles the Content-Security-Policy value. The VNC relay
// needs frame-ancestors 'self' plus ws:/wss: connect-src for the live
// websockify connection; no other route may open a raw WebSocket or be
// framed.
func buildCSP(vncRelay bool, nonce string) string {
	script, style := "'self'", "'self'"
	if nonce != "" {
		script += " 'nonce-" + nonce + "'"
		style += " 'nonce-" + nonce + "'"
	}
	frameAncestors, connectSrc := "'none'", "'self'"
	if vncRelay {
		frameAncestors = "'self'"
		connectSrc = "'self' ws: wss:"
	}

	directives := []string{
		"default-src 'self'",
		"script-src " + script,
		"style-src " + style,
		"img-src 'self' data: https:",
		"font-src 'self' data:",
		"connect-src " + connectSrc,
		"frame-ancestors " + frameAncestors,
		"base-uri 'self'",
		"form-action 'self'",
	}
	if nonce != "" {
		directives = append(directives, "upgrade-insecure-requests", "block-all-mixed-content")
	}
	return strings.Join(directives, "; ")
}

// SecurityHeadersRelaxed is the local-development variant: inline CSP,
// same-origin framing, no preload. Never use outside local dev.
func SecurityHeadersRelaxed() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Content-Security-Policy",
			"default-src 'self' 'unsafe-inline' 'unsafe-eval'; "+
				"img-src 'self' data: https:; "+
				"connect-src 'self' ws: wss: http: https:")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Header("X-Download-Options", "noopen")
		c.Next()
	}
}
