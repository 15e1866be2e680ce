package gateway

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// InitStatus serves GET /api/init-status: a boot probe the viewer polls
// before it tries to open a session, telling it whether an API key is
// required and already configured server-side.
type InitStatus struct {
	currentProvider string
}

// NewInitStatus reads the provider name once at startup; it never changes
// at runtime.
func NewInitStatus(currentProvider string) *InitStatus {
	return &InitStatus{currentProvider: currentProvider}
}

// Handle reports requires_api_key from LEGACY_USE_URL presence,
// is_configured when both API_KEY and LEGACY_USE_URL are set, and
// current_provider from the name given to NewInitStatus, never echoing the
// key itself except as a redacted default_api_key hint when one is set.
func (h *InitStatus) Handle(c *gin.Context) {
	apiKey := os.Getenv("API_KEY")
	legacyUseURL := os.Getenv("LEGACY_USE_URL")

	resp := gin.H{
		"requires_api_key": legacyUseURL != "",
		"is_configured":    apiKey != "" && legacyUseURL != "",
		"current_provider": h.currentProvider,
	}
	if apiKey != "" {
		resp["default_api_key"] = redactKey(apiKey)
	}
	c.JSON(http.StatusOK, resp)
}

// redactKey keeps only enough of an API key to confirm one is set without
// exposing it in a browser-visible response.
func redactKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
