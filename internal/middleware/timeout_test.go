package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIsExcluded(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		prefixes []string
		want     bool
	}{
		{"no prefixes configured", "/containers", nil, false},
		{"matching prefix", "/containers/status", []string{"/containers"}, true},
		{"non-matching prefix", "/health", []string{"/containers"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isExcluded(c.path, c.prefixes); got != c.want {
				t.Errorf("isExcluded(%q, %v) = %v, want %v", c.path, c.prefixes, got, c.want)
			}
		})
	}
}

func TestTimeoutAbortsSlowHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Timeout(TimeoutConfig{Timeout: 10 * time.Millisecond, ErrorMessage: "Request timeout"}))
	router.GET("/slow", func(c *gin.Context) {
		time.Sleep(50 * time.Millisecond)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/slow", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusRequestTimeout {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestTimeout)
	}
}

func TestTimeoutExemptsWebSocketUpgrade(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Timeout(TimeoutConfig{Timeout: 10 * time.Millisecond, ErrorMessage: "Request timeout"}))
	router.GET("/vnc/:session_id/*path", func(c *gin.Context) {
		time.Sleep(50 * time.Millisecond)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/vnc/s1/websockify", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d (websocket upgrade must be exempt from the timeout)", w.Code, http.StatusOK)
	}
}
