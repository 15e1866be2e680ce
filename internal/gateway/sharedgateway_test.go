package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/legacy-use/gateway/internal/bridge"
)

func newSharedGatewayRequest(headers map[string]string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/websockify", nil)
	for k, v := range headers {
		c.Request.Header.Set(k, v)
	}
	return c, w
}

func TestSharedGatewayHandleRequiresSessionID(t *testing.T) {
	sg := NewSharedGateway(bridge.NewTable(), bridge.GenericConfig{}, nil)
	c, w := newSharedGatewayRequest(map[string]string{"X-Target-Host": "10.0.0.1"})

	sg.Handle(c)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when X-Session-Id is missing", w.Code)
	}
}

func TestSharedGatewayHandleRequiresTargetHost(t *testing.T) {
	sg := NewSharedGateway(bridge.NewTable(), bridge.GenericConfig{}, nil)
	c, w := newSharedGatewayRequest(map[string]string{"X-Session-Id": "s1"})

	sg.Handle(c)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when X-Target-Host is missing", w.Code)
	}
}

func TestSharedGatewayHandleRejectsNonNumericTargetPort(t *testing.T) {
	sg := NewSharedGateway(bridge.NewTable(), bridge.GenericConfig{}, nil)
	c, w := newSharedGatewayRequest(map[string]string{
		"X-Session-Id":  "s1",
		"X-Target-Host": "10.0.0.1",
		"X-Target-Port": "not-a-port",
	})

	sg.Handle(c)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a non-numeric X-Target-Port", w.Code)
	}
}

func TestSharedGatewayStartBridgeVMRequiresClusterBackend(t *testing.T) {
	sg := NewSharedGateway(bridge.NewTable(), bridge.GenericConfig{}, nil)

	_, err := sg.startBridge(context.Background(), "s1", "10.0.0.1", 5900, "legacy-use", "vmi-1")
	if err == nil {
		t.Fatal("expected an error when routing a VM session with no cluster backend configured")
	}
}

func TestCheckOriginAllowsAbsentOrigin(t *testing.T) {
	sg := NewSharedGateway(bridge.NewTable(), bridge.GenericConfig{}, nil, "https://allowed.example.com")
	r := httptest.NewRequest(http.MethodGet, "/websockify", nil)
	if !sg.checkOrigin(r) {
		t.Error("expected a request with no Origin header to pass")
	}
}

func TestCheckOriginRejectsUnlistedOrigin(t *testing.T) {
	sg := NewSharedGateway(bridge.NewTable(), bridge.GenericConfig{}, nil, "https://allowed.example.com")
	r := httptest.NewRequest(http.MethodGet, "/websockify", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	if sg.checkOrigin(r) {
		t.Error("expected a request with an unlisted Origin to be rejected")
	}
}

func TestCheckOriginAllowsListedOrigin(t *testing.T) {
	sg := NewSharedGateway(bridge.NewTable(), bridge.GenericConfig{}, nil, "https://allowed.example.com")
	r := httptest.NewRequest(http.MethodGet, "/websockify", nil)
	r.Header.Set("Origin", "https://allowed.example.com")
	if !sg.checkOrigin(r) {
		t.Error("expected a request with a listed Origin to pass")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "b"); got != "b" {
		t.Errorf("firstNonEmpty = %q, want b", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Errorf("firstNonEmpty() with no args = %q, want empty", got)
	}
}
