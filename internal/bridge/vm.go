package bridge

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/transport"

	apperrors "github.com/legacy-use/gateway/internal/errors"
	"github.com/legacy-use/gateway/internal/logger"
)

// VMBridge IS the WebSocket client to the cluster's VM-VNC sub-resource;
// unlike GenericBridge there is no subprocess. TLS and bearer-token configuration are derived from the same
// rest.Config the orchestrator's ClusterBackend resolved, so the bridge
// authenticates with the in-cluster service-account identity and
// verifies the cluster's CA where available.
type VMBridge struct {
	sessionID string
	url       string
	header    http.Header
	dialer    *websocket.Dialer
}

// NewVMBridge builds a bridge bound to one VM instance's VNC
// sub-resource. namespace/vmiName come from the X-Namespace/X-VMI-Name
// routing headers the browser endpoint set.
func NewVMBridge(sessionID string, restConfig *rest.Config, namespace, vmiName string) (*VMBridge, error) {
	tlsConfig, err := tlsConfigFor(restConfig)
	if err != nil {
		return nil, apperrors.AuthFailure(fmt.Sprintf("resolve cluster TLS config: %v", err))
	}

	host := strings.TrimSuffix(restConfig.Host, "/")
	wsURL := toWebSocketScheme(host) + fmt.Sprintf(
		"/apis/subresources.kubevirt.io/v1/namespaces/%s/virtualmachineinstances/%s/vnc",
		namespace, vmiName)

	header := http.Header{}
	if token := bearerToken(restConfig); token != "" {
		header.Set("Authorization", "Bearer "+token)
	} else {
		return nil, apperrors.AuthFailure("no bearer token available for cluster VM VNC sub-resource")
	}

	return &VMBridge{
		sessionID: sessionID,
		url:       wsURL,
		header:    header,
		dialer:    &websocket.Dialer{TLSClientConfig: tlsConfig},
	}, nil
}

// Serve dials the VM-VNC sub-resource and relays until either side
// closes. An HTTP 401/403 on dial is surfaced as AuthFailure so callers
// close 1011 and don't retry under the same session without a fresh
// token.
func (b *VMBridge) Serve(ctx context.Context, downstream *websocket.Conn) error {
	upstream, resp, err := b.dialer.DialContext(ctx, b.url, b.header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return apperrors.AuthFailure(fmt.Sprintf("cluster VM VNC rejected credentials: %s", resp.Status))
		}
		return apperrors.BridgeStartupFailure(b.sessionID, fmt.Errorf("dial VM VNC sub-resource: %w", err))
	}
	defer upstream.Close()

	logger.Bridge().Info().Str("session", b.sessionID).Str("url", b.url).Msg("VM bridge connected")
	return Relay(ctx, downstream, upstream)
}

// Close is a no-op for VM bridges: there is no owned subprocess, and the
// upstream connection's lifetime is scoped to a single Serve call.
func (b *VMBridge) Close() error { return nil }

func toWebSocketScheme(host string) string {
	switch {
	case strings.HasPrefix(host, "https://"):
		return "wss://" + strings.TrimPrefix(host, "https://")
	case strings.HasPrefix(host, "http://"):
		return "ws://" + strings.TrimPrefix(host, "http://")
	default:
		return "wss://" + host
	}
}

func bearerToken(cfg *rest.Config) string {
	if cfg.BearerToken != "" {
		return cfg.BearerToken
	}
	if cfg.BearerTokenFile != "" {
		if raw, err := os.ReadFile(cfg.BearerTokenFile); err == nil {
			return strings.TrimSpace(string(raw))
		}
	}
	return ""
}

func tlsConfigFor(cfg *rest.Config) (*tls.Config, error) {
	tc, err := cfg.TransportConfig()
	if err != nil {
		return nil, err
	}
	return transport.TLSConfigFor(tc)
}
