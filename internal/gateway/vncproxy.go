// Package gateway implements the browser-facing WebSocket entry point
// and the shared internal VNC gateway it forwards to. Each upgrade runs
// exactly one binary-clean relay; RFB has no framing of its own to
// multiplex.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/legacy-use/gateway/internal/bridge"
	apperrors "github.com/legacy-use/gateway/internal/errors"
	"github.com/legacy-use/gateway/internal/logger"
	"github.com/legacy-use/gateway/internal/model"
)

// SessionReader is the narrow slice of the session store the gateway
// needs: enough to resolve a session's coordinates, nothing that would
// let it mutate state outside the lifecycle manager's ownership.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
	GetTarget(ctx context.Context, id string) (*model.Target, error)
}

// ActiveMarker flags ready->active on first successful upgrade,
// satisfied by *lifecycle.Manager.
type ActiveMarker interface {
	MarkActive(ctx context.Context, sessionID string) error
}

// Config holds the browser endpoint's per-deployment knobs.
type Config struct {
	// InternalGatewayURL is the shared gateway's own websocket endpoint,
	// e.g. "ws://127.0.0.1:8765/websockify". The shared gateway binds
	// loopback-only, so this is never externally reachable.
	InternalGatewayURL string
	// Namespace is sent as X-Namespace for VM-routed sessions.
	Namespace string
}

// VNCProxyHandler is the per-session browser entry point: validate the
// session, rewrite network coordinates, and run a binary-clean relay
// against the shared gateway.
type VNCProxyHandler struct {
	store    SessionReader
	resolver *HostResolver
	active   ActiveMarker
	cfg      Config
	upgrader websocket.Upgrader
}

// NewVNCProxyHandler builds the handler. active may be nil in tests that
// don't care about the ready->active transition.
func NewVNCProxyHandler(store SessionReader, resolver *HostResolver, active ActiveMarker, cfg Config) *VNCProxyHandler {
	return &VNCProxyHandler{
		store:    store,
		resolver: resolver,
		active:   active,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle serves WS /vnc/{session_id}/websockify.
func (h *VNCProxyHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")
	log := logger.Gateway().With().Str("session", sessionID).Logger()

	session, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		h.rejectBeforeUpgrade(c, apperrors.SessionNotFound(sessionID))
		return
	}
	if session.State != model.StateReady && session.State != model.StateActive {
		h.rejectBeforeUpgrade(c, apperrors.SessionNotReady(sessionID, string(session.State)))
		return
	}

	target, err := h.store.GetTarget(ctx, session.TargetID)
	if err != nil {
		h.rejectBeforeUpgrade(c, apperrors.NotFound(fmt.Sprintf("target %s", session.TargetID)))
		return
	}

	subprotocols := websocket.Subprotocols(c.Request)
	var respHeader http.Header
	if len(subprotocols) > 0 {
		respHeader = http.Header{"Sec-WebSocket-Protocol": []string{subprotocols[0]}}
	}

	downstream, err := h.upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer downstream.Close()

	headers := h.buildUpstreamHeaders(*session, *target)
	upstream, resp, err := websocket.DefaultDialer.DialContext(ctx, h.cfg.InternalGatewayURL, headers)
	if err != nil {
		reason := "bridge unavailable"
		if resp != nil {
			reason = fmt.Sprintf("bridge unavailable: %s", resp.Status)
		}
		log.Error().Err(err).Msg("failed to reach shared gateway")
		closeDownstream(downstream, apperrors.WSCloseInternalError, reason)
		return
	}
	defer upstream.Close()

	if h.active != nil {
		if err := h.active.MarkActive(ctx, sessionID); err != nil {
			log.Warn().Err(err).Msg("failed to mark session active")
		}
	}

	relayErr := bridge.Relay(ctx, downstream, upstream)
	code, reason := closeCodeFor(relayErr)
	closeDownstream(downstream, code, reason)
}

// buildUpstreamHeaders assembles the routing headers the shared gateway
// dispatches on.
func (h *VNCProxyHandler) buildUpstreamHeaders(session model.Session, target model.Target) http.Header {
	headers := http.Header{}
	headers.Set("X-Session-Id", session.ID)
	headers.Set("X-Target-Port", fmt.Sprintf("%d", session.VNCPort))

	if session.IsVMSentinel() {
		headers.Set("X-Target-Host", session.ContainerIP) // sentinel; ignored once X-VMI-Name is set
		headers.Set("X-VMI-Name", session.ContainerID)
		headers.Set("X-Namespace", h.cfg.Namespace)
		return headers
	}

	headers.Set("X-Target-Host", h.resolver.Resolve(target.Type, session.ContainerIP))
	return headers
}

// rejectBeforeUpgrade turns a session-validation failure into a close
// frame. A close code can't be sent over plain HTTP, so the handshake is
// completed first and the connection closed immediately with the policy
// code.
func (h *VNCProxyHandler) rejectBeforeUpgrade(c *gin.Context, appErr *apperrors.AppError) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	defer conn.Close()
	code := appErr.WSCloseCode
	if code == 0 {
		code = apperrors.WSClosePolicy
	}
	closeDownstream(conn, code, appErr.Message)
}

func closeDownstream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(2*time.Second))
}

func closeCodeFor(err error) (int, string) {
	if err == nil {
		return apperrors.WSCloseNormal, "closed"
	}
	code := bridge.CodeOf(err)
	if code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway {
		return code, "closed"
	}
	return apperrors.WSCloseInternalError, err.Error()
}
