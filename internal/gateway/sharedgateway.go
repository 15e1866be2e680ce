package gateway

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/legacy-use/gateway/internal/bridge"
	apperrors "github.com/legacy-use/gateway/internal/errors"
	"github.com/legacy-use/gateway/internal/logger"
)

// DefaultNamespace is the fallback for X-Namespace.
const DefaultNamespace = "legacy-use"

// DefaultVNCPort is the fallback for X-Target-Port.
const DefaultVNCPort = "5900"

// SharedGateway is the single internal endpoint that inspects the
// routing headers set by the browser endpoint to select a generic or VM
// bridge, then proxies bytes. It is bound to a loopback/internal-only
// listener by deployment rather than authenticated here.
type SharedGateway struct {
	table          *bridge.Table
	genericConfig  bridge.GenericConfig
	clusterBackend VMBridgeFactory
	allowedOrigins map[string]bool
	upgrader       websocket.Upgrader
}

// VMBridgeFactory constructs a VM bridge for one session. Satisfied by
// *orchestrator.ClusterBackend (its NewVMBridge method), so this package
// does not need to import client-go's rest.Config type directly.
type VMBridgeFactory interface {
	NewVMBridge(sessionID, namespace, vmiName string) (*bridge.VMBridge, error)
}

// NewSharedGateway builds the gateway. clusterBackend may be nil in
// deployments with no Kubernetes backend configured; VM-routed requests
// then fail with ServiceUnavailable. A request carrying an Origin header
// must match allowedOrigins; an absent Origin (the expected case for a
// loopback-only backend call, as opposed to a browser) always passes.
func NewSharedGateway(table *bridge.Table, genericConfig bridge.GenericConfig, clusterBackend VMBridgeFactory, allowedOrigins ...string) *SharedGateway {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	sg := &SharedGateway{
		table:          table,
		genericConfig:  genericConfig,
		clusterBackend: clusterBackend,
		allowedOrigins: origins,
	}
	sg.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     sg.checkOrigin,
	}
	return sg
}

// checkOrigin lets requests with no Origin header pass (the internal
// caller is not a browser); requests with one must match the configured
// allowlist.
func (g *SharedGateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return g.allowedOrigins[origin]
}

// Handle serves WS /websockify on the internal listener.
func (g *SharedGateway) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.GetHeader("X-Session-Id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("X-Session-Id header required").ToResponse())
		return
	}
	targetHost := c.GetHeader("X-Target-Host")
	if targetHost == "" {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("X-Target-Host header required").ToResponse())
		return
	}
	targetPort, err := strconv.Atoi(firstNonEmpty(c.GetHeader("X-Target-Port"), DefaultVNCPort))
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("X-Target-Port must be numeric").ToResponse())
		return
	}
	vmiName := c.GetHeader("X-VMI-Name")
	namespace := firstNonEmpty(c.GetHeader("X-Namespace"), DefaultNamespace)

	log := logger.Gateway().With().Str("session", sessionID).Bool("vm", vmiName != "").Logger()

	downstream, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("internal upgrade failed")
		return
	}
	defer downstream.Close()
	defer g.table.Terminate(sessionID)

	br, err := g.startBridge(ctx, sessionID, targetHost, targetPort, namespace, vmiName)
	if err != nil {
		log.Error().Err(err).Msg("bridge startup failed")
		closeDownstream(downstream, apperrors.WSCloseInternalError, err.Error())
		return
	}

	if err := br.Serve(ctx, downstream); err != nil {
		log.Info().Err(err).Msg("bridge relay ended")
		if appErr, ok := err.(*apperrors.AppError); ok && appErr.WSCloseCode != 0 {
			closeDownstream(downstream, appErr.WSCloseCode, appErr.Message)
		}
	}
}

func (g *SharedGateway) startBridge(ctx context.Context, sessionID, host string, port int, namespace, vmiName string) (bridge.Bridge, error) {
	if vmiName != "" {
		if g.clusterBackend == nil {
			return nil, apperrors.ServiceUnavailable("cluster backend (VM routing unavailable)")
		}
		vb, err := g.clusterBackend.NewVMBridge(sessionID, namespace, vmiName)
		if err != nil {
			return nil, err
		}
		g.table.Put(sessionID, vb)
		return vb, nil
	}

	localPort := g.table.Ports().Allocate(sessionID)
	gb, err := bridge.StartGenericBridge(ctx, sessionID, host, port, localPort, g.genericConfig)
	if err != nil {
		g.table.Ports().Release(sessionID)
		return nil, err
	}
	g.table.Put(sessionID, gb)
	return gb, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
