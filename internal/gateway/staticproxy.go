package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/legacy-use/gateway/internal/bridge"
	apperrors "github.com/legacy-use/gateway/internal/errors"
)

// StaticProxy implements GET /vnc/{session_id}/{path}: the embedded
// viewer's static and dynamic assets, served by the session's generic
// bridge adapter on its local port, which serves the viewer asset tree
// at /. VM-routed sessions have no local
// adapter to proxy to; the viewer app for those is served separately.
type StaticProxy struct {
	store SessionReader
	ports *bridge.PortAllocator
}

// NewStaticProxy builds the viewer-asset proxy. ports must be the same
// allocator the shared gateway's generic bridges were started with, so
// the port this proxy dials matches the one the bridge actually bound.
func NewStaticProxy(store SessionReader, ports *bridge.PortAllocator) *StaticProxy {
	return &StaticProxy{store: store, ports: ports}
}

// Handle serves GET /vnc/{session_id}/*path by reverse-proxying to the
// session's local adapter port.
func (p *StaticProxy) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	session, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.SessionNotFound(sessionID))
		return
	}
	if session.IsVMSentinel() {
		apperrors.AbortWithError(c, apperrors.NotFound("static viewer assets for VM session"))
		return
	}

	port, ok := p.ports.Lookup(sessionID)
	if !ok {
		apperrors.AbortWithError(c, apperrors.SessionNotReady(sessionID, string(session.State)))
		return
	}

	target := &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", port)}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		apperrors.AbortWithError(c, apperrors.ServiceUnavailable("viewer asset adapter"))
	}

	c.Request.URL.Path = c.Param("path")
	proxy.ServeHTTP(c.Writer, c.Request)
}
