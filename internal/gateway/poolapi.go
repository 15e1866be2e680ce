package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/legacy-use/gateway/internal/errors"
	"github.com/legacy-use/gateway/internal/middleware"
	"github.com/legacy-use/gateway/internal/pool"
)

// PoolAdmin implements the container-pool administration endpoints:
// list/status/allocate/release/refresh, all thin wrappers over the
// pool's public API.
type PoolAdmin struct {
	pool *pool.Pool
}

// NewPoolAdmin builds the admin handler group over a live pool.
func NewPoolAdmin(p *pool.Pool) *PoolAdmin {
	return &PoolAdmin{pool: p}
}

// containerView is the wire shape for GET /containers entries.
type containerView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TargetType string `json:"target_type"`
	Status     string `json:"status"`
	Scalable   bool   `json:"scalable"`
	SessionID  string `json:"session_id,omitempty"`
}

// List handles GET /containers?target_type=&available_only=.
func (a *PoolAdmin) List(c *gin.Context) {
	targetType := c.Query("target_type")
	availableOnly := c.Query("available_only") == "true"

	all := a.pool.List(c.Request.Context())
	out := make([]containerView, 0, len(all))
	for _, w := range all {
		if targetType != "" && w.TargetType != targetType {
			continue
		}
		if availableOnly && (w.SessionID != "" || !w.Healthy()) {
			continue
		}
		out = append(out, containerView{
			ID:         w.ID,
			Name:       w.Name,
			TargetType: w.TargetType,
			Status:     string(w.Status),
			Scalable:   w.Scalable,
			SessionID:  w.SessionID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"containers": out})
}

// Status handles GET /containers/status.
func (a *PoolAdmin) Status(c *gin.Context) {
	c.JSON(http.StatusOK, a.pool.Status())
}

// Allocate handles POST /containers/{target_type}/allocate?session_id=.
// Routed as /containers/:id/allocate (gin rejects two differently-named
// params at the same path depth as Release's /:id/release), so the path
// parameter is read as "id" here rather than "target_type".
// A caller-supplied session_id is accepted for idempotent retries; one
// is generated when omitted.
func (a *PoolAdmin) Allocate(c *gin.Context) {
	targetType := c.Param("id")
	if targetType == "" {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("target_type is required").ToResponse())
		return
	}
	if err := middleware.ValidateResourceName(targetType); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.BadRequest("invalid target_type: "+err.Error()).ToResponse())
		return
	}
	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	w, ok := a.pool.Allocate(c.Request.Context(), sessionID, targetType)
	if !ok {
		appErr := apperrors.NoCapacity(targetType)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "workload": w})
}

// Release handles POST /containers/{session_id}/release, routed as
// /containers/:id/release (see Allocate's doc comment on the shared
// param name).
func (a *PoolAdmin) Release(c *gin.Context) {
	sessionID := c.Param("id")
	if !a.pool.Release(sessionID) {
		appErr := apperrors.NotFound("allocation for session " + sessionID)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	c.Status(http.StatusNoContent)
}

// Refresh handles POST /containers/refresh: bypasses the snapshot TTL.
func (a *PoolAdmin) Refresh(c *gin.Context) {
	workloads := a.pool.ForceRefresh(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"count": len(workloads), "workloads": workloads})
}
