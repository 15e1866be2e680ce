// Package orchestrator provides a uniform view over a container engine or
// a cluster API behind a single Adapter interface. Consumers never branch
// on the backend except when building cluster-specific upstream URLs for
// VM VNC (see internal/bridge).
package orchestrator

import (
	"context"

	"github.com/legacy-use/gateway/internal/model"
)

// Adapter is the uniform interface the pool and the health monitor
// consume. Every operation is total: it returns a value or false/nil,
// never an error to the caller — transient backend failures are logged
// internally and mapped to empty results so callers can converge on the
// next cycle.
type Adapter interface {
	// ListContainers returns the live, healthy-or-not workloads visible
	// in the configured namespace/project, optionally filtered by label.
	ListContainers(ctx context.Context, labelFilters map[string]string) []model.Workload

	// GetContainer looks up a single workload by id. Returns (Workload{},
	// false) if not found.
	GetContainer(ctx context.Context, id string) (model.Workload, bool)

	// ScaleService rescales the named service to the given replica count.
	// Returns false on failure.
	ScaleService(ctx context.Context, serviceName string, replicas int) bool

	// CheckHealth performs a bounded-timeout health probe against a
	// workload's management endpoint. Returns true only on success.
	CheckHealth(ctx context.Context, id, path string) bool
}
