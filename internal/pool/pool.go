// Package pool implements the container pool: an in-memory allocation
// ledger mapping session to workload, refreshed from the orchestrator
// adapter, enforcing at-most-one allocation per workload.
//
// No orchestrator I/O happens while the ledger mutex is held — snapshots
// are fetched outside the critical section and only the map mutation
// itself is serialized. The forward and reverse maps are mutated together
// under the same lock so they stay exact inverses.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/legacy-use/gateway/internal/cache"
	"github.com/legacy-use/gateway/internal/logger"
	"github.com/legacy-use/gateway/internal/model"
	"github.com/legacy-use/gateway/internal/orchestrator"
)

const snapshotCacheKey = "legacy-use:pool:snapshot"

// DefaultSnapshotTTL is the cache lifetime for a list_containers snapshot
// before the next allocate forces a re-fetch.
const DefaultSnapshotTTL = 5 * time.Second

// ScaleDownDelay is how long Release waits before checking whether the
// freed workload's type is over-provisioned.
const ScaleDownDelay = 10 * time.Second

// scaleCooldown debounces repeated scale-up triggers for the same target
// type so a burst of failed allocates doesn't flood the orchestrator.
const scaleCooldown = 15 * time.Second

// Pool owns the allocation ledger and performs matchmaking between
// session requests and orchestrator-discovered workloads.
type Pool struct {
	mu sync.Mutex

	sessionToWorkload map[string]string
	workloadToSession map[string]string

	snapshot     []model.Workload
	snapshotByID map[string]model.Workload
	snapshotAt   time.Time

	lastScaleAttempt map[string]time.Time

	adapter      orchestrator.Adapter
	cache        *cache.Cache
	serviceNames *orchestrator.ServiceNameTable
	ttl          time.Duration
}

// New builds a Pool over the given orchestrator adapter. cache may be a
// disabled no-op cache (see internal/cache).
func New(adapter orchestrator.Adapter, c *cache.Cache, serviceNames *orchestrator.ServiceNameTable) *Pool {
	return &Pool{
		sessionToWorkload: make(map[string]string),
		workloadToSession: make(map[string]string),
		snapshotByID:      make(map[string]model.Workload),
		lastScaleAttempt:  make(map[string]time.Time),
		adapter:           adapter,
		cache:             c,
		serviceNames:      serviceNames,
		ttl:               DefaultSnapshotTTL,
	}
}

// Allocate reuses a still-healthy existing binding, otherwise scans a
// fresh snapshot for the first matching, healthy, unallocated, scalable
// workload of the requested type. Returns (Workload{}, false) if none is
// available; a scale-up is triggered asynchronously and the caller is
// expected to retry on its own schedule.
func (p *Pool) Allocate(ctx context.Context, sessionID, targetType string) (model.Workload, bool) {
	if w, ok := p.reuseExisting(sessionID); ok {
		return w, true
	}

	snapshot := p.refresh(ctx, false)

	p.mu.Lock()
	for _, w := range snapshot {
		if !w.Scalable || w.TargetType != targetType || !w.Healthy() {
			continue
		}
		if _, taken := p.workloadToSession[w.ID]; taken {
			continue
		}
		p.sessionToWorkload[sessionID] = w.ID
		p.workloadToSession[w.ID] = sessionID
		p.mu.Unlock()
		logger.Pool().Info().Str("session", sessionID).Str("workload", w.ID).Str("type", targetType).Msg("allocated")
		return w, true
	}
	p.mu.Unlock()

	go p.triggerScaleUp(targetType, snapshot)
	return model.Workload{}, false
}

// reuseExisting returns the session's current binding if it is still
// healthy per the last snapshot, evicting it otherwise (step 1 of
// Allocate). No I/O: it consults the cached snapshot under the lock.
func (p *Pool) reuseExisting(sessionID string) (model.Workload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wid, ok := p.sessionToWorkload[sessionID]
	if !ok {
		return model.Workload{}, false
	}
	if w, ok := p.snapshotByID[wid]; ok && w.Healthy() {
		return w, true
	}
	delete(p.sessionToWorkload, sessionID)
	delete(p.workloadToSession, wid)
	return model.Workload{}, false
}

// Release removes both ledger directions for a session. Idempotent:
// returns false if the session had no allocation.
func (p *Pool) Release(sessionID string) bool {
	p.mu.Lock()
	wid, ok := p.sessionToWorkload[sessionID]
	if !ok {
		p.mu.Unlock()
		return false
	}
	delete(p.sessionToWorkload, sessionID)
	delete(p.workloadToSession, wid)
	targetType := p.snapshotByID[wid].TargetType
	p.mu.Unlock()

	logger.Pool().Info().Str("session", sessionID).Str("workload", wid).Msg("released")
	if targetType != "" {
		go p.scheduleScaleDown(targetType)
	}
	return true
}

// GetForSession is a read-through lookup that rechecks liveness via the
// orchestrator adapter and evicts the binding if the workload is gone.
func (p *Pool) GetForSession(ctx context.Context, sessionID string) (model.Workload, bool) {
	p.mu.Lock()
	wid, ok := p.sessionToWorkload[sessionID]
	p.mu.Unlock()
	if !ok {
		return model.Workload{}, false
	}

	w, ok := p.adapter.GetContainer(ctx, wid)
	if !ok || !w.Healthy() {
		p.mu.Lock()
		if p.sessionToWorkload[sessionID] == wid {
			delete(p.sessionToWorkload, sessionID)
			delete(p.workloadToSession, wid)
		}
		p.mu.Unlock()
		return model.Workload{}, false
	}
	return w, true
}

// AllocatedWorkload augments a discovered workload with its current
// allocation state, for the GET /containers admin endpoint.
type AllocatedWorkload struct {
	model.Workload
	SessionID string // empty if unallocated
}

// List returns every workload in the last snapshot (refreshing if the
// TTL has expired) alongside its current allocation, for admin listing.
func (p *Pool) List(ctx context.Context) []AllocatedWorkload {
	snapshot := p.refresh(ctx, false)

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]AllocatedWorkload, 0, len(snapshot))
	for _, w := range snapshot {
		out = append(out, AllocatedWorkload{Workload: w, SessionID: p.workloadToSession[w.ID]})
	}
	return out
}

// Status returns a snapshot computed entirely under the lock, so it
// never observes a half-updated ledger.
func (p *Pool) Status() model.PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := model.PoolStatus{ByType: make(map[string]model.PoolStatusEntry)}
	for id, w := range p.snapshotByID {
		entry := status.ByType[w.TargetType]
		entry.TargetType = w.TargetType
		if !w.Scalable {
			status.ByType[w.TargetType] = entry
			continue
		}
		entry.Total++
		status.Total++
		if _, allocated := p.workloadToSession[id]; allocated {
			entry.Allocated++
			status.Allocated++
		} else if w.Healthy() {
			entry.Available++
			status.Available++
		}
		status.ByType[w.TargetType] = entry
	}
	return status
}

// ForceRefresh bypasses the TTL and re-fetches from the orchestrator
// adapter immediately. Used by the health monitor's pool-refresh task
// and the POST /containers/refresh admin endpoint.
func (p *Pool) ForceRefresh(ctx context.Context) []model.Workload {
	return p.refresh(ctx, true)
}

// EvictDead removes ledger entries whose workload no longer appears as
// healthy in the latest snapshot.
func (p *Pool) EvictDead(ctx context.Context) int {
	snapshot := p.refresh(ctx, true)
	byID := indexByID(snapshot)

	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for sessionID, wid := range p.sessionToWorkload {
		if w, ok := byID[wid]; !ok || !w.Healthy() {
			delete(p.sessionToWorkload, sessionID)
			delete(p.workloadToSession, wid)
			evicted++
		}
	}
	return evicted
}

// refresh returns the cached snapshot if still within TTL (unless
// forced), otherwise consults the shared Redis cache, falling back to a
// live orchestrator list_containers call. All I/O happens outside the
// ledger mutex.
func (p *Pool) refresh(ctx context.Context, force bool) []model.Workload {
	p.mu.Lock()
	if !force && len(p.snapshot) > 0 && time.Since(p.snapshotAt) < p.ttl {
		snap := p.snapshot
		p.mu.Unlock()
		return snap
	}
	p.mu.Unlock()

	if !force && p.cache != nil && p.cache.IsEnabled() {
		var cached []model.Workload
		if err := p.cache.Get(ctx, snapshotCacheKey, &cached); err == nil {
			p.swapSnapshot(cached)
			return cached
		}
	}

	list := p.adapter.ListContainers(ctx, nil)
	if p.cache != nil {
		_ = p.cache.Set(ctx, snapshotCacheKey, list, p.ttl)
	}
	p.swapSnapshot(list)
	return list
}

func (p *Pool) swapSnapshot(list []model.Workload) {
	p.mu.Lock()
	p.snapshot = list
	p.snapshotByID = indexByID(list)
	p.snapshotAt = time.Now()
	p.mu.Unlock()
}

func indexByID(list []model.Workload) map[string]model.Workload {
	out := make(map[string]model.Workload, len(list))
	for _, w := range list {
		out[w.ID] = w
	}
	return out
}

// triggerScaleUp asks the orchestrator to add one replica for targetType,
// debounced so repeated failed allocates don't flood it. Never blocks the
// allocator: callers fire this with `go`.
func (p *Pool) triggerScaleUp(targetType string, snapshot []model.Workload) {
	name, ok := p.serviceNames.ServiceName(targetType)
	if !ok {
		logger.Pool().Warn().Str("type", targetType).Msg("no service name configured, cannot scale")
		return
	}

	p.mu.Lock()
	if last, ok := p.lastScaleAttempt[targetType]; ok && time.Since(last) < scaleCooldown {
		p.mu.Unlock()
		return
	}
	p.lastScaleAttempt[targetType] = time.Now()
	p.mu.Unlock()

	current := 0
	for _, w := range snapshot {
		if w.Scalable && w.TargetType == targetType {
			current++
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if p.adapter.ScaleService(ctx, name, current+1) {
		logger.Pool().Info().Str("service", name).Int("replicas", current+1).Msg("scale-up triggered")
	}
}

// scheduleScaleDown waits ScaleDownDelay then shrinks a type's service by
// one replica if more than one workload of that type is idle.
func (p *Pool) scheduleScaleDown(targetType string) {
	time.Sleep(ScaleDownDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snapshot := p.refresh(ctx, true)

	p.mu.Lock()
	available := 0
	total := 0
	for _, w := range snapshot {
		if !w.Scalable || w.TargetType != targetType || !w.Healthy() {
			continue
		}
		total++
		if _, allocated := p.workloadToSession[w.ID]; !allocated {
			available++
		}
	}
	p.mu.Unlock()

	if available <= 1 || total <= 1 {
		return
	}
	name, ok := p.serviceNames.ServiceName(targetType)
	if !ok {
		return
	}
	if p.adapter.ScaleService(ctx, name, total-1) {
		logger.Pool().Info().Str("service", name).Int("replicas", total-1).Msg("scale-down triggered")
	}
}

// Shutdown releases every live allocation, part of the process's
// graceful-shutdown hook.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionToWorkload = make(map[string]string)
	p.workloadToSession = make(map[string]string)
}
