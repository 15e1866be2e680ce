// Package lifecycle implements the session lifecycle manager: it drives
// a session through its state machine, invoking the pool on create and
// destroy and polling the orchestrator adapter for readiness, never
// blocking the request goroutine on an I/O-bound poll.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/legacy-use/gateway/internal/logger"
	"github.com/legacy-use/gateway/internal/model"
	"github.com/legacy-use/gateway/internal/orchestrator"
	"github.com/legacy-use/gateway/internal/pool"
)

// AllocateRetries and AllocateBackoffMin/Max bound the allocate loop:
// 10 attempts, the backoff starting at 2s and growing by a tenth of the
// 2s-5s span after each attempt (capped at 5s).
const (
	AllocateRetries    = 10
	AllocateBackoffMin = 2 * time.Second
	AllocateBackoffMax = 5 * time.Second
)

// HealthPollDeadline bounds how long Manager waits for the first
// successful health probe before erroring the session.
const HealthPollDeadline = 60 * time.Second

// HealthPollInterval is the spacing between health probes while waiting
// for a session to become ready.
const HealthPollInterval = 2 * time.Second

// HealthCheckPath is the well-known management endpoint probed on each
// workload.
const HealthCheckPath = "/health"

// SessionStore is the narrow slice of the session store the manager
// writes to.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
	GetTarget(ctx context.Context, id string) (*model.Target, error)
	CreateSession(ctx context.Context, id, targetID string) (*model.Session, error)
	UpdateSessionState(ctx context.Context, id string, state model.SessionState, errMsg string) error
	SetNetworkCoordinates(ctx context.Context, id, containerID, containerIP string, vncPort, novncPort int) error
	ClearNetworkCoordinates(ctx context.Context, id string) error
}

// BridgeTerminator is the slice of the bridge table the manager calls on
// destroy. Satisfied by *bridge.Table.
type BridgeTerminator interface {
	Terminate(sessionID string)
}

// Manager drives sessions through the lifecycle state machine.
type Manager struct {
	store   SessionStore
	pool    *pool.Pool
	adapter orchestrator.Adapter
	bridges BridgeTerminator

	mu        sync.Mutex
	cancelers map[string]context.CancelFunc

	allocateRetries    int
	allocateBackoffMin time.Duration
	allocateBackoffMax time.Duration
	healthPollDeadline time.Duration
	healthPollInterval time.Duration
}

// New builds a Manager. bridges may be nil if no bridge table is wired
// yet (destroy then skips bridge termination).
func New(store SessionStore, p *pool.Pool, adapter orchestrator.Adapter, bridges BridgeTerminator) *Manager {
	return &Manager{
		store:              store,
		pool:               p,
		adapter:            adapter,
		bridges:            bridges,
		cancelers:          make(map[string]context.CancelFunc),
		allocateRetries:    AllocateRetries,
		allocateBackoffMin: AllocateBackoffMin,
		allocateBackoffMax: AllocateBackoffMax,
		healthPollDeadline: HealthPollDeadline,
		healthPollInterval: HealthPollInterval,
	}
}

// CreateSession persists a new session and starts provisioning. It
// returns as soon as provisioning has started; readiness is
// driven by an independent background task so the caller is never
// blocked on allocation retries or health polling.
func (m *Manager) CreateSession(ctx context.Context, targetID string) (*model.Session, error) {
	target, err := m.store.GetTarget(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("resolve target %s: %w", targetID, err)
	}

	sessionID := uuid.NewString()
	session, err := m.store.CreateSession(ctx, sessionID, targetID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := m.store.UpdateSessionState(ctx, sessionID, model.StateProvisioning, ""); err != nil {
		return nil, fmt.Errorf("transition to provisioning: %w", err)
	}
	session.State = model.StateProvisioning

	taskCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancelers[sessionID] = cancel
	m.mu.Unlock()

	go m.provision(taskCtx, sessionID, *target)

	return session, nil
}

// provision runs as an independent task: allocate (or go direct),
// persist coordinates, poll health, transition to ready.
func (m *Manager) provision(ctx context.Context, sessionID string, target model.Target) {
	log := logger.Lifecycle().With().Str("session", sessionID).Logger()
	defer m.clearCanceler(sessionID)

	var containerID, containerIP string
	var vncPort int

	switch target.ConnectionType {
	case model.ConnectionDirect:
		containerID = ""
		containerIP = target.DirectHost
		vncPort = target.DirectPort

	case model.ConnectionPool, model.ConnectionVM:
		workload, ok := m.allocateWithRetry(ctx, sessionID, target.Type)
		if !ok {
			if ctx.Err() != nil {
				// Cancelled by a concurrent destroy; that flow owns the
				// session's state from here.
				return
			}
			m.fail(sessionID, "no-capacity: exhausted allocate retries")
			return
		}
		containerID = workload.ID
		if target.ConnectionType == model.ConnectionVM {
			containerIP = model.VMSentinelIP
		} else {
			containerIP = workload.IP
		}
		vncPort = firstNonZero(target.DefaultVNCPort, 5900)

	default:
		m.fail(sessionID, fmt.Sprintf("unknown connection type %q", target.ConnectionType))
		return
	}

	if err := m.store.SetNetworkCoordinates(ctx, sessionID, containerID, containerIP, vncPort, target.NoVNCPort); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("failed to persist network coordinates")
		m.fail(sessionID, "failed to persist network coordinates")
		return
	}

	if !m.waitHealthy(ctx, containerID) {
		if ctx.Err() != nil {
			return
		}
		m.fail(sessionID, "health probe deadline exceeded")
		return
	}

	if err := m.store.UpdateSessionState(ctx, sessionID, model.StateReady, ""); err != nil {
		log.Error().Err(err).Msg("failed to transition to ready")
		return
	}
	log.Info().Msg("session ready")
}

// allocateWithRetry implements the bounded-retry allocate loop. Cancelled
// immediately if ctx is cancelled (a concurrent DestroySession).
func (m *Manager) allocateWithRetry(ctx context.Context, sessionID, targetType string) (model.Workload, bool) {
	backoff := m.allocateBackoffMin
	for attempt := 1; attempt <= m.allocateRetries; attempt++ {
		if w, ok := m.pool.Allocate(ctx, sessionID, targetType); ok {
			return w, true
		}
		select {
		case <-ctx.Done():
			return model.Workload{}, false
		case <-time.After(backoff):
		}
		backoff += (m.allocateBackoffMax - m.allocateBackoffMin) / time.Duration(m.allocateRetries)
		if backoff > m.allocateBackoffMax {
			backoff = m.allocateBackoffMax
		}
	}
	return model.Workload{}, false
}

// waitHealthy polls the orchestrator's health probe until success or
// HealthPollDeadline. A direct-connection target with no
// orchestrator-managed id is assumed healthy immediately — there is
// nothing to probe through the adapter.
func (m *Manager) waitHealthy(ctx context.Context, containerID string) bool {
	if containerID == "" {
		return true
	}

	deadline := time.Now().Add(m.healthPollDeadline)
	ticker := time.NewTicker(m.healthPollInterval)
	defer ticker.Stop()

	for {
		if m.adapter.CheckHealth(ctx, containerID, HealthCheckPath) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (m *Manager) fail(sessionID, reason string) {
	logger.Lifecycle().Warn().Str("session", sessionID).Str("reason", reason).Msg("session entering error state")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.store.UpdateSessionState(ctx, sessionID, model.StateError, reason)
}

// DestroySession walks a session down: transition to releasing, release
// the pool allocation, terminate any owned bridge, clear coordinates,
// transition to destroyed. Cancels any in-flight allocate retry for this
// session first.
func (m *Manager) DestroySession(ctx context.Context, sessionID string) error {
	m.clearCanceler(sessionID)

	if err := m.store.UpdateSessionState(ctx, sessionID, model.StateReleasing, ""); err != nil {
		return fmt.Errorf("transition to releasing: %w", err)
	}

	m.pool.Release(sessionID)
	if m.bridges != nil {
		m.bridges.Terminate(sessionID)
	}

	if err := m.store.ClearNetworkCoordinates(ctx, sessionID); err != nil {
		return fmt.Errorf("clear network coordinates: %w", err)
	}

	if err := m.store.UpdateSessionState(ctx, sessionID, model.StateDestroyed, ""); err != nil {
		return fmt.Errorf("transition to destroyed: %w", err)
	}
	logger.Lifecycle().Info().Str("session", sessionID).Msg("session destroyed")
	return nil
}

// MarkActive transitions ready->active on the session's first successful
// browser WebSocket upgrade. A session that is already active (a browser
// reconnect) is a no-op, not an illegal-transition error: only the first
// upgrade is a real state change.
func (m *Manager) MarkActive(ctx context.Context, sessionID string) error {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State == model.StateActive {
		return nil
	}
	return m.store.UpdateSessionState(ctx, sessionID, model.StateActive, "")
}

func (m *Manager) clearCanceler(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancelers[sessionID]; ok {
		cancel()
		delete(m.cancelers, sessionID)
	}
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
