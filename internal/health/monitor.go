// Package health implements the monitor's three periodic background
// tasks: pool refresh, session reconciliation, and daily job-log
// pruning. The first two are ticker-driven goroutines; the prune is a
// cron entry aligned to local midnight.
package health

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/legacy-use/gateway/internal/logger"
	"github.com/legacy-use/gateway/internal/model"
	"github.com/legacy-use/gateway/internal/orchestrator"
)

// PoolRefresher is the slice of the pool the refresh task drives.
type PoolRefresher interface {
	ForceRefresh(ctx context.Context) []model.Workload
	EvictDead(ctx context.Context) int
}

// SessionStore is the narrow slice of the session store the
// reconciliation and log-prune tasks need.
type SessionStore interface {
	ListNonTerminalSessions(ctx context.Context) ([]model.Session, error)
	UpdateSessionState(ctx context.Context, id string, state model.SessionState, errMsg string) error
	PruneJobLogs(ctx context.Context, olderThan time.Time) (int64, error)
}

// Config holds the monitor's cadence knobs, each defaulted in New if
// zero.
type Config struct {
	PoolRefreshInterval  time.Duration // default 30s
	ReconcileInterval    time.Duration // default 60s
	ReconcileStrikes     int           // default 3
	LogRetentionDays     int           // default 7
	HealthCheckPath      string        // default "/health"
}

func (c Config) withDefaults() Config {
	if c.PoolRefreshInterval == 0 {
		c.PoolRefreshInterval = 30 * time.Second
	}
	if c.ReconcileInterval == 0 {
		c.ReconcileInterval = 60 * time.Second
	}
	if c.ReconcileStrikes == 0 {
		c.ReconcileStrikes = 3
	}
	if c.LogRetentionDays == 0 {
		c.LogRetentionDays = 7
	}
	if c.HealthCheckPath == "" {
		c.HealthCheckPath = "/health"
	}
	return c
}

// Monitor runs the three tasks as independent goroutines/cron jobs,
// started by Start and stopped by Stop.
type Monitor struct {
	pool    PoolRefresher
	store   SessionStore
	adapter orchestrator.Adapter
	cfg     Config

	strikes map[string]int

	cron   *cron.Cron
	cancel context.CancelFunc
}

// New builds a Monitor. Call Start to begin running its tasks.
func New(pool PoolRefresher, store SessionStore, adapter orchestrator.Adapter, cfg Config) *Monitor {
	return &Monitor{
		pool:    pool,
		store:   store,
		adapter: adapter,
		cfg:     cfg.withDefaults(),
		strikes: make(map[string]int),
		cron:    cron.New(),
	}
}

// Start launches the pool-refresh and reconciliation tickers plus the
// daily log-prune cron entry. Returns immediately; tasks run until Stop.
func (m *Monitor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	go m.runPoolRefresh(ctx)
	go m.runReconciliation(ctx)

	if _, err := m.cron.AddFunc("0 0 * * *", func() { m.pruneLogs(context.Background()) }); err != nil {
		cancel()
		return err
	}
	m.cron.Start()
	return nil
}

// Stop cancels the ticker-driven tasks and the cron scheduler.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	ctx := m.cron.Stop()
	<-ctx.Done()
}

func (m *Monitor) runPoolRefresh(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PoolRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refreshPool(ctx)
		}
	}
}

func (m *Monitor) refreshPool(ctx context.Context) {
	snapshot := m.pool.ForceRefresh(ctx)
	evicted := m.pool.EvictDead(ctx)
	logger.Health().Debug().Int("workloads", len(snapshot)).Int("evicted", evicted).Msg("pool refresh")
}

func (m *Monitor) runReconciliation(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcileSessions(ctx)
		}
	}
}

// reconcileSessions re-checks every non-terminal session's health; on
// ReconcileStrikes consecutive failures the session transitions to
// error.
func (m *Monitor) reconcileSessions(ctx context.Context) {
	sessions, err := m.store.ListNonTerminalSessions(ctx)
	if err != nil {
		logger.Health().Error().Err(err).Msg("failed to list sessions for reconciliation")
		return
	}

	seen := make(map[string]bool, len(sessions))
	for _, sess := range sessions {
		seen[sess.ID] = true
		if !sess.HasNetworkCoordinates() || sess.ContainerID == "" {
			continue // nothing to probe (direct target, or not ready/active)
		}

		if m.adapter.CheckHealth(ctx, sess.ContainerID, m.cfg.HealthCheckPath) {
			delete(m.strikes, sess.ID)
			continue
		}

		m.strikes[sess.ID]++
		if m.strikes[sess.ID] >= m.cfg.ReconcileStrikes {
			logger.Health().Warn().Str("session", sess.ID).Int("strikes", m.strikes[sess.ID]).
				Msg("session failed repeated health checks, transitioning to error")
			if err := m.store.UpdateSessionState(ctx, sess.ID, model.StateError, "failed repeated health checks"); err != nil {
				logger.Health().Error().Err(err).Str("session", sess.ID).Msg("failed to transition session to error")
			}
			delete(m.strikes, sess.ID)
		}
	}

	for id := range m.strikes {
		if !seen[id] {
			delete(m.strikes, id)
		}
	}
}

func (m *Monitor) pruneLogs(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -m.cfg.LogRetentionDays)
	n, err := m.store.PruneJobLogs(ctx, cutoff)
	if err != nil {
		logger.Health().Error().Err(err).Msg("log prune failed")
		return
	}
	logger.Health().Info().Int64("deleted", n).Msg("pruned job logs")
}
