package bridge

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/legacy-use/gateway/internal/logger"
)

// Bridge is the common shape served by the shared gateway's WebSocket
// handler: either a GenericBridge (subprocess adapter) or a VMBridge
// (direct cluster VNC sub-resource client).
type Bridge interface {
	Serve(ctx context.Context, downstream *websocket.Conn) error
	Close() error
}

// Table enforces at most one live bridge per session under a single
// mutex, and satisfies lifecycle.BridgeTerminator so the
// lifecycle manager can tear a bridge down without importing this
// package's concrete types.
type Table struct {
	mu      sync.Mutex
	entries map[string]Bridge
	ports   *PortAllocator
}

// NewTable creates an empty bridge table with its own port allocator for
// generic bridges.
func NewTable() *Table {
	return &Table{
		entries: make(map[string]Bridge),
		ports:   NewPortAllocator(),
	}
}

// Ports exposes the shared allocator so callers can reserve a local port
// before constructing a GenericBridge.
func (t *Table) Ports() *PortAllocator {
	return t.ports
}

// Put registers b as the live bridge for sessionID. If a bridge is
// already registered for this session, it is closed first: a new connect
// attempt on a still-live session is a takeover, not a conflict.
func (t *Table) Put(sessionID string, b Bridge) {
	t.mu.Lock()
	existing, ok := t.entries[sessionID]
	t.entries[sessionID] = b
	t.mu.Unlock()

	if ok && existing != nil {
		_ = existing.Close()
	}
}

// Get returns the live bridge for sessionID, if any.
func (t *Table) Get(sessionID string) (Bridge, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.entries[sessionID]
	return b, ok
}

// Terminate closes and removes the bridge for sessionID, and releases
// its local port if one was reserved. Safe to call when no bridge is
// registered. Satisfies lifecycle.BridgeTerminator.
func (t *Table) Terminate(sessionID string) {
	t.mu.Lock()
	b, ok := t.entries[sessionID]
	delete(t.entries, sessionID)
	t.mu.Unlock()

	t.ports.Release(sessionID)

	if ok && b != nil {
		if err := b.Close(); err != nil {
			logger.Bridge().Warn().Str("session", sessionID).Err(err).Msg("bridge close returned error")
		}
	}
}

// Remove drops sessionID's entry without closing it, for the case where
// the caller has already observed the bridge exit (Serve returned) and
// only needs to clear bookkeeping.
func (t *Table) Remove(sessionID string) {
	t.mu.Lock()
	delete(t.entries, sessionID)
	t.mu.Unlock()
	t.ports.Release(sessionID)
}

// Len reports the number of live bridges, for health/metrics reporting.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Shutdown closes every registered bridge, for graceful process exit.
func (t *Table) Shutdown() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]Bridge)
	t.mu.Unlock()

	for id, b := range entries {
		if err := b.Close(); err != nil {
			logger.Bridge().Warn().Str("session", id).Err(err).Msg("bridge close returned error during shutdown")
		}
	}
}
