package bridge

import (
	"hash/fnv"
	"sync"
)

// PortBase and PortRange define the ephemeral local port space for
// generic VNC adapters: base + hash(session) mod N, with explicit linear
// probing on collision.
const (
	PortBase  = 6100
	PortRange = 1000
)

// PortAllocator assigns a stable, collision-free local port per session.
// It carries its own mutex so it can be consulted without holding the
// bridge table's lock.
type PortAllocator struct {
	mu        sync.Mutex
	bySession map[string]int
	byPort    map[int]string
}

// NewPortAllocator creates an empty allocator.
func NewPortAllocator() *PortAllocator {
	return &PortAllocator{
		bySession: make(map[string]int),
		byPort:    make(map[int]string),
	}
}

// Allocate returns the port already assigned to sessionID, or computes a
// new one: base + hash(sessionID) mod PortRange, linearly probing to the
// next free slot on collision with a different session's port.
func (a *PortAllocator) Allocate(sessionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.bySession[sessionID]; ok {
		return p
	}

	start := PortBase + int(hashString(sessionID)%PortRange)
	port := start
	for {
		if owner, taken := a.byPort[port]; !taken || owner == sessionID {
			break
		}
		port++
		if port >= PortBase+PortRange {
			port = PortBase
		}
		if port == start {
			// Pool fully saturated; fall back to next port past the
			// configured range rather than deadlock the caller.
			port = PortBase + PortRange
			break
		}
	}

	a.bySession[sessionID] = port
	a.byPort[port] = sessionID
	return port
}

// Lookup reports the port already assigned to sessionID, if any, without
// allocating a new one.
func (a *PortAllocator) Lookup(sessionID string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.bySession[sessionID]
	return p, ok
}

// Release frees the port assigned to sessionID, if any.
func (a *PortAllocator) Release(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.bySession[sessionID]; ok {
		delete(a.bySession, sessionID)
		delete(a.byPort, p)
	}
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
