// Package model holds the tagged structs that cross component boundaries:
// Workload, Target, Session, and PoolStatus. No string-keyed bag crosses a
// component boundary in this codebase — every cross-cutting record is a
// Go struct with explicit, typed, optional fields.
package model

import "time"

// WorkloadStatus is the liveness status of a discovered workload.
type WorkloadStatus string

const (
	WorkloadRunning   WorkloadStatus = "running"
	WorkloadPending   WorkloadStatus = "pending"
	WorkloadUnhealthy WorkloadStatus = "unhealthy"
	WorkloadUnknown   WorkloadStatus = "unknown"
)

// Healthy reports whether the workload is usable for allocation.
func (s WorkloadStatus) Healthy() bool {
	return s == WorkloadRunning
}

// Workload is a container or VM instance discovered from the orchestrator
// adapter, a candidate for allocation by the pool.
type Workload struct {
	// ID is the stable identifier assigned by the orchestrator (container
	// ID or pod/VM-instance name).
	ID string

	// Name is the human-readable name.
	Name string

	// Labels carries the orchestrator's label set, used to derive
	// TargetType and Scalable.
	Labels map[string]string

	// Status is the current liveness status.
	Status WorkloadStatus

	// IP is the workload's network address, empty if not yet assigned.
	IP string

	// Ports maps container port to host/exposed port. For cluster VMs
	// this is always the synthetic map {5900: 5900}.
	Ports map[int]int

	// TargetType is derived by consulting, in order: label
	// "legacy-use.target-type", label "app.kubernetes.io/component",
	// then substring match on Name.
	TargetType string

	// Scalable is true iff label "legacy-use.scalable"=="true" or Name
	// matches a known scalable naming pattern.
	Scalable bool
}

// Healthy reports whether this workload can be allocated right now.
func (w Workload) Healthy() bool {
	return w.Status.Healthy()
}

// ConnectionType determines how a session of a given Target reaches its
// backend.
type ConnectionType string

const (
	// ConnectionPool sessions consult the container pool for a generic
	// VNC workload.
	ConnectionPool ConnectionType = "pool"

	// ConnectionDirect sessions bypass the pool entirely and use the
	// Target's own host/port.
	ConnectionDirect ConnectionType = "direct"

	// ConnectionVM sessions consult the pool for a workload of a VM
	// target type and are bridged via the cluster's VM-VNC sub-resource.
	ConnectionVM ConnectionType = "vm"
)

// Known target types.
const (
	TargetLinux       = "linux"
	TargetWine        = "wine"
	TargetAndroid     = "android"
	TargetAndroidAInd = "android-aind"
	TargetDosbox      = "dosbox"
	TargetWindows     = "windows"
	TargetWindowsXP   = "windows-xp"
	TargetWindows10   = "windows-10"
	TargetMacOSMojave = "macos-mojave"
)

// KnownTargetTypes lists every target type this system validates against.
var KnownTargetTypes = []string{
	TargetLinux, TargetWine, TargetAndroid, TargetAndroidAInd, TargetDosbox,
	TargetWindows, TargetWindowsXP, TargetWindows10, TargetMacOSMojave,
}

// IsVMTargetType reports whether a target type is served by cluster VMs
// rather than generic containers (service name suffix "-kubevirt").
func IsVMTargetType(targetType string) bool {
	switch targetType {
	case TargetWindows, TargetWindowsXP, TargetWindows10, TargetMacOSMojave:
		return true
	default:
		return false
	}
}

// Target is the store's descriptor of what a session of a given type
// requires.
type Target struct {
	ID             string
	Type           string
	Width          int
	Height         int
	DefaultVNCPort int
	NoVNCPort      int
	ConnectionType ConnectionType

	// DirectHost/DirectPort are only meaningful when ConnectionType ==
	// ConnectionDirect.
	DirectHost string
	DirectPort int
}

// SessionState is a node in the session lifecycle state machine.
type SessionState string

const (
	StateInitializing SessionState = "initializing"
	StateProvisioning SessionState = "provisioning"
	StateReady        SessionState = "ready"
	StateActive       SessionState = "active"
	StateReleasing    SessionState = "releasing"
	StateDestroyed    SessionState = "destroyed"
	StateError        SessionState = "error"
)

// validTransitions encodes the session state machine. Destroy is
// reachable from initializing/provisioning as well as ready/active: a
// destroy must be able to cancel an in-flight allocate retry, so
// releasing can fire while a session is still being provisioned.
var validTransitions = map[SessionState]map[SessionState]bool{
	StateInitializing: {StateProvisioning: true, StateError: true, StateReleasing: true},
	StateProvisioning: {StateReady: true, StateError: true, StateReleasing: true},
	StateReady:        {StateActive: true, StateError: true, StateReleasing: true},
	StateActive:       {StateReleasing: true, StateError: true},
	StateReleasing:    {StateDestroyed: true, StateError: true},
	StateDestroyed:    {},
	StateError:        {StateReleasing: true},
}

// CanTransition reports whether moving from "from" to "to" is a legal edge
// in the session state machine.
func CanTransition(from, to SessionState) bool {
	if from == to {
		return false
	}
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Terminal reports whether a session in this state requires no further
// reconciliation by the health monitor.
func (s SessionState) Terminal() bool {
	return s == StateDestroyed
}

// Session is the store's record of a single gateway session.
//
// At most one workload is bound to a session at any time (enforced by the
// pool ledger, not by this struct). The lifecycle manager writes
// ContainerIP/VNCPort while the session is still provisioning, before its
// first health probe succeeds, and callers treat them as usable only in
// ready or active (see HasNetworkCoordinates). A session that moves to
// error keeps whatever coordinates were written; destroy clears them while
// the session is releasing, so a destroyed session carries none.
type Session struct {
	ID           string
	TargetID     string
	State        SessionState
	Status       string
	ContainerID  string
	ContainerIP  string
	VNCPort      int
	NoVNCPort    int
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasNetworkCoordinates reports whether ContainerIP/VNCPort are expected to
// be populated for the session's current state.
func (s Session) HasNetworkCoordinates() bool {
	return s.State == StateReady || s.State == StateActive
}

// VMSentinelIP marks a session routed to the cluster's VM-VNC
// sub-resource instead of a pod/container IP.
const VMSentinelIP = "kubevirt-vm"

// IsVMSentinel reports whether this session's ContainerIP is the VM
// routing sentinel.
func (s Session) IsVMSentinel() bool {
	return s.ContainerIP == VMSentinelIP
}

// PoolStatusEntry is the per-target-type slice of a pool snapshot.
type PoolStatusEntry struct {
	TargetType string
	Total      int
	Available  int
	Allocated  int
}

// PoolStatus is the aggregate snapshot returned by the pool's Status.
type PoolStatus struct {
	ByType    map[string]PoolStatusEntry
	Total     int
	Available int
	Allocated int
}
