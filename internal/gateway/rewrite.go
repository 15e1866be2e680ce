package gateway

import (
	"net"

	"github.com/legacy-use/gateway/internal/orchestrator"
)

// DefaultPodIPCIDR is the default cluster pod-IP range.
const DefaultPodIPCIDR = "10.244.0.0/16"

// HostResolver turns a session's raw network coordinates into the host
// the shared gateway should dial, rewriting pod IPs to a stable service
// name since pod IPs are not stable across restarts. VM-sentinel
// sessions are left to the caller: Resolve never sees them since the
// sentinel short-circuits before any CIDR check makes sense.
type HostResolver struct {
	podCIDR      *net.IPNet
	serviceNames *orchestrator.ServiceNameTable
}

// NewHostResolver parses cidr (empty string falls back to
// DefaultPodIPCIDR) and binds it to a service-name table.
func NewHostResolver(cidr string, names *orchestrator.ServiceNameTable) (*HostResolver, error) {
	if cidr == "" {
		cidr = DefaultPodIPCIDR
	}
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	return &HostResolver{podCIDR: ipnet, serviceNames: names}, nil
}

// Resolve returns the host forwarded upstream as X-Target-Host.
// If containerIP falls inside the pod-IP CIDR, it is rewritten to the
// stable service name for targetType; otherwise it is used verbatim
// (e.g. an externally-reachable direct-connection host).
func (r *HostResolver) Resolve(targetType, containerIP string) string {
	ip := net.ParseIP(containerIP)
	if ip == nil || !r.podCIDR.Contains(ip) {
		return containerIP
	}
	if name, ok := r.serviceNames.ServiceName(targetType); ok {
		return name
	}
	return containerIP
}
