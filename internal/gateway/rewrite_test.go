package gateway

import (
	"testing"

	"github.com/legacy-use/gateway/internal/orchestrator"
)

func testServiceNames(t *testing.T) *orchestrator.ServiceNameTable {
	t.Helper()
	names, err := orchestrator.LoadServiceNameTable("")
	if err != nil {
		t.Fatalf("LoadServiceNameTable: %v", err)
	}
	return names
}

func TestNewHostResolverDefaultsCIDR(t *testing.T) {
	r, err := NewHostResolver("", testServiceNames(t))
	if err != nil {
		t.Fatalf("NewHostResolver: %v", err)
	}
	if !r.podCIDR.Contains([]byte{10, 244, 1, 2}) {
		t.Fatal("expected default CIDR to contain 10.244.1.2")
	}
}

func TestNewHostResolverInvalidCIDR(t *testing.T) {
	if _, err := NewHostResolver("not-a-cidr", testServiceNames(t)); err == nil {
		t.Fatal("expected error for malformed CIDR")
	}
}

func TestResolveRewritesPodIP(t *testing.T) {
	r, err := NewHostResolver("10.244.0.0/16", testServiceNames(t))
	if err != nil {
		t.Fatalf("NewHostResolver: %v", err)
	}

	names := testServiceNames(t)
	targetType := "linux"
	wantName, ok := names.ServiceName(targetType)
	if !ok {
		t.Fatalf("no service name configured for %q in the default table", targetType)
	}

	got := r.Resolve(targetType, "10.244.3.4")
	if got != wantName {
		t.Errorf("Resolve() = %q, want %q", got, wantName)
	}
}

func TestResolveLeavesExternalIPVerbatim(t *testing.T) {
	r, err := NewHostResolver("10.244.0.0/16", testServiceNames(t))
	if err != nil {
		t.Fatalf("NewHostResolver: %v", err)
	}

	got := r.Resolve("linux", "203.0.113.7")
	if got != "203.0.113.7" {
		t.Errorf("Resolve() = %q, want verbatim external IP", got)
	}
}

func TestResolveUnknownTargetTypeLeavesIPVerbatim(t *testing.T) {
	r, err := NewHostResolver("10.244.0.0/16", testServiceNames(t))
	if err != nil {
		t.Fatalf("NewHostResolver: %v", err)
	}

	got := r.Resolve("no-such-type", "10.244.3.4")
	if got != "10.244.3.4" {
		t.Errorf("Resolve() = %q, want the pod IP unchanged when no service name is configured", got)
	}
}
