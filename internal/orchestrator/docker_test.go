package orchestrator

import (
	"testing"

	"github.com/docker/docker/api/types"

	"github.com/legacy-use/gateway/internal/model"
)

func TestDockerStatusToWorkloadStatus(t *testing.T) {
	cases := []struct {
		state string
		want  model.WorkloadStatus
	}{
		{"running", model.WorkloadRunning},
		{"created", model.WorkloadPending},
		{"restarting", model.WorkloadPending},
		{"exited", model.WorkloadUnhealthy},
		{"dead", model.WorkloadUnhealthy},
		{"paused", model.WorkloadUnhealthy},
		{"removing", model.WorkloadUnknown},
	}
	for _, c := range cases {
		if got := dockerStatusToWorkloadStatus(c.state); got != c.want {
			t.Errorf("dockerStatusToWorkloadStatus(%q) = %v, want %v", c.state, got, c.want)
		}
	}
}

func TestPortMapFromDocker(t *testing.T) {
	ports := []types.Port{
		{PrivatePort: 5900, PublicPort: 32768},
		{PrivatePort: 6080, PublicPort: 0}, // unpublished, should be dropped
	}
	got := portMapFromDocker(ports)
	if got[5900] != 32768 {
		t.Errorf("expected published port 5900->32768, got %v", got)
	}
	if _, ok := got[6080]; ok {
		t.Errorf("unpublished port 6080 should not appear in map, got %v", got)
	}
}

func TestFirstOrEmpty(t *testing.T) {
	if got := firstOrEmpty(nil); got != "" {
		t.Errorf("expected empty string for nil slice, got %q", got)
	}
	if got := firstOrEmpty([]string{"/web-1", "/web-1/link"}); got != "/web-1" {
		t.Errorf("expected first name, got %q", got)
	}
}
