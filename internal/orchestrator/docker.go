package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/legacy-use/gateway/internal/logger"
	"github.com/legacy-use/gateway/internal/model"
)

// ContainerEngineBackend implements Adapter over the Docker engine API.
// It never creates or destroys containers itself; discovery is read-only
// and scaling is delegated to the compose tool.
type ContainerEngineBackend struct {
	cli     *client.Client
	project string // compose project label, used by ScaleService
}

// NewContainerEngineBackend connects to the local Docker daemon using the
// environment's standard DOCKER_HOST/DOCKER_CERT_PATH conventions.
func NewContainerEngineBackend(project string) (*ContainerEngineBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	return &ContainerEngineBackend{cli: cli, project: project}, nil
}

func (b *ContainerEngineBackend) ListContainers(ctx context.Context, labelFilters map[string]string) []model.Workload {
	log := logger.Orchestrator()

	f := filters.NewArgs(filters.Arg("status", "running"))
	for k, v := range labelFilters {
		f.Add("label", fmt.Sprintf("%s=%s", k, v))
	}

	containers, err := b.cli.ContainerList(ctx, types.ContainerListOptions{Filters: f})
	if err != nil {
		log.Warn().Err(err).Msg("list_containers: transient backend failure")
		return nil
	}

	workloads := make([]model.Workload, 0, len(containers))
	for _, c := range containers {
		name := strings.TrimPrefix(firstOrEmpty(c.Names), "/")
		w := model.Workload{
			ID:     c.ID,
			Name:   name,
			Labels: c.Labels,
			Status: dockerStatusToWorkloadStatus(c.State),
			Ports:  portMapFromDocker(c.Ports),
		}
		w.TargetType = deriveTargetType(name, c.Labels)
		w.Scalable = deriveScalable(name, c.Labels)

		if ip, err := b.inspectIP(ctx, c.ID); err == nil {
			w.IP = ip
		} else {
			log.Debug().Err(err).Str("container", c.ID).Msg("failed to inspect container IP")
		}

		workloads = append(workloads, w)
	}
	return workloads
}

func (b *ContainerEngineBackend) GetContainer(ctx context.Context, id string) (model.Workload, bool) {
	inspect, err := b.cli.ContainerInspect(ctx, id)
	if err != nil {
		logger.Orchestrator().Debug().Err(err).Str("id", id).Msg("get_container: not found or transient error")
		return model.Workload{}, false
	}

	name := strings.TrimPrefix(inspect.Name, "/")
	w := model.Workload{
		ID:     inspect.ID,
		Name:   name,
		Labels: inspect.Config.Labels,
		Status: dockerStatusToWorkloadStatus(inspect.State.Status),
	}
	w.TargetType = deriveTargetType(name, inspect.Config.Labels)
	w.Scalable = deriveScalable(name, inspect.Config.Labels)
	if inspect.NetworkSettings != nil {
		w.IP = inspect.NetworkSettings.IPAddress
	}
	return w, true
}

// ScaleService drives the compose tool to rescale a service without
// recreating running containers. There is no compose API client
// in-process; the backend shells out to `docker compose`.
func (b *ContainerEngineBackend) ScaleService(ctx context.Context, serviceName string, replicas int) bool {
	log := logger.Orchestrator()
	cmd := execCommandContext(ctx, "docker", "compose", "-p", b.project, "up", "-d",
		"--scale", fmt.Sprintf("%s=%d", serviceName, replicas), "--no-recreate", serviceName)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Warn().Err(err).Str("service", serviceName).Str("output", string(out)).Msg("scale_service failed")
		return false
	}
	log.Info().Str("service", serviceName).Int("replicas", replicas).Msg("scale_service requested")
	return true
}

func (b *ContainerEngineBackend) CheckHealth(ctx context.Context, id, path string) bool {
	w, ok := b.GetContainer(ctx, id)
	if !ok || w.IP == "" {
		return false
	}
	return httpHealthCheck(ctx, w.IP, path)
}

func (b *ContainerEngineBackend) inspectIP(ctx context.Context, id string) (string, error) {
	inspect, err := b.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", err
	}
	if inspect.NetworkSettings == nil {
		return "", fmt.Errorf("no network settings for %s", id)
	}
	if inspect.NetworkSettings.IPAddress != "" {
		return inspect.NetworkSettings.IPAddress, nil
	}
	for _, net := range inspect.NetworkSettings.Networks {
		if net.IPAddress != "" {
			return net.IPAddress, nil
		}
	}
	return "", fmt.Errorf("no IP assigned for %s", id)
}

func dockerStatusToWorkloadStatus(state string) model.WorkloadStatus {
	switch state {
	case "running":
		return model.WorkloadRunning
	case "created", "restarting":
		return model.WorkloadPending
	case "exited", "dead", "paused":
		return model.WorkloadUnhealthy
	default:
		return model.WorkloadUnknown
	}
}

func portMapFromDocker(ports []types.Port) map[int]int {
	out := make(map[int]int, len(ports))
	for _, p := range ports {
		if p.PublicPort != 0 {
			out[int(p.PrivatePort)] = int(p.PublicPort)
		}
	}
	return out
}

func firstOrEmpty(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// managementPort is the well-known management endpoint port every target
// image exposes for health probes.
const managementPort = 8088

// httpHealthCheck performs an HTTP GET against a workload's IP on the
// management port with a 2s timeout, returning true only on 200.
func httpHealthCheck(ctx context.Context, ip, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d%s", ip, managementPort, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == 200
}
