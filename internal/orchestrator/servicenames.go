package orchestrator

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed servicenames.yaml
var defaultServiceNamesYAML []byte

// ServiceNameTable resolves target_type -> service_name. The browser
// endpoint's pod-IP rewrite and the shared gateway's upstream resolution
// must consult the same table, so one loaded instance is shared.
type ServiceNameTable struct {
	mu    sync.RWMutex
	names map[string]string
}

// LoadServiceNameTable loads the embedded default table, then overlays an
// optional override file (SERVICE_NAME_MAP_FILE) if path is non-empty.
func LoadServiceNameTable(overridePath string) (*ServiceNameTable, error) {
	names := map[string]string{}
	if err := yaml.Unmarshal(defaultServiceNamesYAML, &names); err != nil {
		return nil, fmt.Errorf("parse default service name table: %w", err)
	}

	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("read service name override %s: %w", overridePath, err)
		}
		overrides := map[string]string{}
		if err := yaml.Unmarshal(data, &overrides); err != nil {
			return nil, fmt.Errorf("parse service name override %s: %w", overridePath, err)
		}
		for k, v := range overrides {
			names[k] = v
		}
	}

	return &ServiceNameTable{names: names}, nil
}

// ServiceName returns the service name for a target type, and whether one
// is configured.
func (t *ServiceNameTable) ServiceName(targetType string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.names[targetType]
	return name, ok
}

// All returns a copy of the full table.
func (t *ServiceNameTable) All() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.names))
	for k, v := range t.names {
		out[k] = v
	}
	return out
}
