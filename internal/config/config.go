// Package config collects the gateway's environment-derived settings into
// one typed struct, loaded once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-derived setting the gateway process
// reads at startup. Subsystem Config structs (store.Config, cache.Config,
// bridge.GenericConfig, ...) are built from this in main, so this package
// never imports them.
type Config struct {
	Port string
	// InternalBindAddr is the shared VNC gateway's own listener address
	// (GATEWAY_BIND_ADDR), loopback-only by default so it is never
	// reachable except through the browser endpoint's proxy.
	InternalBindAddr string
	LogLevel         string
	LogPretty        bool

	StoreHost     string
	StorePort     string
	StoreUser     string
	StorePassword string
	StoreDBName   string
	StoreSSLMode  string

	CacheEnabled  bool
	CacheHost     string
	CachePort     string
	CachePassword string
	CacheDB       int

	// Orchestrator selects the adapter backend: "docker" or "kubernetes"
	// (alias "k8s").
	Orchestrator   string
	ComposeProject string
	KubeNamespace  string

	ServiceNameMapFile string
	PodIPCIDR          string

	VNCAdapterPath string
	VNCWebRoot     string

	CORSAllowedOrigins []string

	// InternalAllowedOrigins is the internal listener's Origin allowlist:
	// a request carrying an Origin header must match this list. Empty by
	// default since the expected caller is a loopback backend process,
	// not a browser.
	InternalAllowedOrigins []string

	// APIProvider is the model provider name reported by the
	// /api/init-status boot probe.
	APIProvider string

	// LogRetentionDays controls the daily job-log prune window.
	LogRetentionDays int

	ShutdownTimeout time.Duration
}

// Load reads every setting from the environment, falling back to
// development-friendly defaults.
func Load() *Config {
	cfg := &Config{
		Port:             getEnv("GATEWAY_PORT", "8080"),
		InternalBindAddr: getEnv("GATEWAY_BIND_ADDR", "127.0.0.1:8765"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPretty:        getEnv("LOG_PRETTY", "false") == "true",

		StoreHost:     getEnv("DB_HOST", "localhost"),
		StorePort:     getEnv("DB_PORT", "5432"),
		StoreUser:     getEnv("DB_USER", "legacy_use"),
		StorePassword: getEnv("DB_PASSWORD", "legacy_use"),
		StoreDBName:   getEnv("DB_NAME", "legacy_use"),
		StoreSSLMode:  getEnv("DB_SSL_MODE", "disable"),

		CacheEnabled:  getEnv("CACHE_ENABLED", "false") == "true",
		CacheHost:     getEnv("REDIS_HOST", "localhost"),
		CachePort:     getEnv("REDIS_PORT", "6379"),
		CachePassword: os.Getenv("REDIS_PASSWORD"),
		CacheDB:       getEnvInt("REDIS_DB", 0),

		Orchestrator:   strings.ToLower(getEnv("CONTAINER_ORCHESTRATOR", "docker")),
		ComposeProject: getEnv("COMPOSE_PROJECT", "legacy-use"),
		KubeNamespace:  getEnv("KUBERNETES_NAMESPACE", "legacy-use"),

		ServiceNameMapFile: os.Getenv("SERVICE_NAME_MAP_FILE"),
		PodIPCIDR:          os.Getenv("POD_IP_CIDR"),

		VNCAdapterPath: getEnv("VNC_ADAPTER_PATH", "/usr/local/bin/websockify"),
		VNCWebRoot:     getEnv("VNC_WEB_ROOT", "/usr/share/novnc"),

		CORSAllowedOrigins:     splitNonEmpty(os.Getenv("CORS_ALLOWED_ORIGINS")),
		InternalAllowedOrigins: splitNonEmpty(os.Getenv("GATEWAY_INTERNAL_ALLOWED_ORIGINS")),

		APIProvider: getEnv("API_PROVIDER", "anthropic"),

		LogRetentionDays: getEnvInt("LOG_RETENTION_DAYS", 7),

		ShutdownTimeout: 30 * time.Second,
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	return cfg
}

// Validate rejects a configuration that cannot start a working gateway.
func (c *Config) Validate() error {
	if c.Orchestrator != "docker" && c.Orchestrator != "kubernetes" && c.Orchestrator != "k8s" {
		return fmt.Errorf("invalid CONTAINER_ORCHESTRATOR %q: must be docker or kubernetes", c.Orchestrator)
	}
	if c.InternalBindAddr == "" {
		return fmt.Errorf("GATEWAY_BIND_ADDR must not be empty")
	}
	return nil
}

func splitNonEmpty(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
