// Package config loads this host's configuration surface (spec §6): the
// URL prefix, auth requirement, shutdown/queue/worker tuning, agent
// metadata overrides, TaskStore backend selection, and rate-limit
// settings. It mirrors kadirpekel/hector's pkg/config loader: YAML
// decoded with mapstructure, environment-variable expansion, and an
// optional file watcher for hot reload.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the a2ahost process.
type Config struct {
	// Server controls the wire surface: URL prefix, auth, queue/worker
	// sizing, shutdown timeout.
	Server ServerConfig `yaml:"server,omitempty"`

	// Agent carries the static metadata overrides composed into the
	// agent card (C9) absent an agent-supplied override.
	Agent AgentMetadata `yaml:"agent,omitempty"`

	// TaskStore selects and configures the backing Storage (C1).
	TaskStore TaskStoreConfig `yaml:"task_store,omitempty"`

	// RateLimit configures per-identity admission control in front of
	// the WorkQueue (C5), a SPEC_FULL.md supplement over the bare spec.
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty"`

	// Auth configures JWT bearer validation for requireAuth.
	Auth AuthConfig `yaml:"auth,omitempty"`

	// Observability configures tracing/metrics.
	Observability ObservabilityConfig `yaml:"observability,omitempty"`

	// Logging configures the process-wide slog logger.
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// ServerConfig mirrors spec §6's enumerated configuration options.
type ServerConfig struct {
	// Path is the URL prefix every REST/JSON-RPC route is mounted under.
	Path string `yaml:"path,omitempty"`

	// Port the HTTP listener binds.
	Port int `yaml:"port,omitempty"`

	// RequireAuth gates the REST/JSON-RPC surface behind JWT bearer
	// validation when an Auth.JWKSURL is configured.
	RequireAuth bool `yaml:"require_auth,omitempty"`

	// ShutdownTimeout bounds how long in-flight turns are awaited on
	// graceful shutdown before being abandoned (spec §5).
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`

	// MaxQueueDepth bounds the WorkQueue's backlog (C5).
	MaxQueueDepth int `yaml:"max_queue_depth,omitempty"`

	// WorkerCount sizes the fixed BackgroundWorker pool (C5).
	WorkerCount int `yaml:"worker_count,omitempty"`
}

// AgentMetadata carries the agent-card overrides spec §6 names.
type AgentMetadata struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Version     string `yaml:"version,omitempty"`
}

// TaskStoreBackend selects a Storage implementation.
type TaskStoreBackend string

const (
	TaskStoreBackendMemory TaskStoreBackend = "memory"
	TaskStoreBackendEtcd   TaskStoreBackend = "etcd"
)

// TaskStoreConfig selects and configures the TaskStore backend (C1).
type TaskStoreConfig struct {
	Backend       TaskStoreBackend `yaml:"backend,omitempty"`
	EtcdEndpoints []string         `yaml:"etcd_endpoints,omitempty"`
	EtcdPrefix    string           `yaml:"etcd_prefix,omitempty"`
}

// RateLimitConfig configures the per-identity fixed-window limiter
// supplementing WorkQueue admission.
type RateLimitConfig struct {
	Enabled      bool          `yaml:"enabled,omitempty"`
	MaxPerWindow int           `yaml:"max_per_window,omitempty"`
	Window       time.Duration `yaml:"window,omitempty"`
}

// AuthConfig configures JWT bearer validation.
type AuthConfig struct {
	JWKSURL  string `yaml:"jwks_url,omitempty"`
	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`
}

// ObservabilityConfig configures tracing/metrics.
type ObservabilityConfig struct {
	TracingEnabled bool    `yaml:"tracing_enabled,omitempty"`
	SamplingRate   float64 `yaml:"sampling_rate,omitempty"`
	MetricsEnabled bool    `yaml:"metrics_enabled,omitempty"`
	Namespace      string  `yaml:"namespace,omitempty"`
}

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// SetDefaults fills zero-valued fields with the spec §6 defaults.
func (c *Config) SetDefaults() {
	if c.Server.Path == "" {
		c.Server.Path = "/a2a"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 60 * time.Second
	}
	if c.Server.MaxQueueDepth == 0 {
		c.Server.MaxQueueDepth = 256
	}
	if c.Server.WorkerCount == 0 {
		c.Server.WorkerCount = 4
	}
	if c.TaskStore.Backend == "" {
		c.TaskStore.Backend = TaskStoreBackendMemory
	}
	if c.TaskStore.EtcdPrefix == "" {
		c.TaskStore.EtcdPrefix = "/a2ahost/"
	}
	if c.RateLimit.MaxPerWindow == 0 {
		c.RateLimit.MaxPerWindow = 60
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.Observability.Namespace == "" {
		c.Observability.Namespace = "a2ahost"
	}
	if c.Observability.SamplingRate == 0 {
		c.Observability.SamplingRate = 1.0
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports an error for option combinations the host cannot run
// with, rather than silently coercing them.
func (c *Config) Validate() error {
	if c.Server.WorkerCount < 0 {
		return fmt.Errorf("config: server.worker_count must not be negative")
	}
	if c.Server.MaxQueueDepth < 0 {
		return fmt.Errorf("config: server.max_queue_depth must not be negative")
	}
	if c.TaskStore.Backend == TaskStoreBackendEtcd && len(c.TaskStore.EtcdEndpoints) == 0 {
		return fmt.Errorf("config: task_store.backend=etcd requires at least one task_store.etcd_endpoints entry")
	}
	return nil
}

// Load reads, expands, decodes, defaults, and validates the config at
// path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw YAML bytes into a defaulted, validated Config.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	expanded := expandEnvVars(raw)

	cfg := &Config{}
	if err := decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode maps a generic YAML tree onto Config using mapstructure, the
// same decoder shape hector's loader.go uses (yaml tag name, weakly-typed
// input, duration/slice decode hooks).
func decode(input map[string]any, out *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars recursively expands ${VAR}, ${VAR:-default}, and $VAR
// references anywhere a string appears in the decoded YAML tree.
func expandEnvVars(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandEnvVars(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandEnvVars(item)
		}
		return out
	default:
		return v
	}
}

func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if strings.HasPrefix(match, "${") {
			inner := match[2 : len(match)-1]
			name, def, hasDefault := inner, "", false
			if idx := strings.Index(inner, ":-"); idx != -1 {
				name, def, hasDefault = inner[:idx], inner[idx+2:], true
			}
			if v, ok := os.LookupEnv(name); ok {
				return v
			}
			if hasDefault {
				return def
			}
			return ""
		}
		return os.Getenv(match[1:])
	})
}
