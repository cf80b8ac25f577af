// Package config provides configuration loading for the remediation agent.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/softcane/kube-remediator/internal/units"
)

// DefaultPredictionThreshold is used when engine.predictionThreshold is unset.
const DefaultPredictionThreshold = 0.8

// Executor modes.
const (
	ExecutorSimulated  = "simulated"
	ExecutorKubernetes = "kubernetes"
)

// Node metrics sources.
const (
	NodeMetricsServer     = "metrics-server"
	NodeMetricsPrometheus = "prometheus"
)

// Config holds all agent configuration.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Server     ServerConfig     `yaml:"server"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Journal    JournalConfig    `yaml:"journal"`
}

// EngineConfig configures the decision engine.
type EngineConfig struct {
	// PredictionThreshold is a pointer so an explicit 0 differs from unset.
	PredictionThreshold *float64 `yaml:"predictionThreshold"`

	// ScaleTrigger decides whether resource_exhaustion scales out.
	// Variables: usage_increase.
	ScaleTrigger string `yaml:"scaleTrigger"`

	// DegradationTrigger decides whether performance_degradation optimizes.
	// Variables: cpu_usage, memory_usage, disk_usage, network_usage.
	DegradationTrigger string `yaml:"degradationTrigger"`

	// Fallbacks for resource_bottleneck predictions that omit them.
	DefaultCPU              string  `yaml:"defaultCPU"`
	DefaultMemory           string  `yaml:"defaultMemory"`
	DefaultCPUAdjustment    float64 `yaml:"defaultCPUAdjustment"`
	DefaultMemoryAdjustment float64 `yaml:"defaultMemoryAdjustment"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address                string `yaml:"address"`
	ShutdownTimeoutSeconds int    `yaml:"shutdownTimeoutSeconds"`
}

// ExecutorConfig selects and configures the action backend.
type ExecutorConfig struct {
	// Mode is "simulated" or "kubernetes".
	Mode string `yaml:"mode"`

	// NodeMetricsSource is "metrics-server" or "prometheus". Kubernetes mode only.
	NodeMetricsSource string `yaml:"nodeMetricsSource"`

	EvictionGracePeriodSeconds int64 `yaml:"evictionGracePeriodSeconds"`

	// Kubeconfig is optional; in-cluster config is tried first.
	Kubeconfig string `yaml:"kubeconfig"`
}

// PrometheusConfig configures the Prometheus client.
type PrometheusConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// JournalConfig configures the Redis action journal.
type JournalConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Key      string `yaml:"key"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns a configuration that runs the simulated executor locally.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a YAML file.
// Returns an error if file is missing or invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate applies defaults for optional fields and checks ranges.
func (c *Config) Validate() error {
	c.applyDefaults()

	// Engine validation
	if t := c.Engine.Threshold(); t < 0 || t > 1 {
		return fmt.Errorf("engine.predictionThreshold must be between 0 and 1")
	}
	if c.Engine.DefaultCPUAdjustment <= 0 {
		return fmt.Errorf("engine.defaultCPUAdjustment must be > 0")
	}
	if c.Engine.DefaultMemoryAdjustment <= 0 {
		return fmt.Errorf("engine.defaultMemoryAdjustment must be > 0")
	}
	if _, err := units.ParseCPUStrict(c.Engine.DefaultCPU); err != nil {
		return fmt.Errorf("engine.defaultCPU: %w", err)
	}
	if _, err := units.ParseMemoryStrict(c.Engine.DefaultMemory); err != nil {
		return fmt.Errorf("engine.defaultMemory: %w", err)
	}

	// Server validation
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}

	// Executor validation
	switch c.Executor.Mode {
	case ExecutorSimulated:
	case ExecutorKubernetes:
		switch c.Executor.NodeMetricsSource {
		case NodeMetricsServer:
		case NodeMetricsPrometheus:
			if c.Prometheus.URL == "" {
				return fmt.Errorf("prometheus.url is required when executor.nodeMetricsSource is %q", NodeMetricsPrometheus)
			}
		default:
			return fmt.Errorf("executor.nodeMetricsSource must be %q or %q, got %q",
				NodeMetricsServer, NodeMetricsPrometheus, c.Executor.NodeMetricsSource)
		}
		if c.Executor.EvictionGracePeriodSeconds < 0 {
			return fmt.Errorf("executor.evictionGracePeriodSeconds must be >= 0")
		}
	default:
		return fmt.Errorf("executor.mode must be %q or %q, got %q",
			ExecutorSimulated, ExecutorKubernetes, c.Executor.Mode)
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Address == "" {
		return fmt.Errorf("journal.address is required when the journal is enabled")
	}
	if c.Journal.DB < 0 {
		return fmt.Errorf("journal.db must be >= 0")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Engine.PredictionThreshold == nil {
		threshold := DefaultPredictionThreshold
		c.Engine.PredictionThreshold = &threshold
	}
	if c.Engine.DefaultCPU == "" {
		c.Engine.DefaultCPU = "100m"
	}
	if c.Engine.DefaultMemory == "" {
		c.Engine.DefaultMemory = "128Mi"
	}
	if c.Engine.DefaultCPUAdjustment == 0 {
		c.Engine.DefaultCPUAdjustment = 1.2
	}
	if c.Engine.DefaultMemoryAdjustment == 0 {
		c.Engine.DefaultMemoryAdjustment = 1.2
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8000"
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 10
	}
	if c.Executor.Mode == "" {
		c.Executor.Mode = ExecutorSimulated
	}
	if c.Executor.NodeMetricsSource == "" {
		c.Executor.NodeMetricsSource = NodeMetricsServer
	}
	if c.Executor.EvictionGracePeriodSeconds == 0 {
		c.Executor.EvictionGracePeriodSeconds = 30
	}
	if c.Prometheus.TimeoutSeconds == 0 {
		c.Prometheus.TimeoutSeconds = 10
	}
	if c.Journal.Key == "" {
		c.Journal.Key = "remediation:actions"
	}
}

// Threshold returns the configured prediction threshold.
func (c *EngineConfig) Threshold() float64 {
	if c.PredictionThreshold == nil {
		return DefaultPredictionThreshold
	}
	return *c.PredictionThreshold
}

// ShutdownTimeout returns the graceful shutdown timeout as a duration.
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Timeout returns the Prometheus timeout as a duration.
func (c *PrometheusConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
