package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoad_FullConfig(t *testing.T) {
	cfgPath := writeConfig(t, `
engine:
  predictionThreshold: 0.7
  scaleTrigger: "usage_increase > 1.0"
  degradationTrigger: "cpu_usage > 0.9"
  defaultCPU: "200m"
  defaultMemory: "256Mi"
  defaultCPUAdjustment: 1.5
  defaultMemoryAdjustment: 1.3
server:
  address: ":9090"
  shutdownTimeoutSeconds: 5
executor:
  mode: kubernetes
  nodeMetricsSource: prometheus
  evictionGracePeriodSeconds: 45
prometheus:
  url: "http://prometheus:9090"
  timeoutSeconds: 3
journal:
  enabled: true
  address: "redis:6379"
  db: 2
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.Threshold() != 0.7 {
		t.Errorf("threshold = %v, want 0.7", cfg.Engine.Threshold())
	}
	if cfg.Engine.ScaleTrigger != "usage_increase > 1.0" {
		t.Errorf("scaleTrigger = %q", cfg.Engine.ScaleTrigger)
	}
	if cfg.Executor.Mode != ExecutorKubernetes || cfg.Executor.NodeMetricsSource != NodeMetricsPrometheus {
		t.Errorf("executor = %+v", cfg.Executor)
	}
	if cfg.Executor.EvictionGracePeriodSeconds != 45 {
		t.Errorf("eviction grace = %d, want 45", cfg.Executor.EvictionGracePeriodSeconds)
	}
	if cfg.Server.ShutdownTimeout().Seconds() != 5 {
		t.Errorf("shutdown timeout = %v", cfg.Server.ShutdownTimeout())
	}
	if cfg.Prometheus.Timeout().Seconds() != 3 {
		t.Errorf("prometheus timeout = %v", cfg.Prometheus.Timeout())
	}
	// Key falls back to the default list name.
	if cfg.Journal.Key != "remediation:actions" {
		t.Errorf("journal key = %q", cfg.Journal.Key)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "engine: {}\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Engine.Threshold() != DefaultPredictionThreshold {
		t.Errorf("threshold = %v, want %v", cfg.Engine.Threshold(), DefaultPredictionThreshold)
	}
	if cfg.Engine.DefaultCPU != "100m" || cfg.Engine.DefaultMemory != "128Mi" {
		t.Errorf("default requests = %s/%s", cfg.Engine.DefaultCPU, cfg.Engine.DefaultMemory)
	}
	if cfg.Engine.DefaultCPUAdjustment != 1.2 || cfg.Engine.DefaultMemoryAdjustment != 1.2 {
		t.Errorf("default adjustments = %v/%v", cfg.Engine.DefaultCPUAdjustment, cfg.Engine.DefaultMemoryAdjustment)
	}
	if cfg.Server.Address != ":8000" {
		t.Errorf("address = %q, want :8000", cfg.Server.Address)
	}
	if cfg.Executor.Mode != ExecutorSimulated {
		t.Errorf("mode = %q, want simulated", cfg.Executor.Mode)
	}
}

func TestLoad_ExplicitZeroThreshold(t *testing.T) {
	cfg, err := Load(writeConfig(t, "engine:\n  predictionThreshold: 0\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.Threshold() != 0 {
		t.Errorf("threshold = %v, want 0", cfg.Engine.Threshold())
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "engine: [unclosed")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestValidate(t *testing.T) {
	threshold := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "defaults are valid",
			cfg:  Config{},
		},
		{
			name:    "threshold above one",
			cfg:     Config{Engine: EngineConfig{PredictionThreshold: threshold(1.5)}},
			wantErr: "engine.predictionThreshold",
		},
		{
			name:    "negative threshold",
			cfg:     Config{Engine: EngineConfig{PredictionThreshold: threshold(-0.1)}},
			wantErr: "engine.predictionThreshold",
		},
		{
			name:    "negative adjustment",
			cfg:     Config{Engine: EngineConfig{DefaultCPUAdjustment: -1}},
			wantErr: "engine.defaultCPUAdjustment",
		},
		{
			name:    "bad default cpu",
			cfg:     Config{Engine: EngineConfig{DefaultCPU: "2 cores"}},
			wantErr: "engine.defaultCPU",
		},
		{
			name:    "bad default memory",
			cfg:     Config{Engine: EngineConfig{DefaultMemory: "1GB"}},
			wantErr: "engine.defaultMemory",
		},
		{
			name:    "unknown executor mode",
			cfg:     Config{Executor: ExecutorConfig{Mode: "chaos"}},
			wantErr: "executor.mode",
		},
		{
			name:    "unknown metrics source",
			cfg:     Config{Executor: ExecutorConfig{Mode: ExecutorKubernetes, NodeMetricsSource: "statsd"}},
			wantErr: "executor.nodeMetricsSource",
		},
		{
			name:    "prometheus source without url",
			cfg:     Config{Executor: ExecutorConfig{Mode: ExecutorKubernetes, NodeMetricsSource: NodeMetricsPrometheus}},
			wantErr: "prometheus.url",
		},
		{
			name: "kubernetes with metrics-server",
			cfg:  Config{Executor: ExecutorConfig{Mode: ExecutorKubernetes}},
		},
		{
			name:    "journal without address",
			cfg:     Config{Journal: JournalConfig{Enabled: true}},
			wantErr: "journal.address",
		},
		{
			name: "disabled journal needs no address",
			cfg:  Config{Journal: JournalConfig{Enabled: false}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() is not valid: %v", err)
	}
	if cfg.Engine.Threshold() != DefaultPredictionThreshold {
		t.Errorf("threshold = %v", cfg.Engine.Threshold())
	}
}
