package cmd

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/softcane/kube-remediator/internal/config"
	"github.com/softcane/kube-remediator/internal/executor"
)

// newServeFlags returns a command with the serve flags bound to the package vars.
func newServeFlags(t *testing.T) *cobra.Command {
	t.Helper()
	listenAddr, executorMode, threshold = "", "", 0
	c := &cobra.Command{Use: "serve"}
	c.Flags().StringVar(&listenAddr, "listen", "", "")
	c.Flags().StringVar(&executorMode, "executor", "", "")
	c.Flags().Float64Var(&threshold, "threshold", 0, "")
	return c
}

func TestApplyServeOverrides_UnsetFlagsKeepConfig(t *testing.T) {
	c := newServeFlags(t)
	cfg := config.Default()

	if err := applyServeOverrides(c, cfg); err != nil {
		t.Fatalf("applyServeOverrides() error = %v", err)
	}
	if cfg.Server.Address != ":8000" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Engine.Threshold() != config.DefaultPredictionThreshold {
		t.Errorf("threshold = %v", cfg.Engine.Threshold())
	}
}

func TestApplyServeOverrides_ExplicitFlagsWin(t *testing.T) {
	c := newServeFlags(t)
	for name, value := range map[string]string{
		"listen":    "127.0.0.1:9999",
		"executor":  "kubernetes",
		"threshold": "0",
	} {
		if err := c.Flags().Set(name, value); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.Default()

	if err := applyServeOverrides(c, cfg); err != nil {
		t.Fatalf("applyServeOverrides() error = %v", err)
	}
	if cfg.Server.Address != "127.0.0.1:9999" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Executor.Mode != config.ExecutorKubernetes {
		t.Errorf("mode = %q", cfg.Executor.Mode)
	}
	if cfg.Engine.Threshold() != 0 {
		t.Errorf("explicit zero threshold should be kept, got %v", cfg.Engine.Threshold())
	}
}

func TestApplyServeOverrides_RejectsInvalid(t *testing.T) {
	tests := []struct {
		flag  string
		value string
	}{
		{flag: "threshold", value: "1.5"},
		{flag: "executor", value: "docker"},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			c := newServeFlags(t)
			if err := c.Flags().Set(tt.flag, tt.value); err != nil {
				t.Fatal(err)
			}
			if err := applyServeOverrides(c, config.Default()); err == nil {
				t.Errorf("expected error for --%s=%s", tt.flag, tt.value)
			}
		})
	}
}

func TestEngineConfig_CarriesDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.DefaultCPU = "250m"
	cfg.Engine.DefaultMemoryAdjustment = 1.5
	cfg.Engine.ScaleTrigger = "usage_increase > 0.5"

	ec := engineConfig(cfg, nil, nil)
	if ec.Defaults.CPU != "250m" {
		t.Errorf("cpu = %q", ec.Defaults.CPU)
	}
	if ec.Defaults.MemoryAdjustment != 1.5 {
		t.Errorf("memory adjustment = %v", ec.Defaults.MemoryAdjustment)
	}
	if ec.ScaleTrigger != "usage_increase > 0.5" {
		t.Errorf("scale trigger = %q", ec.ScaleTrigger)
	}
	if ec.Threshold != config.DefaultPredictionThreshold {
		t.Errorf("threshold = %v", ec.Threshold)
	}
}

func TestBuildExecutor_Simulated(t *testing.T) {
	exec, err := buildExecutor(config.Default())
	if err != nil {
		t.Fatalf("buildExecutor() error = %v", err)
	}
	if _, ok := exec.(*executor.SimulatedExecutor); !ok {
		t.Errorf("executor = %T, want *executor.SimulatedExecutor", exec)
	}
}
