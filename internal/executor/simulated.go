package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/softcane/kube-remediator/internal/remediation"
)

// DefaultSimulatedNodeMetrics are reported by the simulated executor unless
// overridden.
var DefaultSimulatedNodeMetrics = remediation.NodeMetrics{
	CPUUsage:     0.75,
	MemoryUsage:  0.85,
	DiskUsage:    0.60,
	NetworkUsage: 0.40,
}

// SimulatedConfig configures the simulated executor.
type SimulatedConfig struct {
	// NodeMetrics overrides DefaultSimulatedNodeMetrics when non-nil.
	NodeMetrics *remediation.NodeMetrics
	Logger      *slog.Logger
}

// SimulatedExecutor reports success for every action without touching a
// cluster. Outcomes are deterministic so demos and tests are repeatable.
type SimulatedExecutor struct {
	nodeMetrics remediation.NodeMetrics
	logger      *slog.Logger
}

// NewSimulatedExecutor creates a simulated executor.
func NewSimulatedExecutor(cfg SimulatedConfig) *SimulatedExecutor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nm := DefaultSimulatedNodeMetrics
	if cfg.NodeMetrics != nil {
		nm = *cfg.NodeMetrics
	}
	return &SimulatedExecutor{nodeMetrics: nm, logger: logger}
}

// ScaleDeployment reports a scale from replicas-1 to replicas.
func (s *SimulatedExecutor) ScaleDeployment(_ context.Context, namespace, name string, replicas int32) remediation.ActionOutcome {
	start := time.Now()
	s.logger.Info("simulated: scaling deployment",
		"namespace", namespace,
		"deployment", name,
		"replicas", replicas,
	)
	return s.outcome(remediation.ActionScaleDeployment, map[string]any{
		"namespace":    namespace,
		"deployment":   name,
		"old_replicas": replicas - 1,
		"new_replicas": replicas,
	}, start)
}

// RelocatePod reports a move from node-1 to node-2.
func (s *SimulatedExecutor) RelocatePod(_ context.Context, namespace, pod string) remediation.ActionOutcome {
	start := time.Now()
	s.logger.Info("simulated: relocating pod", "namespace", namespace, "pod", pod)
	return s.outcome(remediation.ActionRelocatePod, map[string]any{
		"namespace": namespace,
		"pod":       pod,
		"old_node":  "node-1",
		"new_node":  "node-2",
	}, start)
}

// OptimizeResources reports a change from 500m/512Mi to the requested values,
// or to 750m/768Mi when none are given.
func (s *SimulatedExecutor) OptimizeResources(_ context.Context, namespace, deployment string, req remediation.ResourceRequests) remediation.ActionOutcome {
	start := time.Now()
	s.logger.Info("simulated: optimizing deployment resources",
		"namespace", namespace,
		"deployment", deployment,
		"cpu", req.CPU,
		"memory", req.Memory,
	)
	return s.outcome(remediation.ActionOptimizeResources, map[string]any{
		"namespace":  namespace,
		"deployment": deployment,
		"changes": map[string]any{
			"cpu":    map[string]string{"old": "500m", "new": valueOr(req.CPU, "750m")},
			"memory": map[string]string{"old": "512Mi", "new": valueOr(req.Memory, "768Mi")},
		},
	}, start)
}

// NodeMetrics returns the configured metrics for any node.
func (s *SimulatedExecutor) NodeMetrics(_ context.Context, node string) (remediation.NodeMetrics, error) {
	target := node
	if target == "" {
		target = "all nodes"
	}
	s.logger.Debug("simulated: reading node metrics", "node", target)
	return s.nodeMetrics, nil
}

func (s *SimulatedExecutor) outcome(action remediation.ActionType, details map[string]any, start time.Time) remediation.ActionOutcome {
	details["simulated"] = true
	return remediation.ActionOutcome{
		Action:   action,
		Status:   remediation.StatusSuccess,
		Details:  details,
		Duration: time.Since(start),
	}
}

var _ remediation.Executor = (*SimulatedExecutor)(nil)
