package remediation

import (
	"context"
	"time"
)

// ResourceRequests are the container requests an optimize action should apply.
// Empty fields leave the current request untouched.
type ResourceRequests struct {
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

// NodeMetrics holds utilisation fractions (0-1) for a node.
type NodeMetrics struct {
	CPUUsage     float64 `json:"cpu_usage"`
	MemoryUsage  float64 `json:"memory_usage"`
	DiskUsage    float64 `json:"disk_usage"`
	NetworkUsage float64 `json:"network_usage"`
}

// ActionOutcome is what an Executor reports for one action. Failures are
// reported through Status and Error, not as Go errors, so a failed action still
// becomes a record.
type ActionOutcome struct {
	Action   ActionType
	Status   ActionStatus
	Details  map[string]any
	Error    string
	Duration time.Duration
}

// Executor performs remediation actions against the cluster.
type Executor interface {
	ScaleDeployment(ctx context.Context, namespace, name string, replicas int32) ActionOutcome
	RelocatePod(ctx context.Context, namespace, pod string) ActionOutcome
	OptimizeResources(ctx context.Context, namespace, deployment string, requests ResourceRequests) ActionOutcome
	// NodeMetrics returns utilisation for node, or a cluster average when node is empty.
	NodeMetrics(ctx context.Context, node string) (NodeMetrics, error)
}

// Journal receives recorded actions for durable storage. Implementations must
// not block for long; failures are logged and otherwise ignored.
type Journal interface {
	RecordAction(ctx context.Context, rec ActionRecord) error
	RecordFalsePositive(ctx context.Context, rec ActionRecord) error
}

// ErrorOutcome builds a failed outcome for action.
func ErrorOutcome(action ActionType, err error, elapsed time.Duration) ActionOutcome {
	return ActionOutcome{
		Action:   action,
		Status:   StatusError,
		Error:    err.Error(),
		Duration: elapsed,
	}
}
