// Package remediation implements the decision engine that turns scored
// predictions about cluster problems into remediation actions.
//
// A prediction is gated on a confidence threshold, resolved into one of four
// issue variants, and executed through an Executor. Every executed action is
// appended to the Store's action log and counted by the effectiveness
// aggregator; actions can later be marked as false positives.
package remediation

import "time"

// IssueType classifies a predicted problem.
type IssueType string

const (
	IssueResourceExhaustion     IssueType = "resource_exhaustion"
	IssueNodeFailure            IssueType = "node_failure"
	IssueResourceBottleneck     IssueType = "resource_bottleneck"
	IssuePerformanceDegradation IssueType = "performance_degradation"
)

// IssueTypes lists the issue types the engine can act on.
var IssueTypes = []IssueType{
	IssueResourceExhaustion,
	IssueNodeFailure,
	IssueResourceBottleneck,
	IssuePerformanceDegradation,
}

// ActionType names a kind of remediation action.
type ActionType string

const (
	ActionScaleDeployment   ActionType = "scale_deployment"
	ActionRelocatePod       ActionType = "relocate_pod"
	ActionOptimizeResources ActionType = "optimize_resources"
)

// ActionStatus is the outcome of one executed action.
type ActionStatus string

const (
	StatusSuccess ActionStatus = "success"
	StatusError   ActionStatus = "error"
)

// Target describes the resource a prediction is about. Which fields are
// required depends on the issue type.
type Target struct {
	Namespace     string `json:"namespace,omitempty"`
	Deployment    string `json:"deployment,omitempty"`
	Pod           string `json:"pod,omitempty"`
	Node          string `json:"node,omitempty"`
	Replicas      *int32 `json:"replicas,omitempty"`
	CurrentCPU    string `json:"current_cpu,omitempty"`
	CurrentMemory string `json:"current_memory,omitempty"`
}

// Details carries issue-specific adjustment hints.
type Details struct {
	UsageIncrease    *float64 `json:"usage_increase,omitempty"`
	CPUAdjustment    *float64 `json:"cpu_adjustment,omitempty"`
	MemoryAdjustment *float64 `json:"memory_adjustment,omitempty"`
}

// Prediction is a scored, classified signal about a pending problem.
// Confidence is compared with the threshold as-is; it is never clamped.
type Prediction struct {
	IssueType  IssueType `json:"issue_type" validate:"required"`
	Confidence float64   `json:"confidence"`
	Target     Target    `json:"target"`
	Details    *Details  `json:"details,omitempty"`
}

// ActionRecord is the logged outcome of one executed action. Only
// FalsePositive changes after the record is appended.
type ActionRecord struct {
	ID            string         `json:"id"`
	Type          ActionType     `json:"type"`
	Status        ActionStatus   `json:"status"`
	Details       map[string]any `json:"details,omitempty"`
	Error         string         `json:"error,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Duration      float64        `json:"duration"`
	FalsePositive bool           `json:"false_positive,omitempty"`
}

// Succeeded reports whether the action completed successfully.
func (r ActionRecord) Succeeded() bool {
	return r.Status == StatusSuccess
}

// RemediationResult is returned by HandlePrediction and is not persisted.
type RemediationResult struct {
	RequestID  string         `json:"request_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Prediction Prediction     `json:"prediction"`
	Actions    []ActionRecord `json:"actions"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
}
