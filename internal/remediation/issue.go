package remediation

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// PlanDefaults fill in target/details values a prediction leaves out.
type PlanDefaults struct {
	Replicas         int32
	CPU              string
	Memory           string
	CPUAdjustment    float64
	MemoryAdjustment float64
}

// DefaultPlanDefaults returns the stock defaults.
func DefaultPlanDefaults() PlanDefaults {
	return PlanDefaults{
		Replicas:         1,
		CPU:              "100m",
		Memory:           "128Mi",
		CPUAdjustment:    1.2,
		MemoryAdjustment: 1.2,
	}
}

func (d PlanDefaults) withFallbacks() PlanDefaults {
	stock := DefaultPlanDefaults()
	if d.Replicas <= 0 {
		d.Replicas = stock.Replicas
	}
	if d.CPU == "" {
		d.CPU = stock.CPU
	}
	if d.Memory == "" {
		d.Memory = stock.Memory
	}
	if d.CPUAdjustment <= 0 {
		d.CPUAdjustment = stock.CPUAdjustment
	}
	if d.MemoryAdjustment <= 0 {
		d.MemoryAdjustment = stock.MemoryAdjustment
	}
	return d
}

// Issue is the resolved, validated payload of a prediction. The set of
// implementations is closed: one per IssueType.
type Issue interface {
	Type() IssueType
	issue()
}

// ExhaustionIssue: a deployment is about to run out of resources.
type ExhaustionIssue struct {
	Namespace     string `validate:"required"`
	Deployment    string `validate:"required"`
	Replicas      int32  `validate:"gte=0,lt=2147483647"`
	UsageIncrease float64
}

// NodeFailureIssue: the node hosting a pod is expected to fail.
type NodeFailureIssue struct {
	Namespace string `validate:"required"`
	Pod       string `validate:"required"`
}

// BottleneckIssue: a deployment's requests are too small.
type BottleneckIssue struct {
	Namespace        string  `validate:"required"`
	Deployment       string  `validate:"required"`
	CurrentCPU       string  `validate:"required"`
	CurrentMemory    string  `validate:"required"`
	CPUAdjustment    float64 `validate:"gt=0"`
	MemoryAdjustment float64 `validate:"gt=0"`
}

// DegradationIssue: a node is slowing down the deployments it hosts.
// An empty Node means cluster-wide metrics.
type DegradationIssue struct {
	Node       string
	Namespace  string `validate:"required"`
	Deployment string `validate:"required"`
}

func (*ExhaustionIssue) Type() IssueType  { return IssueResourceExhaustion }
func (*NodeFailureIssue) Type() IssueType { return IssueNodeFailure }
func (*BottleneckIssue) Type() IssueType  { return IssueResourceBottleneck }
func (*DegradationIssue) Type() IssueType { return IssuePerformanceDegradation }

func (*ExhaustionIssue) issue()  {}
func (*NodeFailureIssue) issue() {}
func (*BottleneckIssue) issue()  {}
func (*DegradationIssue) issue() {}

// Resolve maps the prediction onto its issue variant and validates it.
func (p Prediction) Resolve(defaults PlanDefaults) (Issue, error) {
	defaults = defaults.withFallbacks()
	details := Details{}
	if p.Details != nil {
		details = *p.Details
	}
	t := p.Target

	var issue Issue
	switch p.IssueType {
	case IssueResourceExhaustion:
		replicas := defaults.Replicas
		if t.Replicas != nil {
			replicas = *t.Replicas
		}
		issue = &ExhaustionIssue{
			Namespace:     t.Namespace,
			Deployment:    t.Deployment,
			Replicas:      replicas,
			UsageIncrease: floatOr(details.UsageIncrease, 0),
		}
	case IssueNodeFailure:
		issue = &NodeFailureIssue{
			Namespace: t.Namespace,
			Pod:       t.Pod,
		}
	case IssueResourceBottleneck:
		issue = &BottleneckIssue{
			Namespace:        t.Namespace,
			Deployment:       t.Deployment,
			CurrentCPU:       stringOr(t.CurrentCPU, defaults.CPU),
			CurrentMemory:    stringOr(t.CurrentMemory, defaults.Memory),
			CPUAdjustment:    floatOr(details.CPUAdjustment, defaults.CPUAdjustment),
			MemoryAdjustment: floatOr(details.MemoryAdjustment, defaults.MemoryAdjustment),
		}
	case IssuePerformanceDegradation:
		issue = &DegradationIssue{
			Node:       t.Node,
			Namespace:  t.Namespace,
			Deployment: t.Deployment,
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIssueType, p.IssueType)
	}

	if err := validate.Struct(issue); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPrediction, p.IssueType, err)
	}
	return issue, nil
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func stringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
