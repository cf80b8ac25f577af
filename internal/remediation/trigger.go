package remediation

import (
	"fmt"
	"slices"

	"github.com/Knetic/govaluate"
)

// Default plan trigger expressions.
const (
	DefaultScaleTrigger       = "usage_increase > 0.8"
	DefaultDegradationTrigger = "cpu_usage > 0.8 || memory_usage > 0.8"
)

var (
	scaleTriggerVars       = []string{"usage_increase"}
	degradationTriggerVars = []string{"cpu_usage", "memory_usage", "disk_usage", "network_usage"}
)

// Trigger is a compiled boolean expression deciding whether a plan step runs.
type Trigger struct {
	source     string
	expression *govaluate.EvaluableExpression
}

// NewTrigger compiles source, rejecting variables outside allowed.
func NewTrigger(source string, allowed []string) (*Trigger, error) {
	expr, err := govaluate.NewEvaluableExpression(source)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidTrigger, source, err)
	}
	for _, v := range expr.Vars() {
		if !slices.Contains(allowed, v) {
			return nil, fmt.Errorf("%w %q: unknown variable %q (allowed: %v)", ErrInvalidTrigger, source, v, allowed)
		}
	}
	return &Trigger{source: source, expression: expr}, nil
}

// Evaluate runs the expression against vars. Non-boolean results are errors.
func (t *Trigger) Evaluate(vars map[string]interface{}) (bool, error) {
	out, err := t.expression.Evaluate(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate trigger %q: %w", t.source, err)
	}
	fired, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("trigger %q returned %T, want bool", t.source, out)
	}
	return fired, nil
}

func (t *Trigger) String() string {
	return t.source
}

func (m NodeMetrics) vars() map[string]interface{} {
	return map[string]interface{}{
		"cpu_usage":     m.CPUUsage,
		"memory_usage":  m.MemoryUsage,
		"disk_usage":    m.DiskUsage,
		"network_usage": m.NetworkUsage,
	}
}
