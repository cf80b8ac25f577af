package remediation

import "errors"

// Sentinel errors for the decision engine.
var (
	// ErrUnknownIssueType is returned for predictions whose issue type has no plan.
	ErrUnknownIssueType = errors.New("remediation: unknown issue type")

	// ErrInvalidPrediction is returned when a prediction lacks fields its issue type needs.
	ErrInvalidPrediction = errors.New("remediation: invalid prediction")

	// ErrInvalidThreshold is returned for confidence thresholds outside [0, 1].
	ErrInvalidThreshold = errors.New("remediation: threshold must be between 0 and 1")

	// ErrNodeMetricsUnavailable is returned when node metrics cannot be read.
	ErrNodeMetricsUnavailable = errors.New("remediation: node metrics unavailable")

	// ErrInvalidTrigger is returned for plan trigger expressions that do not compile.
	ErrInvalidTrigger = errors.New("remediation: invalid trigger expression")
)
