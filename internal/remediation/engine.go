package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/softcane/kube-remediator/internal/metrics"
	"github.com/softcane/kube-remediator/internal/units"
)

// DefaultThreshold is the confidence a prediction needs before the engine acts.
const DefaultThreshold = 0.8

// DefaultJournalTimeout bounds each journal write.
const DefaultJournalTimeout = 2 * time.Second

// Labels under which actions are counted, one per issue type.
const (
	labelResourceScaling         = "resource_scaling"
	labelPodRelocation           = "pod_relocation"
	labelResourceOptimization    = "resource_optimization"
	labelPerformanceOptimization = "performance_optimization"
)

func metricLabel(t IssueType) string {
	switch t {
	case IssueResourceExhaustion:
		return labelResourceScaling
	case IssueNodeFailure:
		return labelPodRelocation
	case IssueResourceBottleneck:
		return labelResourceOptimization
	case IssuePerformanceDegradation:
		return labelPerformanceOptimization
	default:
		return "unknown"
	}
}

// Config holds engine configuration.
type Config struct {
	Executor Executor
	// Store holds the action log and counters. Nil creates a fresh one.
	Store *Store
	// Journal is optional.
	Journal Journal
	// JournalTimeout bounds each journal write. Zero uses DefaultJournalTimeout.
	JournalTimeout time.Duration
	Logger         *slog.Logger

	// Threshold must lie in [0, 1].
	Threshold float64
	// ScaleTrigger decides whether resource_exhaustion scales out. Empty uses DefaultScaleTrigger.
	ScaleTrigger string
	// DegradationTrigger decides whether performance_degradation optimizes. Empty uses DefaultDegradationTrigger.
	DegradationTrigger string
	Defaults           PlanDefaults

	// Clock is used for timestamps; nil means time.Now.
	Clock func() time.Time
}

// Engine routes predictions to action plans and records their outcomes.
type Engine struct {
	executor Executor
	store    *Store
	journal  Journal
	logger   *slog.Logger
	defaults PlanDefaults

	journalTimeout time.Duration
	clock    func() time.Time

	scaleTrigger       *Trigger
	degradationTrigger *Trigger

	thresholdMu sync.RWMutex
	threshold   float64
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if !validThreshold(cfg.Threshold) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, cfg.Threshold)
	}

	scale, err := compileTrigger(cfg.ScaleTrigger, DefaultScaleTrigger, scaleTriggerVars)
	if err != nil {
		return nil, fmt.Errorf("scale trigger: %w", err)
	}
	degradation, err := compileTrigger(cfg.DegradationTrigger, DefaultDegradationTrigger, degradationTriggerVars)
	if err != nil {
		return nil, fmt.Errorf("degradation trigger: %w", err)
	}

	store := cfg.Store
	if store == nil {
		store = NewStore(metrics.NewAggregator(logger))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	journalTimeout := cfg.JournalTimeout
	if journalTimeout <= 0 {
		journalTimeout = DefaultJournalTimeout
	}

	return &Engine{
		executor:           cfg.Executor,
		store:              store,
		journal:            cfg.Journal,
		logger:             logger,
		defaults:           cfg.Defaults.withFallbacks(),
		journalTimeout:     journalTimeout,
		clock:              clock,
		scaleTrigger:       scale,
		degradationTrigger: degradation,
		threshold:          cfg.Threshold,
	}, nil
}

func compileTrigger(source, fallback string, vars []string) (*Trigger, error) {
	if source == "" {
		source = fallback
	}
	t, err := NewTrigger(source, vars)
	if err != nil {
		return nil, err
	}
	// Reject expressions that compile but do not yield a bool.
	zero := make(map[string]interface{}, len(vars))
	for _, v := range vars {
		zero[v] = 0.0
	}
	if _, err := t.Evaluate(zero); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}
	return t, nil
}

func validThreshold(v float64) bool {
	return v >= 0 && v <= 1
}

// Threshold returns the current confidence threshold.
func (e *Engine) Threshold() float64 {
	e.thresholdMu.RLock()
	defer e.thresholdMu.RUnlock()
	return e.threshold
}

// SetPredictionThreshold updates the confidence threshold. Values outside
// [0, 1] are rejected and the stored value is left unchanged.
func (e *Engine) SetPredictionThreshold(v float64) error {
	if !validThreshold(v) {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, v)
	}
	e.thresholdMu.Lock()
	old := e.threshold
	e.threshold = v
	e.thresholdMu.Unlock()

	e.logger.Info("prediction threshold updated", "old", old, "new", v)
	return nil
}

// Store returns the engine's store.
func (e *Engine) Store() *Store {
	return e.store
}

// ActionHistory returns all recorded actions in insertion order.
func (e *Engine) ActionHistory() []ActionRecord {
	return e.store.Actions()
}

// EffectivenessMetrics returns derived effectiveness statistics.
func (e *Engine) EffectivenessMetrics() metrics.Snapshot {
	return e.store.Snapshot()
}

// RecordResourceUtilization feeds the per-namespace utilisation gauge.
func (e *Engine) RecordResourceUtilization(resourceType, namespace string, value float64) {
	e.store.RecordResourceUtilization(resourceType, namespace, value)
}

// MarkFalsePositive flags a past action as a false positive. It returns false
// when no action matches both id and type.
func (e *Engine) MarkFalsePositive(ctx context.Context, id string, actionType ActionType) bool {
	rec, ok := e.store.MarkFalsePositive(id, actionType)
	if !ok {
		e.logger.Info("false positive target not found", "action_id", id, "action_type", actionType)
		return false
	}

	e.logger.Info("action marked as false positive", "action_id", id, "action_type", actionType)
	if e.journal != nil {
		jctx, cancel := e.journalContext(ctx)
		defer cancel()
		if err := e.journal.RecordFalsePositive(jctx, rec); err != nil {
			e.logger.Warn("failed to journal false positive", "action_id", id, "error", err)
		}
	}
	return true
}

// journalContext detaches journal writes from caller cancellation so records
// kept after an aborted plan are still journaled, and bounds them in time.
func (e *Engine) journalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.journalTimeout)
}

// HandlePrediction decides whether to act on p and executes the matching plan.
// It never returns an error: failures are reported in the result.
func (e *Engine) HandlePrediction(ctx context.Context, p Prediction) RemediationResult {
	result := RemediationResult{
		RequestID:  uuid.NewString(),
		Timestamp:  e.clock(),
		Prediction: p,
		Actions:    []ActionRecord{},
	}
	logger := e.logger.With(
		"request_id", result.RequestID,
		"issue_type", p.IssueType,
		"confidence", p.Confidence,
	)

	threshold := e.Threshold()
	if p.Confidence < threshold {
		logger.Info("prediction confidence below threshold", "threshold", threshold)
		return result
	}

	issue, err := p.Resolve(e.defaults)
	if err != nil {
		return e.fail(logger, result, err)
	}

	run := &planRun{
		engine:    e,
		ctx:       ctx,
		logger:    logger,
		timestamp: result.Timestamp,
		label:     metricLabel(issue.Type()),
	}

	switch is := issue.(type) {
	case *ExhaustionIssue:
		err = e.planExhaustion(run, is)
	case *NodeFailureIssue:
		err = e.planNodeFailure(run, is)
	case *BottleneckIssue:
		err = e.planBottleneck(run, is)
	case *DegradationIssue:
		err = e.planDegradation(run, is)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownIssueType, issue.Type())
	}

	// Records produced before a failure stay in the log; only a successful
	// plan with at least one action counts as a prevention.
	var prevented IssueType
	if err == nil && len(run.pending) > 0 {
		prevented = issue.Type()
	}
	records := run.commit(prevented)
	if err != nil {
		return e.fail(logger, result, err)
	}

	result.Actions = records
	result.Success = true
	logger.Info("prediction handled", "actions", len(records))
	return result
}

func (e *Engine) fail(logger *slog.Logger, result RemediationResult, err error) RemediationResult {
	logger.Error("error handling prediction", "error", err)
	result.Actions = []ActionRecord{}
	result.Success = false
	result.Error = err.Error()
	return result
}

// planRun collects the records produced while executing one plan.
type planRun struct {
	engine    *Engine
	ctx       context.Context
	logger    *slog.Logger
	timestamp time.Time
	label     string
	pending   []ActionRecord
}

// execute runs one executor call and buffers its outcome. A cancelled context
// stops the plan before the next call.
func (r *planRun) execute(action ActionType, call func(ctx context.Context) ActionOutcome) error {
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("plan aborted before %s: %w", action, err)
	}

	outcome := call(r.ctx)
	r.pending = append(r.pending, newRecord(action, outcome, r.timestamp))
	return nil
}

// commit stores the buffered records, logs and journals them.
func (r *planRun) commit(prevented IssueType) []ActionRecord {
	if len(r.pending) == 0 {
		return []ActionRecord{}
	}
	e := r.engine
	records := e.store.Commit(r.pending, r.label, prevented)

	for _, rec := range records {
		if rec.Succeeded() {
			r.logger.Info("remediation action executed", "action_id", rec.ID, "action_type", rec.Type, "duration", rec.Duration)
		} else {
			r.logger.Warn("remediation action failed", "action_id", rec.ID, "action_type", rec.Type, "error", rec.Error)
		}
	}

	if e.journal != nil {
		for _, rec := range records {
			jctx, cancel := e.journalContext(r.ctx)
			err := e.journal.RecordAction(jctx, rec)
			cancel()
			if err != nil {
				r.logger.Warn("failed to journal action", "action_id", rec.ID, "error", err)
			}
		}
	}
	return records
}

func newRecord(action ActionType, outcome ActionOutcome, ts time.Time) ActionRecord {
	status := outcome.Status
	errMsg := outcome.Error
	if status != StatusSuccess {
		status = StatusError
		if errMsg == "" {
			errMsg = fmt.Sprintf("executor reported status %q", outcome.Status)
		}
	}
	return ActionRecord{
		Type:      action,
		Status:    status,
		Details:   outcome.Details,
		Error:     errMsg,
		Timestamp: ts,
		Duration:  outcome.Duration.Seconds(),
	}
}

// planExhaustion scales out when the scale trigger fires, then optimizes.
func (e *Engine) planExhaustion(r *planRun, is *ExhaustionIssue) error {
	scale, err := e.scaleTrigger.Evaluate(map[string]interface{}{"usage_increase": is.UsageIncrease})
	if err != nil {
		return err
	}
	if scale {
		err := r.execute(ActionScaleDeployment, func(ctx context.Context) ActionOutcome {
			return e.executor.ScaleDeployment(ctx, is.Namespace, is.Deployment, is.Replicas+1)
		})
		if err != nil {
			return err
		}
	}
	return r.execute(ActionOptimizeResources, func(ctx context.Context) ActionOutcome {
		return e.executor.OptimizeResources(ctx, is.Namespace, is.Deployment, ResourceRequests{})
	})
}

func (e *Engine) planNodeFailure(r *planRun, is *NodeFailureIssue) error {
	return r.execute(ActionRelocatePod, func(ctx context.Context) ActionOutcome {
		return e.executor.RelocatePod(ctx, is.Namespace, is.Pod)
	})
}

// planBottleneck grows the deployment's requests by the predicted adjustments.
func (e *Engine) planBottleneck(r *planRun, is *BottleneckIssue) error {
	cpu, err := units.ScaleCPU(is.CurrentCPU, is.CPUAdjustment)
	if err != nil {
		return fmt.Errorf("%w: current_cpu: %v", ErrInvalidPrediction, err)
	}
	memory, err := units.ScaleMemory(is.CurrentMemory, is.MemoryAdjustment)
	if err != nil {
		return fmt.Errorf("%w: current_memory: %v", ErrInvalidPrediction, err)
	}

	return r.execute(ActionOptimizeResources, func(ctx context.Context) ActionOutcome {
		return e.executor.OptimizeResources(ctx, is.Namespace, is.Deployment, ResourceRequests{CPU: cpu, Memory: memory})
	})
}

// planDegradation optimizes when the node's utilisation trips the trigger.
func (e *Engine) planDegradation(r *planRun, is *DegradationIssue) error {
	nm, err := e.executor.NodeMetrics(r.ctx, is.Node)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNodeMetricsUnavailable, err)
	}
	e.store.RecordResourceUtilization("cpu", is.Namespace, nm.CPUUsage*100)
	e.store.RecordResourceUtilization("memory", is.Namespace, nm.MemoryUsage*100)

	fire, err := e.degradationTrigger.Evaluate(nm.vars())
	if err != nil {
		return err
	}
	if !fire {
		r.logger.Info("node metrics within bounds, no action", "node", is.Node,
			"cpu_usage", nm.CPUUsage, "memory_usage", nm.MemoryUsage)
		return nil
	}
	return r.execute(ActionOptimizeResources, func(ctx context.Context) ActionOutcome {
		return e.executor.OptimizeResources(ctx, is.Namespace, is.Deployment, ResourceRequests{})
	})
}
