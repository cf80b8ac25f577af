// Package metrics provides the Prometheus-backed effectiveness aggregator for
// remediation actions and a Prometheus query client for node utilisation.
package metrics

import (
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "remediation"

var (
	actionsName        = prometheus.BuildFQName(namespace, "", "actions_total")
	durationName       = prometheus.BuildFQName(namespace, "", "action_duration_seconds")
	preventionsName    = prometheus.BuildFQName(namespace, "", "issues_prevented_total")
	falsePositivesName = prometheus.BuildFQName(namespace, "", "false_positives_total")
	utilizationName    = prometheus.BuildFQName(namespace, "", "resource_utilization_percent")
)

// Aggregator records remediation outcomes and derives effectiveness statistics.
// Each Aggregator owns its registry, so independent instances never share counters.
type Aggregator struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	// remediation_actions_total{action_type, success}
	actionsTotal *prometheus.CounterVec
	// remediation_action_duration_seconds{action_type}
	actionDuration *prometheus.HistogramVec
	// remediation_issues_prevented_total{issue_type}
	issuesPrevented *prometheus.CounterVec
	// remediation_false_positives_total{action_type}
	falsePositives *prometheus.CounterVec
	// last-write-wins per (resource_type, namespace)
	resourceUtilization *prometheus.GaugeVec
}

// NewAggregator creates an aggregator backed by a fresh registry.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Aggregator{
		registry: reg,
		logger:   logger,
		actionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of remediation actions taken",
			},
			[]string{"action_type", "success"},
		),
		actionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of remediation actions",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action_type"},
		),
		issuesPrevented: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "issues_prevented_total",
				Help:      "Total number of predicted issues acted upon",
			},
			[]string{"issue_type"},
		),
		falsePositives: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "false_positives_total",
				Help:      "Total number of actions marked as false positives",
			},
			[]string{"action_type"},
		),
		resourceUtilization: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resource_utilization_percent",
				Help:      "Last observed resource utilization percentage",
			},
			[]string{"resource_type", "namespace"},
		),
	}
}

// Registry exposes the underlying registry for promhttp and tests.
func (a *Aggregator) Registry() *prometheus.Registry {
	return a.registry
}

// RecordAction records one executed action.
func (a *Aggregator) RecordAction(actionType string, success bool, durationSeconds float64) {
	a.actionsTotal.WithLabelValues(actionType, strconv.FormatBool(success)).Inc()
	a.actionDuration.WithLabelValues(actionType).Observe(durationSeconds)
}

// RecordPrevention records that an issue of the given type was acted upon.
func (a *Aggregator) RecordPrevention(issueType string) {
	a.issuesPrevented.WithLabelValues(issueType).Inc()
}

// RecordFalsePositive records a false positive for an action type.
func (a *Aggregator) RecordFalsePositive(actionType string) {
	if actionType == "" {
		actionType = "unknown"
	}
	a.falsePositives.WithLabelValues(actionType).Inc()
}

// RecordResourceUtilization overwrites the utilization gauge for a namespace.
func (a *Aggregator) RecordResourceUtilization(resourceType, ns string, value float64) {
	a.resourceUtilization.WithLabelValues(resourceType, ns).Set(value)
}

// Snapshot is a point-in-time view derived from the aggregator's counters.
type Snapshot struct {
	Actions             ActionStats                   `json:"actions"`
	Preventions         CountStats                    `json:"preventions"`
	FalsePositives      CountStats                    `json:"false_positives"`
	ResourceUtilization map[string]map[string]float64 `json:"resource_utilization"`
}

// ActionStats summarises recorded actions.
type ActionStats struct {
	Total           float64              `json:"total"`
	SuccessRate     float64              `json:"success_rate"`
	AverageDuration float64              `json:"average_duration"`
	ByType          map[string]TypeStats `json:"by_type"`
}

// TypeStats summarises actions of one type.
type TypeStats struct {
	Succeeded       float64 `json:"succeeded"`
	Failed          float64 `json:"failed"`
	SuccessRate     float64 `json:"success_rate"`
	AverageDuration float64 `json:"average_duration"`
}

// CountStats is a total plus its per-label breakdown.
type CountStats struct {
	Total     float64            `json:"total"`
	Breakdown map[string]float64 `json:"breakdown"`
}

type durationAcc struct {
	sum   float64
	count uint64
}

// Snapshot reads the registry back and computes derived statistics.
func (a *Aggregator) Snapshot() Snapshot {
	snap := Snapshot{
		Actions:             ActionStats{ByType: make(map[string]TypeStats)},
		Preventions:         CountStats{Breakdown: make(map[string]float64)},
		FalsePositives:      CountStats{Breakdown: make(map[string]float64)},
		ResourceUtilization: make(map[string]map[string]float64),
	}

	families, err := a.registry.Gather()
	if err != nil {
		// Gather still returns whatever it could collect.
		a.logger.Warn("failed to gather remediation metrics", "error", err)
	}

	var succeeded float64
	var total durationAcc
	perType := make(map[string]durationAcc)

	for _, mf := range families {
		switch mf.GetName() {
		case actionsName:
			for _, m := range mf.GetMetric() {
				labels := labelMap(m)
				value := m.GetCounter().GetValue()
				stats := snap.Actions.ByType[labels["action_type"]]
				if labels["success"] == "true" {
					stats.Succeeded += value
					succeeded += value
				} else {
					stats.Failed += value
				}
				snap.Actions.ByType[labels["action_type"]] = stats
				snap.Actions.Total += value
			}
		case durationName:
			for _, m := range mf.GetMetric() {
				h := m.GetHistogram()
				actionType := labelMap(m)["action_type"]
				acc := perType[actionType]
				acc.sum += h.GetSampleSum()
				acc.count += h.GetSampleCount()
				perType[actionType] = acc
				total.sum += h.GetSampleSum()
				total.count += h.GetSampleCount()
			}
		case preventionsName:
			collectCounts(mf, "issue_type", &snap.Preventions)
		case falsePositivesName:
			collectCounts(mf, "action_type", &snap.FalsePositives)
		case utilizationName:
			for _, m := range mf.GetMetric() {
				labels := labelMap(m)
				ns := labels["namespace"]
				if snap.ResourceUtilization[ns] == nil {
					snap.ResourceUtilization[ns] = make(map[string]float64)
				}
				snap.ResourceUtilization[ns][labels["resource_type"]] = m.GetGauge().GetValue()
			}
		}
	}

	snap.Actions.SuccessRate = ratio(succeeded, snap.Actions.Total)
	snap.Actions.AverageDuration = total.average()
	for actionType, stats := range snap.Actions.ByType {
		stats.SuccessRate = ratio(stats.Succeeded, stats.Succeeded+stats.Failed)
		stats.AverageDuration = perType[actionType].average()
		snap.Actions.ByType[actionType] = stats
	}

	return snap
}

func collectCounts(mf *dto.MetricFamily, label string, out *CountStats) {
	for _, m := range mf.GetMetric() {
		value := m.GetCounter().GetValue()
		out.Breakdown[labelMap(m)[label]] += value
		out.Total += value
	}
}

func labelMap(m *dto.Metric) map[string]string {
	labels := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	return labels
}

func (d durationAcc) average() float64 {
	if d.count == 0 {
		return 0
	}
	return d.sum / float64(d.count)
}

func ratio(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole
}
