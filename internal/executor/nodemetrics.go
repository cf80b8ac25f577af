package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/softcane/kube-remediator/internal/metrics"
	"github.com/softcane/kube-remediator/internal/remediation"
	"github.com/softcane/kube-remediator/internal/units"
)

var (
	// ErrNoNodeMetricsSource is returned when the executor has no metrics backend.
	ErrNoNodeMetricsSource = errors.New("no node metrics source configured")

	// ErrNoNodes is returned when no node reports usable metrics.
	ErrNoNodes = errors.New("no nodes with metrics")
)

// NodeMetricsSource reads node utilisation as fractions in [0, 1].
type NodeMetricsSource interface {
	NodeMetrics(ctx context.Context, node string) (remediation.NodeMetrics, error)
}

// MetricsServerSource reads usage from metrics.k8s.io and divides it by the
// node's allocatable capacity. Disk and network are not reported and stay 0.
type MetricsServerSource struct {
	metrics metricsclient.Interface
	k8s     kubernetes.Interface
	logger  *slog.Logger
}

// NewMetricsServerSource creates a metrics-server backed source.
func NewMetricsServerSource(metrics metricsclient.Interface, k8s kubernetes.Interface, logger *slog.Logger) *MetricsServerSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsServerSource{metrics: metrics, k8s: k8s, logger: logger}
}

// NodeMetrics returns utilisation for node, or the average over all nodes when
// node is empty.
func (s *MetricsServerSource) NodeMetrics(ctx context.Context, node string) (remediation.NodeMetrics, error) {
	if node != "" {
		nm, err := s.metrics.MetricsV1beta1().NodeMetricses().Get(ctx, node, metav1.GetOptions{})
		if err != nil {
			return remediation.NodeMetrics{}, fmt.Errorf("failed to get metrics for node %s: %w", node, err)
		}
		n, err := s.k8s.CoreV1().Nodes().Get(ctx, node, metav1.GetOptions{})
		if err != nil {
			return remediation.NodeMetrics{}, fmt.Errorf("failed to get node %s: %w", node, err)
		}
		return utilization(nm, n), nil
	}

	list, err := s.metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return remediation.NodeMetrics{}, fmt.Errorf("failed to list node metrics: %w", err)
	}
	nodes, err := s.k8s.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return remediation.NodeMetrics{}, fmt.Errorf("failed to list nodes: %w", err)
	}
	byName := make(map[string]*corev1.Node, len(nodes.Items))
	for i := range nodes.Items {
		byName[nodes.Items[i].Name] = &nodes.Items[i]
	}

	var sum remediation.NodeMetrics
	var count int
	for i := range list.Items {
		nm := &list.Items[i]
		n, ok := byName[nm.Name]
		if !ok {
			s.logger.Debug("node metrics without node object", "node", nm.Name)
			continue
		}
		u := utilization(nm, n)
		sum.CPUUsage += u.CPUUsage
		sum.MemoryUsage += u.MemoryUsage
		count++
	}
	if count == 0 {
		return remediation.NodeMetrics{}, ErrNoNodes
	}
	return remediation.NodeMetrics{
		CPUUsage:    sum.CPUUsage / float64(count),
		MemoryUsage: sum.MemoryUsage / float64(count),
	}, nil
}

// ListNodeMetrics returns per-node utilisation for every node metrics-server knows.
func (s *MetricsServerSource) ListNodeMetrics(ctx context.Context) (map[string]remediation.NodeMetrics, error) {
	list, err := s.metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list node metrics: %w", err)
	}
	out := make(map[string]remediation.NodeMetrics, len(list.Items))
	for i := range list.Items {
		nm := &list.Items[i]
		n, err := s.k8s.CoreV1().Nodes().Get(ctx, nm.Name, metav1.GetOptions{})
		if err != nil {
			s.logger.Warn("skipping node metrics", "node", nm.Name, "error", err)
			continue
		}
		out[nm.Name] = utilization(nm, n)
	}
	return out, nil
}

func utilization(nm *metricsv1beta1.NodeMetrics, n *corev1.Node) remediation.NodeMetrics {
	cpuUsed := cpuCores(nm.Usage[corev1.ResourceCPU])
	memUsed := memoryBytes(nm.Usage[corev1.ResourceMemory])

	capacity := n.Status.Allocatable
	if len(capacity) == 0 {
		capacity = n.Status.Capacity
	}
	cpuTotal := cpuCores(capacity[corev1.ResourceCPU])
	memTotal := memoryBytes(capacity[corev1.ResourceMemory])

	return remediation.NodeMetrics{
		CPUUsage:    fraction(cpuUsed, cpuTotal),
		MemoryUsage: fraction(memUsed, memTotal),
	}
}

// cpuCores prefers the unit parser and falls back to the quantity itself for
// suffixes outside the n/u/m family.
func cpuCores(q resource.Quantity) float64 {
	if v, err := units.ParseCPUStrict(q.String()); err == nil {
		return v
	}
	return q.AsApproximateFloat64()
}

func memoryBytes(q resource.Quantity) float64 {
	if v, err := units.ParseMemoryStrict(q.String()); err == nil {
		return v
	}
	return q.AsApproximateFloat64()
}

func fraction(used, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return clamp01(used / total)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NodeUsageReader is satisfied by metrics.Client.
type NodeUsageReader interface {
	NodeUsage(ctx context.Context, node string) (metrics.NodeUsage, error)
}

// PrometheusSource reads node utilisation from Prometheus.
type PrometheusSource struct {
	reader NodeUsageReader
}

// NewPrometheusSource wraps a Prometheus node usage reader.
func NewPrometheusSource(reader NodeUsageReader) *PrometheusSource {
	return &PrometheusSource{reader: reader}
}

// NodeMetrics implements NodeMetricsSource.
func (p *PrometheusSource) NodeMetrics(ctx context.Context, node string) (remediation.NodeMetrics, error) {
	u, err := p.reader.NodeUsage(ctx, node)
	if err != nil {
		return remediation.NodeMetrics{}, err
	}
	return remediation.NodeMetrics{
		CPUUsage:     u.CPUUsage,
		MemoryUsage:  u.MemoryUsage,
		DiskUsage:    u.DiskUsage,
		NetworkUsage: u.NetworkUsage,
	}, nil
}

var (
	_ NodeMetricsSource = (*MetricsServerSource)(nil)
	_ NodeMetricsSource = (*PrometheusSource)(nil)
	_ NodeUsageReader   = (*metrics.Client)(nil)
)
