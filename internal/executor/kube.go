// Package executor implements remediation.Executor against a Kubernetes
// cluster, plus a simulated backend for demos and local runs.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/softcane/kube-remediator/internal/remediation"
)

// OptimizedAtAnnotation is stamped on deployments whose requests were changed.
const OptimizedAtAnnotation = "remediation.io/optimized-at"

// ErrNoContainers is returned when a deployment template has no containers.
var ErrNoContainers = errors.New("deployment has no containers")

// KubeConfig configures the Kubernetes executor.
type KubeConfig struct {
	// DryRun skips every mutation; reads still happen.
	DryRun bool

	// EvictionGracePeriodSeconds is passed to the Eviction API.
	EvictionGracePeriodSeconds int64

	// NodeMetrics backs Executor.NodeMetrics.
	NodeMetrics NodeMetricsSource

	Logger *slog.Logger
}

// KubeExecutor performs remediation actions with client-go.
type KubeExecutor struct {
	client      kubernetes.Interface
	nodeMetrics NodeMetricsSource
	logger      *slog.Logger
	config      KubeConfig
}

// NewKubeExecutor creates a Kubernetes-backed executor.
func NewKubeExecutor(client kubernetes.Interface, cfg KubeConfig) *KubeExecutor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &KubeExecutor{
		client:      client,
		nodeMetrics: cfg.NodeMetrics,
		logger:      logger,
		config:      cfg,
	}
}

// ScaleDeployment sets the deployment's replica count.
func (k *KubeExecutor) ScaleDeployment(ctx context.Context, namespace, name string, replicas int32) remediation.ActionOutcome {
	start := time.Now()
	action := remediation.ActionScaleDeployment

	dep, err := k.client.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return k.failed(action, fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err), start)
	}

	oldReplicas := int32(1)
	if dep.Spec.Replicas != nil {
		oldReplicas = *dep.Spec.Replicas
	}

	details := map[string]any{
		"namespace":    namespace,
		"deployment":   name,
		"old_replicas": oldReplicas,
		"new_replicas": replicas,
	}

	if k.config.DryRun {
		k.logger.Info("dry-run: would scale deployment",
			"namespace", namespace,
			"deployment", name,
			"old_replicas", oldReplicas,
			"new_replicas", replicas,
		)
		details["dry_run"] = true
		return k.succeeded(action, details, start)
	}

	dep.Spec.Replicas = &replicas
	if _, err := k.client.AppsV1().Deployments(namespace).Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return k.failed(action, fmt.Errorf("failed to update deployment %s/%s: %w", namespace, name, err), start)
	}

	k.logger.Info("scaled deployment",
		"namespace", namespace,
		"deployment", name,
		"old_replicas", oldReplicas,
		"new_replicas", replicas,
	)
	return k.succeeded(action, details, start)
}

// RelocatePod evicts the pod so its controller reschedules it elsewhere.
// Eviction respects PodDisruptionBudgets.
func (k *KubeExecutor) RelocatePod(ctx context.Context, namespace, podName string) remediation.ActionOutcome {
	start := time.Now()
	action := remediation.ActionRelocatePod

	pod, err := k.client.CoreV1().Pods(namespace).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		return k.failed(action, fmt.Errorf("failed to get pod %s/%s: %w", namespace, podName, err), start)
	}

	details := map[string]any{
		"namespace": namespace,
		"pod":       podName,
		"old_node":  pod.Spec.NodeName,
	}

	if err := k.evictPod(ctx, pod); err != nil {
		return k.failed(action, fmt.Errorf("failed to evict pod %s/%s: %w", namespace, podName, err), start)
	}
	if k.config.DryRun {
		details["dry_run"] = true
	}
	return k.succeeded(action, details, start)
}

func (k *KubeExecutor) evictPod(ctx context.Context, pod *corev1.Pod) error {
	if k.config.DryRun {
		k.logger.Info("dry-run: would evict pod",
			"pod", pod.Name,
			"namespace", pod.Namespace,
			"node", pod.Spec.NodeName,
		)
		return nil
	}

	grace := k.config.EvictionGracePeriodSeconds
	eviction := &policyv1.Eviction{
		ObjectMeta: metav1.ObjectMeta{
			Name:      pod.Name,
			Namespace: pod.Namespace,
		},
		DeleteOptions: &metav1.DeleteOptions{
			GracePeriodSeconds: &grace,
		},
	}

	err := k.client.CoreV1().Pods(pod.Namespace).EvictV1(ctx, eviction)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		if apierrors.IsTooManyRequests(err) {
			return fmt.Errorf("PDB prevents eviction: %w", err)
		}
		return err
	}

	k.logger.Info("evicted pod",
		"pod", pod.Name,
		"namespace", pod.Namespace,
		"node", pod.Spec.NodeName,
	)
	return nil
}

// OptimizeResources sets the given requests on every container of the
// deployment. Empty requests leave the current value in place.
func (k *KubeExecutor) OptimizeResources(ctx context.Context, namespace, name string, req remediation.ResourceRequests) remediation.ActionOutcome {
	start := time.Now()
	action := remediation.ActionOptimizeResources

	cpu, err := parseRequest(req.CPU)
	if err != nil {
		return k.failed(action, fmt.Errorf("invalid cpu request %q: %w", req.CPU, err), start)
	}
	memory, err := parseRequest(req.Memory)
	if err != nil {
		return k.failed(action, fmt.Errorf("invalid memory request %q: %w", req.Memory, err), start)
	}

	dep, err := k.client.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return k.failed(action, fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err), start)
	}
	containers := dep.Spec.Template.Spec.Containers
	if len(containers) == 0 {
		return k.failed(action, fmt.Errorf("%s/%s: %w", namespace, name, ErrNoContainers), start)
	}

	oldCPU := requestString(containers[0], corev1.ResourceCPU)
	oldMemory := requestString(containers[0], corev1.ResourceMemory)
	details := map[string]any{
		"namespace":  namespace,
		"deployment": name,
		"changes": map[string]any{
			"cpu":    map[string]string{"old": oldCPU, "new": valueOr(req.CPU, oldCPU)},
			"memory": map[string]string{"old": oldMemory, "new": valueOr(req.Memory, oldMemory)},
		},
	}

	if k.config.DryRun {
		k.logger.Info("dry-run: would optimize deployment resources",
			"namespace", namespace,
			"deployment", name,
			"cpu", req.CPU,
			"memory", req.Memory,
		)
		details["dry_run"] = true
		return k.succeeded(action, details, start)
	}

	applyRequests(dep, cpu, memory)
	if dep.Annotations == nil {
		dep.Annotations = make(map[string]string)
	}
	dep.Annotations[OptimizedAtAnnotation] = time.Now().UTC().Format(time.RFC3339)

	if _, err := k.client.AppsV1().Deployments(namespace).Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return k.failed(action, fmt.Errorf("failed to update deployment %s/%s: %w", namespace, name, err), start)
	}

	k.logger.Info("optimized deployment resources",
		"namespace", namespace,
		"deployment", name,
		"old_cpu", oldCPU,
		"old_memory", oldMemory,
		"cpu", req.CPU,
		"memory", req.Memory,
	)
	return k.succeeded(action, details, start)
}

// NodeMetrics reads utilisation from the configured source.
func (k *KubeExecutor) NodeMetrics(ctx context.Context, node string) (remediation.NodeMetrics, error) {
	if k.nodeMetrics == nil {
		return remediation.NodeMetrics{}, ErrNoNodeMetricsSource
	}
	return k.nodeMetrics.NodeMetrics(ctx, node)
}

// IsDryRun returns whether mutations are skipped.
func (k *KubeExecutor) IsDryRun() bool {
	return k.config.DryRun
}

func (k *KubeExecutor) succeeded(action remediation.ActionType, details map[string]any, start time.Time) remediation.ActionOutcome {
	return remediation.ActionOutcome{
		Action:   action,
		Status:   remediation.StatusSuccess,
		Details:  details,
		Duration: time.Since(start),
	}
}

func (k *KubeExecutor) failed(action remediation.ActionType, err error, start time.Time) remediation.ActionOutcome {
	k.logger.Error("remediation action failed", "action", action, "error", err)
	return remediation.ErrorOutcome(action, err, time.Since(start))
}

func parseRequest(s string) (*resource.Quantity, error) {
	if s == "" {
		return nil, nil
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func applyRequests(dep *appsv1.Deployment, cpu, memory *resource.Quantity) {
	containers := dep.Spec.Template.Spec.Containers
	for i := range containers {
		c := &containers[i]
		if c.Resources.Requests == nil {
			c.Resources.Requests = corev1.ResourceList{}
		}
		if cpu != nil {
			c.Resources.Requests[corev1.ResourceCPU] = cpu.DeepCopy()
		}
		if memory != nil {
			c.Resources.Requests[corev1.ResourceMemory] = memory.DeepCopy()
		}
	}
}

func requestString(c corev1.Container, name corev1.ResourceName) string {
	q, ok := c.Resources.Requests[name]
	if !ok {
		return ""
	}
	return q.String()
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

var _ remediation.Executor = (*KubeExecutor)(nil)
