package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ErrNoData is returned when Prometheus has no samples for the requested node.
var ErrNoData = errors.New("metrics: no node utilization data")

// Utilization queries, all yielding a 0-1 fraction per node.
const (
	cpuQuery     = `1 - avg by (node) (rate(node_cpu_seconds_total{mode="idle"}[5m]))`
	memoryQuery  = `1 - (node_memory_MemAvailable_bytes / node_memory_MemTotal_bytes)`
	diskQuery    = `1 - max by (node) (node_filesystem_avail_bytes{mountpoint="/"} / node_filesystem_size_bytes{mountpoint="/"})`
	networkQuery = `sum by (node) (rate(node_network_receive_bytes_total{device!="lo"}[5m]) + rate(node_network_transmit_bytes_total{device!="lo"}[5m])) / sum by (node) (node_network_speed_bytes{device!="lo"})`
)

// NodeUsage holds utilisation fractions (0-1) for a node.
type NodeUsage struct {
	Node         string    `json:"node"`
	CPUUsage     float64   `json:"cpu_usage"`
	MemoryUsage  float64   `json:"memory_usage"`
	DiskUsage    float64   `json:"disk_usage"`
	NetworkUsage float64   `json:"network_usage"`
	Timestamp    time.Time `json:"timestamp"`
}

// Client wraps the Prometheus API for node utilisation queries.
type Client struct {
	api     v1.API
	logger  *slog.Logger
	timeout time.Duration
}

// ClientConfig holds configuration for the metrics client.
type ClientConfig struct {
	PrometheusURL string
	Timeout       time.Duration
	Logger        *slog.Logger
	// API is an optional Prometheus API client. If nil, one will be created from PrometheusURL.
	API v1.API
}

// NewClient creates a new Prometheus metrics client.
func NewClient(cfg ClientConfig) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var v1api v1.API
	if cfg.API != nil {
		v1api = cfg.API
	} else {
		if cfg.PrometheusURL == "" {
			return nil, fmt.Errorf("PrometheusURL is required")
		}

		client, err := api.NewClient(api.Config{
			Address: cfg.PrometheusURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus client: %w", err)
		}
		v1api = v1.NewAPI(client)
	}

	return &Client{
		api:     v1api,
		logger:  logger,
		timeout: cfg.Timeout,
	}, nil
}

// NodeUsage returns utilisation for one node, or the average across all nodes
// when node is empty.
func (c *Client) NodeUsage(ctx context.Context, node string) (NodeUsage, error) {
	all, err := c.AllNodeUsage(ctx)
	if err != nil {
		return NodeUsage{}, err
	}
	if len(all) == 0 {
		return NodeUsage{}, ErrNoData
	}

	if node != "" {
		for _, u := range all {
			if u.Node == node {
				return u, nil
			}
		}
		return NodeUsage{}, fmt.Errorf("%w: node %s", ErrNoData, node)
	}

	avg := NodeUsage{Timestamp: all[0].Timestamp}
	for _, u := range all {
		avg.CPUUsage += u.CPUUsage
		avg.MemoryUsage += u.MemoryUsage
		avg.DiskUsage += u.DiskUsage
		avg.NetworkUsage += u.NetworkUsage
	}
	n := float64(len(all))
	avg.CPUUsage /= n
	avg.MemoryUsage /= n
	avg.DiskUsage /= n
	avg.NetworkUsage /= n
	return avg, nil
}

// AllNodeUsage queries CPU, memory, disk and network utilisation for every node.
// CPU and memory are required; disk and network default to 0 when unavailable.
func (c *Client) AllNodeUsage(ctx context.Context) ([]NodeUsage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Debug("fetching node utilization from prometheus")

	cpu, err := c.queryNodeValues(ctx, cpuQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query CPU metrics: %w", err)
	}
	mem, err := c.queryNodeValues(ctx, memoryQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory metrics: %w", err)
	}
	disk, err := c.queryNodeValues(ctx, diskQuery)
	if err != nil {
		c.logger.Debug("disk utilization unavailable", "error", err)
		disk = map[string]float64{}
	}
	network, err := c.queryNodeValues(ctx, networkQuery)
	if err != nil {
		c.logger.Debug("network utilization unavailable", "error", err)
		network = map[string]float64{}
	}

	return mergeUsage(cpu, mem, disk, network), nil
}

func (c *Client) queryNodeValues(ctx context.Context, query string) (map[string]float64, error) {
	result, warnings, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		return nil, err
	}

	if len(warnings) > 0 {
		c.logger.Warn("prometheus query warnings", "warnings", warnings)
	}

	return c.extractNodeValues(result), nil
}

// extractNodeValues extracts node-keyed values from Prometheus query result.
func (c *Client) extractNodeValues(result model.Value) map[string]float64 {
	values := make(map[string]float64)

	vector, ok := result.(model.Vector)
	if !ok {
		c.logger.Warn("unexpected prometheus result type", "type", result.Type())
		return values
	}

	for _, sample := range vector {
		nodeLabel := string(sample.Metric["node"])
		if nodeLabel == "" {
			nodeLabel = string(sample.Metric["instance"])
		}
		if nodeLabel != "" {
			values[nodeLabel] = clampFraction(float64(sample.Value))
		}
	}

	return values
}

// mergeUsage joins per-query maps on the node name. Nodes must report CPU or memory.
func mergeUsage(cpu, mem, disk, network map[string]float64) []NodeUsage {
	now := time.Now()

	nodes := make(map[string]struct{})
	for n := range cpu {
		nodes[n] = struct{}{}
	}
	for n := range mem {
		nodes[n] = struct{}{}
	}

	result := make([]NodeUsage, 0, len(nodes))
	for node := range nodes {
		result = append(result, NodeUsage{
			Node:         node,
			CPUUsage:     cpu[node],
			MemoryUsage:  mem[node],
			DiskUsage:    disk[node],
			NetworkUsage: network[node],
			Timestamp:    now,
		})
	}
	return result
}

func clampFraction(v float64) float64 {
	switch {
	case v != v: // NaN from 0/0 network speed
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
