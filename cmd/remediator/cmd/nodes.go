package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/softcane/kube-remediator/internal/config"
	"github.com/softcane/kube-remediator/internal/executor"
	"github.com/softcane/kube-remediator/internal/metrics"
)

var (
	nodesSource   string
	prometheusURL string
	kubeconfig    string
	outputFormat  string
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Show node utilisation as the engine sees it",
	Long: `Fetch CPU, memory, disk and network utilisation for every node.

These are the same readings performance_degradation predictions are
checked against.

Example:
  remediator nodes
  remediator nodes --source prometheus --prometheus-url http://prometheus:9090 --output json`,
	RunE: runNodes,
}

func init() {
	rootCmd.AddCommand(nodesCmd)

	nodesCmd.Flags().StringVar(&nodesSource, "source", config.NodeMetricsServer,
		"Metrics source: metrics-server, prometheus")
	nodesCmd.Flags().StringVar(&prometheusURL, "prometheus-url", "http://localhost:9090",
		"URL of the Prometheus server")
	nodesCmd.Flags().StringVar(&kubeconfig, "kubeconfig", "",
		"Path to kubeconfig (in-cluster config is tried first)")
	nodesCmd.Flags().StringVar(&outputFormat, "output", "table",
		"Output format: table, json")
}

func runNodes(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var usage []metrics.NodeUsage
	switch nodesSource {
	case config.NodeMetricsPrometheus:
		client, err := metrics.NewClient(metrics.ClientConfig{
			PrometheusURL: prometheusURL,
			Logger:        slog.Default(),
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics client: %w", err)
		}
		usage, err = client.AllNodeUsage(ctx)
		if err != nil {
			return fmt.Errorf("failed to get node usage: %w", err)
		}
	case config.NodeMetricsServer:
		restCfg, err := restConfig(kubeconfig)
		if err != nil {
			return err
		}
		k8sClient, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return fmt.Errorf("failed to create kubernetes client: %w", err)
		}
		mc, err := metricsclient.NewForConfig(restCfg)
		if err != nil {
			return fmt.Errorf("failed to create metrics client: %w", err)
		}
		byNode, err := executor.NewMetricsServerSource(mc, k8sClient, slog.Default()).ListNodeMetrics(ctx)
		if err != nil {
			return err
		}
		for name, m := range byNode {
			usage = append(usage, metrics.NodeUsage{
				Node:         name,
				CPUUsage:     m.CPUUsage,
				MemoryUsage:  m.MemoryUsage,
				DiskUsage:    m.DiskUsage,
				NetworkUsage: m.NetworkUsage,
			})
		}
	default:
		return fmt.Errorf("unknown source %q", nodesSource)
	}

	sort.Slice(usage, func(i, j int) bool { return usage[i].Node < usage[j].Node })

	switch outputFormat {
	case "json":
		return outputJSON(os.Stdout, usage)
	default:
		return outputTable(os.Stdout, usage)
	}
}

func outputJSON(w io.Writer, usage []metrics.NodeUsage) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(usage)
}

func outputTable(w io.Writer, usage []metrics.NodeUsage) error {
	fmt.Fprintf(w, "%-30s %-10s %-10s %-10s %-10s\n",
		"NODE", "CPU%", "MEM%", "DISK%", "NET%")
	fmt.Fprintln(w, "----------------------------------------------------------------------")

	for _, u := range usage {
		fmt.Fprintf(w, "%-30s %-10.1f %-10.1f %-10.1f %-10.1f\n",
			u.Node, u.CPUUsage*100, u.MemoryUsage*100, u.DiskUsage*100, u.NetworkUsage*100)
	}
	return nil
}
