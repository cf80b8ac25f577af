package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/softcane/kube-remediator/internal/api"
	"github.com/softcane/kube-remediator/internal/config"
	"github.com/softcane/kube-remediator/internal/executor"
	"github.com/softcane/kube-remediator/internal/journal"
	"github.com/softcane/kube-remediator/internal/metrics"
	"github.com/softcane/kube-remediator/internal/remediation"
)

var (
	listenAddr   string
	executorMode string
	threshold    float64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the remediation API server",
	Long: `Serve starts the HTTP API that accepts predictions and runs remediation.

Endpoints:
  GET  /health
  POST /remediate
  GET  /actions
  POST /actions/{id}/false-positive?action_type=...
  GET  /effectiveness
  GET  /threshold, PUT /threshold
  GET  /metrics

Use --executor=kubernetes with --dry-run=false to mutate a real cluster.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "listen", "",
		"Address to listen on (overrides server.address)")
	serveCmd.Flags().StringVar(&executorMode, "executor", "",
		"Executor backend: simulated or kubernetes (overrides executor.mode)")
	serveCmd.Flags().Float64Var(&threshold, "threshold", 0,
		"Prediction confidence threshold in [0,1] (overrides engine.predictionThreshold)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeOverrides(cmd, cfg); err != nil {
		return err
	}

	slog.Info("starting remediation agent",
		"dry_run", IsDryRun(),
		"executor", cfg.Executor.Mode,
		"threshold", cfg.Engine.Threshold(),
		"address", cfg.Server.Address,
	)

	exec, err := buildExecutor(cfg)
	if err != nil {
		return err
	}

	var j remediation.Journal
	if cfg.Journal.Enabled {
		rj, err := journal.Open(ctx, journal.Options{
			Address:  cfg.Journal.Address,
			Password: cfg.Journal.Password,
			DB:       cfg.Journal.DB,
			Key:      cfg.Journal.Key,
			Logger:   slog.Default(),
		})
		if err != nil {
			return fmt.Errorf("failed to open action journal: %w", err)
		}
		defer rj.Close()
		j = rj
	}

	engine, err := remediation.New(engineConfig(cfg, exec, j))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	srv, err := api.NewServer(api.Config{
		Engine:   engine,
		Gatherer: engine.Store().Aggregator().Registry(),
		Logger:   slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	return srv.ListenAndServe(ctx, cfg.Server.Address, cfg.Server.ShutdownTimeout())
}

// applyServeOverrides copies explicitly set flags onto cfg and revalidates.
func applyServeOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Server.Address = listenAddr
	}
	if flags.Changed("executor") {
		cfg.Executor.Mode = executorMode
	}
	if flags.Changed("threshold") {
		t := threshold
		cfg.Engine.PredictionThreshold = &t
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func engineConfig(cfg *config.Config, exec remediation.Executor, j remediation.Journal) remediation.Config {
	return remediation.Config{
		Executor:           exec,
		Journal:            j,
		Logger:             slog.Default(),
		Threshold:          cfg.Engine.Threshold(),
		ScaleTrigger:       cfg.Engine.ScaleTrigger,
		DegradationTrigger: cfg.Engine.DegradationTrigger,
		Defaults: remediation.PlanDefaults{
			CPU:              cfg.Engine.DefaultCPU,
			Memory:           cfg.Engine.DefaultMemory,
			CPUAdjustment:    cfg.Engine.DefaultCPUAdjustment,
			MemoryAdjustment: cfg.Engine.DefaultMemoryAdjustment,
		},
	}
}

func buildExecutor(cfg *config.Config) (remediation.Executor, error) {
	if cfg.Executor.Mode == config.ExecutorSimulated {
		return executor.NewSimulatedExecutor(executor.SimulatedConfig{Logger: slog.Default()}), nil
	}

	restCfg, err := restConfig(cfg.Executor.Kubeconfig)
	if err != nil {
		return nil, err
	}
	k8sClient, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	source, err := buildNodeMetricsSource(cfg, restCfg, k8sClient)
	if err != nil {
		return nil, err
	}

	return executor.NewKubeExecutor(k8sClient, executor.KubeConfig{
		DryRun:                     IsDryRun(),
		EvictionGracePeriodSeconds: cfg.Executor.EvictionGracePeriodSeconds,
		NodeMetrics:                source,
		Logger:                     slog.Default(),
	}), nil
}

func buildNodeMetricsSource(cfg *config.Config, restCfg *rest.Config, k8sClient kubernetes.Interface) (executor.NodeMetricsSource, error) {
	switch cfg.Executor.NodeMetricsSource {
	case config.NodeMetricsPrometheus:
		promClient, err := metrics.NewClient(metrics.ClientConfig{
			PrometheusURL: cfg.Prometheus.URL,
			Timeout:       cfg.Prometheus.Timeout(),
			Logger:        slog.Default(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize prometheus client: %w", err)
		}
		return executor.NewPrometheusSource(promClient), nil
	default:
		mc, err := metricsclient.NewForConfig(restCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics client: %w", err)
		}
		return executor.NewMetricsServerSource(mc, k8sClient, slog.Default()), nil
	}
}
