package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/config"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/controller"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/discovery"
	autoscalererrors "github.com/kubeadapt/kubeadapt-autoscaler/internal/errors"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/health"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/observability"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/source"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/store"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/transport"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/workload"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

func newRunCommand(g *globalFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the autoscaling controller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig(g)
			if cmd.Flags().Changed("dry-run") {
				cfg.DryRun = dryRun
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()
			return run(ctx, cfg, g.kubeconfig)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "decide but never patch workloads (overrides AUTOSCALER_DRY_RUN)")
	return cmd
}

func run(ctx context.Context, cfg config.Config, kubeconfig string) error {
	slog.Info("kubeadapt-autoscaler starting",
		"version", cfg.Version,
		"controller_id", cfg.ControllerID,
		"workloads_file", cfg.WorkloadsFile,
		"sync_period", cfg.SyncPeriod,
		"dry_run", cfg.DryRun,
	)

	// 1. Shared infrastructure.
	metrics := observability.NewMetrics()
	errCollector := autoscalererrors.NewErrorCollector(autoscalererrors.RealClock{})

	set, err := config.LoadWorkloads(cfg.WorkloadsFile)
	if err != nil {
		return err
	}
	reportRejected(errCollector, set)

	// 2. Kubernetes clients and capabilities.
	restCfg, err := buildKubeConfig(kubeconfig)
	if err != nil {
		return err
	}
	kubeClient, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return fmt.Errorf("create kubernetes client: %w", err)
	}
	metricsClient, err := metricsclientset.NewForConfig(restCfg)
	if err != nil {
		return fmt.Errorf("create metrics client: %w", err)
	}

	caps, err := discovery.Detect(ctx, kubeClient, kubeClient.Discovery())
	if err != nil {
		return fmt.Errorf("detect cluster capabilities: %w", err)
	}
	if !cfg.DryRun && !caps.ScaleDeployments && !caps.ScaleStatefulSet {
		slog.Warn("no permission to patch deployments or statefulsets, every replica change will fail")
	}

	// 3. Workload tracking.
	st := store.New()
	tracker := workload.NewTracker(kubeClient, st, metrics, workload.TrackerOptions{
		Namespaces:   cfg.Namespaces,
		ResyncPeriod: cfg.InformerResyncPeriod,
		WatchPods:    caps.MetricsServer,
	})
	if err := tracker.Start(ctx); err != nil {
		return err
	}
	defer tracker.Stop()

	syncCtx, cancelSync := context.WithTimeout(ctx, cfg.InformerSyncTimeout)
	err = tracker.WaitForSync(syncCtx)
	cancelSync()
	if err != nil {
		errCollector.Report(autoscalererrors.ControllerError{
			Code:      autoscalererrors.ErrCodeInformerSyncTimeout,
			Message:   fmt.Sprintf("informer caches not synced within %s", cfg.InformerSyncTimeout),
			Component: "workload",
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		})
		return err
	}

	// 4. Metric sources.
	checks := []health.Check{{Name: "informers", Fn: func(context.Context) error {
		if !tracker.Synced() {
			return workload.ErrNotSynced
		}
		return nil
	}}}
	router := source.NewRouter()
	if caps.MetricsServer {
		api := source.NewMetricsAPI(metricsClient.MetricsV1beta1())
		router.Handle(model.MetricKindResource, source.NewResourceSource(api, tracker, metrics))
	} else {
		slog.Warn("metrics.k8s.io not available, resource metrics cannot be evaluated")
	}
	if cfg.PrometheusURL != "" {
		prom, err := source.NewPrometheusSource(cfg.PrometheusURL, nil,
			source.WithTimeout(cfg.PrometheusTimeout),
			source.WithMetrics(metrics),
		)
		if err != nil {
			return err
		}
		router.Handle(model.MetricKindCustom, prom)
		checks = append(checks, health.Check{Name: "prometheus", Fn: prom.Ping})
	}

	// 5. Mutator and event sinks.
	var mutator controller.Mutator = workload.NewScaler(kubeClient)
	if cfg.DryRun {
		mutator = workload.NewDryRun()
	}

	recorder := observability.NewRecorder(metrics, errCollector)
	sinks := []controller.Sink{recorder}
	var shipper *transport.Shipper
	if cfg.AuditEnabled() {
		client := transport.NewClient(&cfg, metrics, errCollector)
		shipper = transport.NewShipper(client, transport.ShipperOptions{
			ControllerID:      cfg.ControllerID,
			FlushInterval:     cfg.AuditFlushInterval,
			BufferSize:        cfg.AuditBufferSize,
			FinalFlushTimeout: cfg.AuditRequestTimeout,
		}, metrics)
		sinks = append(sinks, shipper)
	}

	// 6. Reconcilers.
	mgr := controller.NewManager(controller.Dependencies{
		Inspector: tracker,
		Source:    router,
		Mutator:   mutator,
		Sink:      observability.NewFanout(sinks...),
	}, controller.Options{
		Period:      cfg.SyncPeriod,
		Freshness:   cfg.MetricFreshness,
		Concurrency: cfg.MetricConcurrency,
		OnPhase:     metrics.SetPhase,
	})
	for _, spec := range set.Specs {
		if err := mgr.Register(spec); err != nil {
			return err
		}
	}
	metrics.ManagedWorkloads.Set(float64(mgr.Len()))

	healthSrv := health.NewServer(health.Options{
		Port:        cfg.HealthPort,
		EnableDebug: cfg.DebugEndpoints,
		Metrics:     metrics,
		Checks:      checks,
		Workloads:   mgr,
		Errors:      errCollector,
		Store:       st,
	})

	// 7. Run until signalled. The shipper outlives the reconcilers so their
	// last events are still uploaded.
	g, gctx := errgroup.WithContext(ctx)
	shipCtx, stopShipper := context.WithCancel(context.WithoutCancel(ctx))
	defer stopShipper()

	memMon := observability.NewMemoryMonitor(0.8, 30*time.Second, debug.FreeOSMemory, metrics)

	g.Go(func() error { return healthSrv.Run(gctx) })
	g.Go(func() error { return memMon.Run(gctx) })
	g.Go(func() error {
		defer stopShipper()
		if err := mgr.StartAll(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		mgr.StopAll()
		return nil
	})
	if shipper != nil {
		g.Go(func() error { return shipper.Run(shipCtx) })
	}

	if cfg.WatchConfig {
		err := config.WatchWorkloads(gctx, cfg.WorkloadsFile, func(set *config.WorkloadSet) {
			reportRejected(errCollector, set)
			res := mgr.Apply(set.Specs)
			for _, id := range res.Removed {
				recorder.Forget(id)
			}
			metrics.ManagedWorkloads.Set(float64(mgr.Len()))
			result := "success"
			if len(set.Rejected) > 0 {
				result = "partial"
			}
			metrics.ConfigReloads.WithLabelValues(result).Inc()
		})
		if err != nil {
			slog.Error("workloads file not watched, declarations stay fixed", "error", err)
		}
	}

	err = g.Wait()
	slog.Info("kubeadapt-autoscaler stopped")
	return err
}

// reportRejected logs every rejected declaration and keeps one
// INVALID_CONFIGURATION error active while any exist.
func reportRejected(errs *autoscalererrors.ErrorCollector, set *config.WorkloadSet) {
	for _, rej := range set.Rejected {
		slog.Warn("workload declaration rejected", "error", rej)
	}
	if err := set.Errors(); err != nil {
		errs.Report(autoscalererrors.ControllerError{
			Code:      autoscalererrors.ErrCodeInvalidConfiguration,
			Message:   err.Error(),
			Component: "workloads",
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		})
		return
	}
	errs.Resolve(autoscalererrors.ErrCodeInvalidConfiguration, "workloads")
}
