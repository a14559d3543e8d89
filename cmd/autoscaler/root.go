package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	kubeconfig    string
	workloadsFile string
	logLevel      string
	logFormat     string
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "autoscaler",
		Short: "Horizontal autoscaler for Kubernetes workloads",
		Long: `autoscaler adjusts the replica count of Deployments and StatefulSets
from resource utilization and Prometheus metrics, following HPA-style
bounds, stabilization windows and rate limits declared in a workloads file.

Process settings come from AUTOSCALER_* environment variables; flags
override the matching variable.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(g.logLevel, g.logFormat)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&g.kubeconfig, "kubeconfig", "", "path to kubeconfig file (default: in-cluster, then $KUBECONFIG or ~/.kube/config)")
	f.StringVar(&g.workloadsFile, "workloads-file", "", "workload declarations file (overrides AUTOSCALER_WORKLOADS_FILE)")
	f.StringVar(&g.logLevel, "log-level", envOr("AUTOSCALER_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	f.StringVar(&g.logFormat, "log-format", envOr("AUTOSCALER_LOG_FORMAT", "json"), "log format: json, text")

	cmd.AddCommand(
		newRunCommand(g),
		newValidateCommand(g),
		newImportHPACommand(g),
		newVersionCommand(),
	)
	return cmd
}

func setupLogging(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q, want json or text", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
