package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/config"
)

func newValidateCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the process settings and the workload declarations",
		Long: `Loads the AUTOSCALER_* settings and the workloads file exactly as
'run' would and reports every problem. Exits non-zero when the settings
are invalid or any workload is rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig(g)
			if err := cfg.Validate(); err != nil {
				return err
			}

			set, err := config.LoadWorkloads(cfg.WorkloadsFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, spec := range set.Specs {
				fmt.Fprintf(out, "ok       %s (%d metrics, replicas %d-%d)\n",
					spec.Ref, len(spec.Metrics), spec.Bounds.MinReplicas, spec.Bounds.MaxReplicas)
			}
			for _, rej := range set.Rejected {
				fmt.Fprintf(out, "rejected %v\n", rej)
			}
			if err := set.Errors(); err != nil {
				return errors.New("workloads file has rejected declarations")
			}
			fmt.Fprintf(out, "%d workloads valid\n", len(set.Specs))
			return nil
		},
	}
}

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig(g *globalFlags) config.Config {
	cfg := config.Load()
	if g.workloadsFile != "" {
		cfg.WorkloadsFile = g.workloadsFile
	}
	cfg.Version = version
	return cfg
}
