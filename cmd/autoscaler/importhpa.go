package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/yaml"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/config"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/convert"
)

type importHPAFlags struct {
	namespace     string
	allNamespaces bool
	output        string
}

func newImportHPACommand(g *globalFlags) *cobra.Command {
	f := &importHPAFlags{}

	cmd := &cobra.Command{
		Use:   "import-hpa",
		Short: "Translate existing HorizontalPodAutoscalers into a workloads file",
		Long: `Reads autoscaling/v2 HorizontalPodAutoscalers from the cluster and prints
the equivalent workload declarations as YAML. Settings without an
equivalent are listed on stderr; declarations that would not validate are
left out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			restCfg, err := buildKubeConfig(g.kubeconfig)
			if err != nil {
				return err
			}
			client, err := kubernetes.NewForConfig(restCfg)
			if err != nil {
				return fmt.Errorf("create kubernetes client: %w", err)
			}

			ns := f.namespace
			if f.allNamespaces {
				ns = metav1.NamespaceAll
			}
			file, err := importHPAs(cmd.Context(), client, ns, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(file)
			if err != nil {
				return fmt.Errorf("encode workloads: %w", err)
			}
			if f.output == "" || f.output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(f.output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", f.output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d workloads to %s\n", len(file.Workloads), f.output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.namespace, "namespace", "n", metav1.NamespaceDefault, "namespace to read HPAs from")
	cmd.Flags().BoolVarP(&f.allNamespaces, "all-namespaces", "A", false, "read HPAs from every namespace")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

// importHPAs converts every HPA in namespace. Warnings go to warn.
func importHPAs(ctx context.Context, client kubernetes.Interface, namespace string, warn io.Writer) (config.WorkloadsFile, error) {
	var file config.WorkloadsFile

	list, err := client.AutoscalingV2().HorizontalPodAutoscalers(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return file, fmt.Errorf("list horizontalpodautoscalers: %w", err)
	}

	for i := range list.Items {
		hpa := &list.Items[i]
		conv := convert.HPAToDecl(hpa)
		for _, s := range conv.Skipped {
			fmt.Fprintf(warn, "warning: %s\n", s)
		}
		if _, err := conv.Decl.ToSpec(); err != nil {
			fmt.Fprintf(warn, "skipping %s/%s: %v\n", hpa.Namespace, hpa.Name, err)
			continue
		}
		file.Workloads = append(file.Workloads, conv.Decl)
	}
	sort.Slice(file.Workloads, func(i, j int) bool {
		a, b := file.Workloads[i], file.Workloads[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.Name < b.Name
	})
	return file, nil
}
