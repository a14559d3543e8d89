package main

import (
	"fmt"
	"log/slog"
	"os"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// buildKubeConfig creates a Kubernetes REST config. An explicit path wins;
// otherwise in-cluster config is tried first, then $KUBECONFIG or the
// default ~/.kube/config.
func buildKubeConfig(path string) (*rest.Config, error) {
	if path == "" {
		cfg, err := rest.InClusterConfig()
		if err == nil {
			slog.Info("using in-cluster kubernetes config")
			return cfg, nil
		}
		path = os.Getenv("KUBECONFIG")
		if path == "" {
			path = clientcmd.RecommendedHomeFile
		}
	}

	cfg, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes config from %s: %w", path, err)
	}
	slog.Info("using kubeconfig file", "path", path)
	return cfg, nil
}
