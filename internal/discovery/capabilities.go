package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"k8s.io/client-go/discovery"
	"k8s.io/client-go/kubernetes"
)

// Well-known API groups used for capability detection.
const (
	apiGroupMetrics = "metrics.k8s.io"
	apiGroupApps    = "apps"
)

// Capabilities describes the cluster features the controller depends on.
// Results are computed once at startup.
type Capabilities struct {
	MetricsServer    bool // metrics.k8s.io pods can be listed
	ScaleDeployments bool // deployments can be watched and patched
	ScaleStatefulSet bool // statefulsets can be watched and patched
}

// Detect probes the cluster for the metrics API and for the permissions
// scaling needs. Missing features are not errors.
func Detect(ctx context.Context, client kubernetes.Interface, discoveryClient discovery.DiscoveryInterface) (*Capabilities, error) {
	caps := &Capabilities{}

	ok, err := CheckResource(ctx, client, discoveryClient, apiGroupMetrics, "v1beta1", "pods")
	if err != nil {
		return nil, err
	}
	caps.MetricsServer = ok

	if caps.ScaleDeployments, err = CanScale(ctx, client, apiGroupApps, "deployments"); err != nil {
		return nil, err
	}
	if caps.ScaleStatefulSet, err = CanScale(ctx, client, apiGroupApps, "statefulsets"); err != nil {
		return nil, err
	}

	slog.Info("cluster capabilities detected",
		"metrics_server", caps.MetricsServer,
		"scale_deployments", caps.ScaleDeployments,
		"scale_statefulsets", caps.ScaleStatefulSet,
	)
	return caps, nil
}

// HasAPIGroup checks whether a specific API group is registered with the cluster.
func HasAPIGroup(discoveryClient discovery.DiscoveryInterface, group string) (bool, error) {
	groups, err := discoveryClient.ServerGroups()
	if err != nil {
		return false, fmt.Errorf("discovery: failed to list server groups: %w", err)
	}

	for _, g := range groups.Groups {
		if g.Name == group {
			return true, nil
		}
	}
	return false, nil
}
