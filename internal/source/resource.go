package source

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsv1beta1client "k8s.io/metrics/pkg/client/clientset/versioned/typed/metrics/v1beta1"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/convert"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/observability"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// MetricsAPI abstracts the metrics-server API for testability.
type MetricsAPI interface {
	ListPodMetrics(ctx context.Context, namespace, selector string) ([]metricsv1beta1.PodMetrics, error)
}

// metricsAPIClient wraps the real metrics client to implement MetricsAPI.
type metricsAPIClient struct {
	client metricsv1beta1client.MetricsV1beta1Interface
}

// NewMetricsAPI wraps a metrics-server client.
func NewMetricsAPI(client metricsv1beta1client.MetricsV1beta1Interface) MetricsAPI {
	return &metricsAPIClient{client: client}
}

func (c *metricsAPIClient) ListPodMetrics(ctx context.Context, namespace, selector string) ([]metricsv1beta1.PodMetrics, error) {
	list, err := c.client.PodMetricses(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// PodLister resolves a workload to its selector and running pods.
type PodLister interface {
	Workload(ref model.WorkloadRef) (model.WorkloadInfo, bool)
	Pods(ref model.WorkloadRef) ([]model.PodInfo, error)
}

// ResourceSource turns metrics-server usage into per-pod utilization, in
// percent of the pod's request.
type ResourceSource struct {
	api     MetricsAPI
	pods    PodLister
	metrics *observability.Metrics
}

// NewResourceSource creates a ResourceSource.
func NewResourceSource(api MetricsAPI, pods PodLister, m *observability.Metrics) *ResourceSource {
	return &ResourceSource{api: api, pods: pods, metrics: m}
}

// Sample returns the utilization of every running pod that requests the
// resource and has a usage report. Pods without a request are skipped.
func (s *ResourceSource) Sample(ctx context.Context, ref model.WorkloadRef, spec model.MetricSpec) (samples map[string]model.MetricSample, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "metrics-server", start, err) }()

	res := corev1.ResourceName(spec.Name)
	if res != corev1.ResourceCPU && res != corev1.ResourceMemory {
		return nil, fmt.Errorf("unsupported resource %q", spec.Name)
	}

	info, ok := s.pods.Workload(ref)
	if !ok {
		return nil, fmt.Errorf("workload %s not found", ref)
	}
	pods, err := s.pods.Pods(ref)
	if err != nil {
		return nil, err
	}
	requests := make(map[string]float64, len(pods))
	for _, p := range pods {
		if r, ok := p.Requests[spec.Name]; ok {
			requests[p.Name] = r
		}
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("no running pod of %s requests %s", ref, spec.Name)
	}

	usage, err := s.api.ListPodMetrics(ctx, ref.Namespace, info.Selector)
	if err != nil {
		return nil, fmt.Errorf("list pod metrics: %w", err)
	}

	samples = make(map[string]model.MetricSample, len(usage))
	for _, pm := range usage {
		request, ok := requests[pm.Name]
		if !ok {
			continue
		}
		var used float64
		for _, c := range pm.Containers {
			used += convert.ParseQuantity(c.Usage[res])
		}
		samples[pm.Name] = model.MetricSample{
			InstanceID: pm.Name,
			Value:      used / request * 100,
			Timestamp:  pm.Timestamp.Time,
		}
	}
	return samples, nil
}
