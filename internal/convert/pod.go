package convert

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// scaledResources are the resources utilization can be computed for.
var scaledResources = []corev1.ResourceName{corev1.ResourceCPU, corev1.ResourceMemory}

// PodToInfo converts a Kubernetes Pod to a model.PodInfo.
// Pure function: no side effects, no clock, no external calls.
func PodToInfo(pod *corev1.Pod) model.PodInfo {
	info := model.PodInfo{
		Namespace: pod.Namespace,
		Name:      pod.Name,
		Labels:    copyLabels(pod.Labels),
		Phase:     string(pod.Status.Phase),
		Ready:     podReady(pod.Status.Conditions),
		Deleting:  pod.DeletionTimestamp != nil,
	}

	for _, res := range scaledResources {
		if total, ok := sumRequests(pod.Spec.Containers, res); ok {
			if info.Requests == nil {
				info.Requests = make(map[string]float64, len(scaledResources))
			}
			info.Requests[string(res)] = total
		}
	}
	return info
}

// sumRequests adds up one resource request over all containers. It reports
// false when any container omits the request, since utilization over a
// partial sum would be inflated.
func sumRequests(containers []corev1.Container, name corev1.ResourceName) (float64, bool) {
	if len(containers) == 0 {
		return 0, false
	}
	var total float64
	for _, c := range containers {
		q, ok := lookupQuantity(c.Resources.Requests, name)
		if !ok {
			return 0, false
		}
		total += ParseQuantity(q)
	}
	return total, total > 0
}

func podReady(conditions []corev1.PodCondition) bool {
	for _, c := range conditions {
		if c.Type == corev1.PodReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}
