package convert

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
)

// ParseQuantity converts a K8s resource.Quantity to float64.
// For CPU quantities (e.g. "500m"), returns cores as float64.
// For memory quantities, returns bytes as float64.
func ParseQuantity(q resource.Quantity) float64 {
	return q.AsApproximateFloat64()
}

// lookupQuantity extracts one resource from a ResourceList.
func lookupQuantity(rl corev1.ResourceList, name corev1.ResourceName) (resource.Quantity, bool) {
	if rl == nil {
		return resource.Quantity{}, false
	}
	q, ok := rl[name]
	return q, ok
}

func copyLabels(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
