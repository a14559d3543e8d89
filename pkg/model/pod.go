package model

// PodInfo is the subset of a pod the resource metric source needs to turn
// usage into utilization.
type PodInfo struct {
	Namespace string            `json:"namespace"`
	Name      string            `json:"name"`
	Labels    map[string]string `json:"labels,omitempty"`
	Phase     string            `json:"phase"`
	Ready     bool              `json:"ready"`
	Deleting  bool              `json:"deleting,omitempty"`

	// Requests sums container requests by resource name. CPU is in cores,
	// memory in bytes. A resource is absent when any container omits it.
	Requests map[string]float64 `json:"requests,omitempty"`
}

// Key returns the "namespace/name" store key of the pod.
func (p PodInfo) Key() string {
	return p.Namespace + "/" + p.Name
}

// Running reports whether the pod can contribute samples.
func (p PodInfo) Running() bool {
	return p.Phase == "Running" && !p.Deleting
}
