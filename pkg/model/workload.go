package model

import (
	"fmt"
	"strings"
)

// WorkloadKind is the kind of the scaled Kubernetes object.
type WorkloadKind string

// Supported workload kinds.
const (
	KindDeployment  WorkloadKind = "Deployment"
	KindStatefulSet WorkloadKind = "StatefulSet"
)

// WorkloadRef identifies one managed workload.
type WorkloadRef struct {
	Kind      WorkloadKind `json:"kind"`
	Namespace string       `json:"namespace"`
	Name      string       `json:"name"`
}

// String returns the workload identifier "kind/namespace/name".
func (r WorkloadRef) String() string {
	return strings.ToLower(string(r.Kind)) + "/" + r.Namespace + "/" + r.Name
}

// ParseWorkloadRef parses the identifier produced by WorkloadRef.String.
func ParseWorkloadRef(s string) (WorkloadRef, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return WorkloadRef{}, fmt.Errorf("invalid workload id %q, want kind/namespace/name", s)
	}
	kind, ok := ParseWorkloadKind(parts[0])
	if !ok {
		return WorkloadRef{}, fmt.Errorf("invalid workload id %q: unsupported kind %q", s, parts[0])
	}
	return WorkloadRef{Kind: kind, Namespace: parts[1], Name: parts[2]}, nil
}

// ParseWorkloadKind matches a kind name case-insensitively.
func ParseWorkloadKind(s string) (WorkloadKind, bool) {
	switch strings.ToLower(s) {
	case "deployment":
		return KindDeployment, true
	case "statefulset":
		return KindStatefulSet, true
	}
	return "", false
}

// WorkloadSpec is the validated declaration of one managed workload.
type WorkloadSpec struct {
	Ref       WorkloadRef   `json:"ref"`
	Bounds    ScalingBounds `json:"bounds"`
	Metrics   []MetricSpec  `json:"metrics"`
	Policy    ScalingPolicy `json:"policy"`
	Tolerance float64       `json:"tolerance"`
}

// WorkloadInfo is the observed state of a scaled workload.
type WorkloadInfo struct {
	Ref           WorkloadRef       `json:"ref"`
	UID           string            `json:"uid"`
	Replicas      int32             `json:"replicas"`
	ReadyReplicas int32             `json:"ready_replicas"`
	Selector      string            `json:"selector"`
	Labels        map[string]string `json:"labels"`
	Generation    int64             `json:"generation"`
}
