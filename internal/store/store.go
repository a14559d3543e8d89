package store

import "github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"

// Store holds the cluster objects the controller reads every cycle. Each
// TypedStore locks independently, so pod churn does not contend with
// workload lookups.
type Store struct {
	Workloads *TypedStore[model.WorkloadInfo]
	Pods      *TypedStore[model.PodInfo]
}

// New creates a Store with every typed store initialized.
func New() *Store {
	return &Store{
		Workloads: NewTypedStore[model.WorkloadInfo](),
		Pods:      NewTypedStore[model.PodInfo](),
	}
}

// WorkloadKey is the key a workload is stored under.
func WorkloadKey(ref model.WorkloadRef) string {
	return ref.String()
}

// PodsInNamespace returns the running pods of a namespace accepted by match.
func (s *Store) PodsInNamespace(namespace string, match func(labels map[string]string) bool) []model.PodInfo {
	return s.Pods.Filter(func(p model.PodInfo) bool {
		return p.Namespace == namespace && p.Running() && match(p.Labels)
	})
}

// ItemCounts returns the number of items per typed store.
func (s *Store) ItemCounts() map[string]int {
	return map[string]int{
		"workloads": s.Workloads.Len(),
		"pods":      s.Pods.Len(),
	}
}

// LastUpdatedTimes returns the UnixMilli timestamp of the last update for
// each typed store.
func (s *Store) LastUpdatedTimes() map[string]int64 {
	return map[string]int64{
		"workloads": s.Workloads.LastUpdated().UnixMilli(),
		"pods":      s.Pods.LastUpdated().UnixMilli(),
	}
}
