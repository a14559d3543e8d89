package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"

	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// FieldManager identifies the controller's writes in managedFields.
const FieldManager = "kubeadapt-autoscaler"

type replicasPatch struct {
	Spec struct {
		Replicas int32 `json:"replicas"`
	} `json:"spec"`
}

// Scaler changes spec.replicas with a merge patch. It implements
// controller.Mutator.
type Scaler struct {
	client kubernetes.Interface
}

// NewScaler creates a Scaler.
func NewScaler(client kubernetes.Interface) *Scaler {
	return &Scaler{client: client}
}

// SetReplicas patches the replica count of the workload.
func (s *Scaler) SetReplicas(ctx context.Context, ref model.WorkloadRef, replicas int32) error {
	var p replicasPatch
	p.Spec.Replicas = replicas
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}

	opts := metav1.PatchOptions{FieldManager: FieldManager}
	switch ref.Kind {
	case model.KindDeployment:
		_, err = s.client.AppsV1().Deployments(ref.Namespace).Patch(ctx, ref.Name, types.MergePatchType, body, opts)
	case model.KindStatefulSet:
		_, err = s.client.AppsV1().StatefulSets(ref.Namespace).Patch(ctx, ref.Name, types.MergePatchType, body, opts)
	default:
		return fmt.Errorf("unsupported workload kind %q", ref.Kind)
	}
	if err != nil {
		return fmt.Errorf("patch %s replicas to %d: %w", ref, replicas, err)
	}
	return nil
}

// DryRun records requested replica counts without changing anything. It
// implements controller.Mutator.
type DryRun struct {
	mu        sync.Mutex
	requested map[string]int32
}

// NewDryRun creates a DryRun mutator.
func NewDryRun() *DryRun {
	return &DryRun{requested: make(map[string]int32)}
}

// SetReplicas logs the change that would have been made.
func (d *DryRun) SetReplicas(_ context.Context, ref model.WorkloadRef, replicas int32) error {
	d.mu.Lock()
	d.requested[ref.String()] = replicas
	d.mu.Unlock()

	slog.Info("dry run: replica change not applied", "workload", ref.String(), "replicas", replicas)
	return nil
}

// Requested returns the last replica count requested for ref.
func (d *DryRun) Requested(ref model.WorkloadRef) (int32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.requested[ref.String()]
	return r, ok
}
