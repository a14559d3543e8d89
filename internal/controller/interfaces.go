// Package controller runs one reconciliation loop per managed workload and
// connects it to the collaborators that observe and change the workload.
package controller

import (
	"context"

	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// Inspector reports the replica count a workload currently runs.
type Inspector interface {
	CurrentReplicas(ctx context.Context, ref model.WorkloadRef) (int32, error)
}

// MetricSource returns the latest sample per instance for one metric.
type MetricSource interface {
	Sample(ctx context.Context, ref model.WorkloadRef, spec model.MetricSpec) (map[string]model.MetricSample, error)
}

// Mutator requests a new replica count. Errors are reported, never retried
// within the same cycle.
type Mutator interface {
	SetReplicas(ctx context.Context, ref model.WorkloadRef, replicas int32) error
}

// Sink receives the observability events of every cycle. Implementations
// must not block the reconciler.
type Sink interface {
	CycleCompleted(e model.CycleCompleted)
	CycleSkipped(e model.CycleSkipped)
	MetricFailed(e model.MetricFailed)
	ApplyFailed(e model.ApplyFailed)
}

// Dependencies groups the collaborators shared by all reconcilers.
type Dependencies struct {
	Inspector Inspector
	Source    MetricSource
	Mutator   Mutator
	Sink      Sink
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) CycleCompleted(model.CycleCompleted) {}
func (NopSink) CycleSkipped(model.CycleSkipped)     {}
func (NopSink) MetricFailed(model.MetricFailed)     {}
func (NopSink) ApplyFailed(model.ApplyFailed)       {}
