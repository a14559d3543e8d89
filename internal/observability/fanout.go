package observability

import (
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/controller"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// Fanout delivers every event to each sink in order.
type Fanout []controller.Sink

// NewFanout combines sinks, skipping nil entries.
func NewFanout(sinks ...controller.Sink) Fanout {
	out := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f Fanout) CycleCompleted(e model.CycleCompleted) {
	for _, s := range f {
		s.CycleCompleted(e)
	}
}

func (f Fanout) CycleSkipped(e model.CycleSkipped) {
	for _, s := range f {
		s.CycleSkipped(e)
	}
}

func (f Fanout) MetricFailed(e model.MetricFailed) {
	for _, s := range f {
		s.MetricFailed(e)
	}
}

func (f Fanout) ApplyFailed(e model.ApplyFailed) {
	for _, s := range f {
		s.ApplyFailed(e)
	}
}
