package scaling

import (
	autoscalererrors "github.com/kubeadapt/kubeadapt-autoscaler/internal/errors"
)

// Resolve combines per-metric desired counts into one candidate: the
// maximum, so no single saturated metric is under-provisioned. With no
// evaluated metric it returns ErrNoMetricsAvailable and the caller must hold
// the current replica count.
func Resolve(desired []int32) (int32, error) {
	if len(desired) == 0 {
		return 0, autoscalererrors.ErrNoMetricsAvailable
	}
	best := desired[0]
	for _, d := range desired[1:] {
		if d > best {
			best = d
		}
	}
	return best, nil
}
