package scaling

import (
	"math"

	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// DesiredReplicas converts a utilization ratio into the replica count that
// would bring it back to target, clamped into bounds.
//
// ok is false when ratio is not finite; the caller skips the metric for this
// cycle. A ratio within tolerance of 1 keeps the current count. With zero
// current replicas the result is the bounds minimum.
func DesiredReplicas(current int32, ratio float64, bounds model.ScalingBounds, tolerance float64) (desired int32, ok bool) {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio < 0 {
		return 0, false
	}
	if current <= 0 {
		return bounds.Clamp(0), true
	}
	if math.Abs(ratio-1) <= tolerance {
		return bounds.Clamp(current), true
	}

	raw := math.Ceil(float64(current) * ratio)
	if raw > math.MaxInt32 {
		raw = math.MaxInt32
	}
	return bounds.Clamp(int32(raw)), true
}
