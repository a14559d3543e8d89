package model

import "time"

// StepType selects how a Step bounds the replica change in its period.
type StepType string

// Step types.
const (
	StepPercent StepType = "Percent"
	StepPods    StepType = "Pods"
)

// Step bounds the replica change allowed within PeriodSeconds, either as an
// absolute pod count or as a percentage of the replica count at the start of
// the period.
type Step struct {
	Type          StepType `json:"type"`
	Value         int32    `json:"value"`
	PeriodSeconds int32    `json:"period_seconds"`
}

// Period returns the step period as a duration.
func (s Step) Period() time.Duration {
	return time.Duration(s.PeriodSeconds) * time.Second
}

// DirectionPolicy constrains scaling in one direction. An empty Steps slice
// disables scaling in that direction.
type DirectionPolicy struct {
	StabilizationWindow time.Duration `json:"stabilization_window"`
	Steps               []Step        `json:"steps"`
}

// Disabled reports whether no change is allowed in this direction.
func (p DirectionPolicy) Disabled() bool {
	return len(p.Steps) == 0
}

// LongestPeriod returns the longest step period of the policy.
func (p DirectionPolicy) LongestPeriod() time.Duration {
	var longest time.Duration
	for _, s := range p.Steps {
		if d := s.Period(); d > longest {
			longest = d
		}
	}
	return longest
}

// ScalingPolicy holds the independent scale-up and scale-down policies.
type ScalingPolicy struct {
	ScaleUp   DirectionPolicy `json:"scale_up"`
	ScaleDown DirectionPolicy `json:"scale_down"`
}

// Retention returns how long decision history must be kept to serve both
// stabilization windows and all step periods.
func (p ScalingPolicy) Retention() time.Duration {
	r := p.ScaleUp.StabilizationWindow
	for _, d := range []time.Duration{
		p.ScaleDown.StabilizationWindow,
		p.ScaleUp.LongestPeriod(),
		p.ScaleDown.LongestPeriod(),
	} {
		if d > r {
			r = d
		}
	}
	return r
}

// DefaultScaleUpPolicy mirrors the Kubernetes HPA scale-up defaults.
func DefaultScaleUpPolicy() DirectionPolicy {
	return DirectionPolicy{
		Steps: []Step{
			{Type: StepPercent, Value: 100, PeriodSeconds: 15},
			{Type: StepPods, Value: 4, PeriodSeconds: 15},
		},
	}
}

// DefaultScaleDownPolicy mirrors the Kubernetes HPA scale-down defaults.
func DefaultScaleDownPolicy() DirectionPolicy {
	return DirectionPolicy{
		StabilizationWindow: 300 * time.Second,
		Steps: []Step{
			{Type: StepPercent, Value: 100, PeriodSeconds: 15},
		},
	}
}

// ScalingBounds is the inclusive replica range a workload may occupy.
type ScalingBounds struct {
	MinReplicas int32 `json:"min_replicas"`
	MaxReplicas int32 `json:"max_replicas"`
}

// Clamp returns n limited to [MinReplicas, MaxReplicas].
func (b ScalingBounds) Clamp(n int32) int32 {
	if n < b.MinReplicas {
		return b.MinReplicas
	}
	if n > b.MaxReplicas {
		return b.MaxReplicas
	}
	return n
}

// Contains reports whether n lies within the bounds.
func (b ScalingBounds) Contains(n int32) bool {
	return n >= b.MinReplicas && n <= b.MaxReplicas
}
