package scaling

import (
	"math"
	"time"

	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// Decision is the outcome of one policy evaluation.
type Decision struct {
	Current    int32           `json:"current"`
	Candidate  int32           `json:"candidate"`
	Stabilized int32           `json:"stabilized"` // candidate after the stabilization window
	Final      int32           `json:"final"`
	Direction  model.Direction `json:"direction"` // direction of Final relative to Current
	Limited    bool            `json:"limited"`   // a step policy or disabled direction held Final back
}

// Engine applies stabilization windows, step policies and bounds to a
// candidate replica count. Scale-up and scale-down are evaluated with their
// own policy: scale-up reacts to the lowest recent candidate and the most
// permissive step, scale-down to the highest recent candidate and the most
// restrictive step.
type Engine struct {
	bounds model.ScalingBounds
	policy model.ScalingPolicy
}

// NewEngine creates an Engine for one workload's bounds and policy.
func NewEngine(bounds model.ScalingBounds, policy model.ScalingPolicy) *Engine {
	return &Engine{bounds: bounds, policy: policy}
}

// Decide returns the final replica count for this cycle and records the
// candidate into st. Every evaluated cycle is recorded, including one whose
// candidate equals current, so stabilization windows see held values. The
// replica change itself is only recorded by State.Commit once applied. It
// never fails.
func (e *Engine) Decide(st *State, current, candidate int32, now time.Time) Decision {
	st.desired.Prune(now.Add(-e.policy.Retention()))
	st.events.Prune(now.Add(-e.policy.Retention()))
	st.desired.Add(now, candidate)

	d := Decision{
		Current:    current,
		Candidate:  candidate,
		Stabilized: current,
		Final:      current,
	}

	switch {
	case candidate > current:
		d.Stabilized = e.stabilizeUp(st, current, now)
		limit := e.upLimit(st, current, now)
		d.Final = d.Stabilized
		if d.Final > limit {
			d.Final = limit
			d.Limited = true
		}
	case candidate < current:
		d.Stabilized = e.stabilizeDown(st, current, now)
		limit := e.downLimit(st, current, now)
		d.Final = d.Stabilized
		if d.Final < limit {
			d.Final = limit
			d.Limited = true
		}
	}

	d.Final = e.bounds.Clamp(d.Final)
	d.Direction = directionOf(current, d.Final)
	st.CurrentReplicas = current
	return d
}

// Hold keeps current when no candidate could be computed. Only an
// out-of-range current is corrected into bounds; the candidate history is
// left untouched.
func (e *Engine) Hold(st *State, current int32, now time.Time) Decision {
	st.events.Prune(now.Add(-e.policy.Retention()))
	d := Decision{
		Current:    current,
		Candidate:  current,
		Stabilized: current,
		Final:      e.bounds.Clamp(current),
	}
	d.Direction = directionOf(current, d.Final)
	st.CurrentReplicas = current
	return d
}

func directionOf(current, final int32) model.Direction {
	switch {
	case final > current:
		return model.DirectionUp
	case final < current:
		return model.DirectionDown
	}
	return model.DirectionNone
}

// stabilizeUp returns the lowest candidate seen within the scale-up window,
// never below current.
func (e *Engine) stabilizeUp(st *State, current int32, now time.Time) int32 {
	lowest := int32(math.MaxInt32)
	st.desired.Since(now.Add(-e.policy.ScaleUp.StabilizationWindow), func(r Record) {
		if r.Value < lowest {
			lowest = r.Value
		}
	})
	if lowest < current {
		return current
	}
	return lowest
}

// stabilizeDown returns the highest candidate seen within the scale-down
// window, never above current.
func (e *Engine) stabilizeDown(st *State, current int32, now time.Time) int32 {
	highest := int32(math.MinInt32)
	st.desired.Since(now.Add(-e.policy.ScaleDown.StabilizationWindow), func(r Record) {
		if r.Value > highest {
			highest = r.Value
		}
	})
	if highest > current {
		return current
	}
	return highest
}

// upLimit is the highest replica count the scale-up steps allow now. Steps
// combine by the least restrictive result.
func (e *Engine) upLimit(st *State, current int32, now time.Time) int32 {
	if e.policy.ScaleUp.Disabled() {
		return current
	}
	limit := int32(math.MinInt32)
	for _, step := range e.policy.ScaleUp.Steps {
		// Replicas added within the period already used part of its budget.
		base := current - st.changedWithin(step.Period(), now, model.DirectionUp)
		if base < 0 {
			base = 0
		}
		if l := satAdd(base, stepDelta(step, base)); l > limit {
			limit = l
		}
	}
	if limit < current {
		return current
	}
	return limit
}

// downLimit is the lowest replica count the scale-down steps allow now.
// Steps combine by the most restrictive result.
func (e *Engine) downLimit(st *State, current int32, now time.Time) int32 {
	if e.policy.ScaleDown.Disabled() {
		return current
	}
	limit := int32(math.MinInt32)
	for _, step := range e.policy.ScaleDown.Steps {
		base := satAdd(current, st.changedWithin(step.Period(), now, model.DirectionDown))
		if l := base - stepDelta(step, base); l > limit {
			limit = l
		}
	}
	if limit > current {
		return current
	}
	return limit
}

// stepDelta is the replica change one step allows over its period.
func stepDelta(step model.Step, base int32) int32 {
	switch step.Type {
	case model.StepPods:
		return step.Value
	case model.StepPercent:
		d := math.Ceil(float64(base) * float64(step.Value) / 100)
		if d > math.MaxInt32 {
			return math.MaxInt32
		}
		return int32(d)
	}
	return 0
}

func satAdd(a, b int32) int32 {
	s := int64(a) + int64(b)
	if s > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(s)
}
