package controller

import (
	"sync"
	"time"

	autoscalererrors "github.com/kubeadapt/kubeadapt-autoscaler/internal/errors"
)

// Phase is the position of a reconciler within its cycle.
type Phase string

// Reconciler phases.
const (
	PhaseIdle       Phase = "idle"
	PhaseEvaluating Phase = "evaluating"
	PhaseDeciding   Phase = "deciding"
	PhaseApplying   Phase = "applying"
	PhaseStopped    Phase = "stopped"
)

// Phases lists every phase, in cycle order.
var Phases = []Phase{PhaseIdle, PhaseEvaluating, PhaseDeciding, PhaseApplying, PhaseStopped}

// PhaseObserver is notified on every phase change, e.g. to update a gauge.
type PhaseObserver func(workload string, phase Phase)

// StateMachine tracks the phase of one reconciler. Stopped is terminal.
type StateMachine struct {
	mu       sync.RWMutex
	workload string
	phase    Phase
	reason   string
	since    time.Time
	clock    autoscalererrors.Clock
	observer PhaseObserver
}

// NewStateMachine creates a StateMachine in PhaseIdle.
func NewStateMachine(workload string, clock autoscalererrors.Clock, observer PhaseObserver) *StateMachine {
	sm := &StateMachine{
		workload: workload,
		phase:    PhaseIdle,
		since:    clock.Now(),
		clock:    clock,
		observer: observer,
	}
	if observer != nil {
		observer(workload, PhaseIdle)
	}
	return sm
}

// Phase returns the current phase.
func (sm *StateMachine) Phase() Phase {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.phase
}

// Reason returns the reason recorded with the last transition.
func (sm *StateMachine) Reason() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.reason
}

// Since returns when the current phase was entered.
func (sm *StateMachine) Since() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.since
}

// TransitionTo moves to phase. Transitions out of PhaseStopped are ignored
// and reported as false.
func (sm *StateMachine) TransitionTo(phase Phase, reason string) bool {
	sm.mu.Lock()
	if sm.phase == PhaseStopped {
		sm.mu.Unlock()
		return false
	}
	changed := sm.phase != phase
	sm.phase = phase
	sm.reason = reason
	if changed {
		sm.since = sm.clock.Now()
	}
	observer := sm.observer
	sm.mu.Unlock()

	if changed && observer != nil {
		observer(sm.workload, phase)
	}
	return true
}
