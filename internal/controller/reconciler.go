package controller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	autoscalererrors "github.com/kubeadapt/kubeadapt-autoscaler/internal/errors"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/scaling"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// Options tune every reconciler created by a Manager.
type Options struct {
	Period      time.Duration
	Freshness   time.Duration
	Concurrency int
	Clock       autoscalererrors.Clock
	Reducers    []scaling.AggregatorOption
	OnPhase     PhaseObserver
}

func (o Options) withDefaults() Options {
	if o.Period <= 0 {
		o.Period = 15 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Clock == nil {
		o.Clock = autoscalererrors.RealClock{}
	}
	return o
}

// Status is a read-only view of one reconciler for the debug endpoint.
type Status struct {
	Workload     string                `json:"workload"`
	Phase        Phase                 `json:"phase"`
	Reason       string                `json:"reason,omitempty"`
	Spec         model.WorkloadSpec    `json:"spec"`
	LastCycleID  string                `json:"last_cycle_id,omitempty"`
	LastCycleAt  time.Time             `json:"last_cycle_at,omitempty"`
	LastDecision *scaling.Decision     `json:"last_decision,omitempty"`
	State        scaling.StateSnapshot `json:"state"`
}

// Reconciler owns the scaling state of one workload and runs its cycles.
// Cycles never overlap: the next tick is only consumed after the current
// cycle has returned.
type Reconciler struct {
	id         string
	deps       Dependencies
	opts       Options
	aggregator *scaling.Aggregator
	sm         *StateMachine

	// Owned by the cycle goroutine.
	spec   model.WorkloadSpec
	engine *scaling.Engine
	state  *scaling.State

	pending atomic.Pointer[model.WorkloadSpec]
	status  atomic.Pointer[Status]
}

// NewReconciler creates a Reconciler for spec. The spec is assumed to be
// validated.
func NewReconciler(spec model.WorkloadSpec, deps Dependencies, opts Options) *Reconciler {
	opts = opts.withDefaults()
	if deps.Sink == nil {
		deps.Sink = NopSink{}
	}
	r := &Reconciler{
		id:         spec.Ref.String(),
		deps:       deps,
		opts:       opts,
		aggregator: scaling.NewAggregator(opts.Freshness, opts.Reducers...),
		sm:         NewStateMachine(spec.Ref.String(), opts.Clock, opts.OnPhase),
		spec:       spec,
		engine:     scaling.NewEngine(spec.Bounds, spec.Policy),
		state:      scaling.NewState(scaling.HistoryCapacity(spec.Policy, opts.Period)),
	}
	r.publish("", time.Time{}, nil)
	return r
}

// Workload returns the workload identifier.
func (r *Reconciler) Workload() string { return r.id }

// Update replaces bounds, policy and metrics starting with the next cycle.
// The scaling history is kept.
func (r *Reconciler) Update(spec model.WorkloadSpec) {
	r.pending.Store(&spec)
}

// Status returns the state published at the end of the last cycle.
func (r *Reconciler) Status() Status {
	st := *r.status.Load()
	st.Phase = r.sm.Phase()
	st.Reason = r.sm.Reason()
	return st
}

// Run executes cycles every period until ctx is canceled. A cycle in
// flight when ctx is canceled finishes without applying its decision.
func (r *Reconciler) Run(ctx context.Context) error {
	defer r.sm.TransitionTo(PhaseStopped, "context canceled")

	ticker := time.NewTicker(r.opts.Period)
	defer ticker.Stop()

	r.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		r.RunCycle(ctx)
	}
}

// RunCycle runs one evaluation and, when needed, applies its decision.
// Panics are recovered and reported as a skipped cycle.
func (r *Reconciler) RunCycle(ctx context.Context) {
	r.applyPending()

	cycleID := uuid.NewString()
	now := r.opts.Clock.Now()
	workload := r.spec.Ref.String()

	defer func() {
		if p := recover(); p != nil {
			slog.Error("reconcile cycle panicked",
				"workload", workload, "cycle_id", cycleID, "panic", p,
				"stack", string(debug.Stack()))
			r.skip(cycleID, now, autoscalererrors.ErrCodeCyclePanic, fmt.Sprintf("panic: %v", p))
			r.sm.TransitionTo(PhaseIdle, "recovered from panic")
			r.publish(cycleID, now, nil)
		}
	}()

	r.sm.TransitionTo(PhaseEvaluating, "")
	current, err := r.deps.Inspector.CurrentReplicas(ctx, r.spec.Ref)
	if err != nil {
		r.skip(cycleID, now, autoscalererrors.ErrCodeInspectFailed, fmt.Sprintf("inspect workload: %v", err))
		r.sm.TransitionTo(PhaseIdle, "inspect failed")
		r.publish(cycleID, now, nil)
		return
	}

	desired := r.evaluate(ctx, cycleID, current, now)

	r.sm.TransitionTo(PhaseDeciding, "")
	var d scaling.Decision
	candidate, err := scaling.Resolve(desired)
	if err != nil {
		d = r.engine.Hold(r.state, current, now)
		r.skip(cycleID, now, autoscalererrors.ErrCodeNoMetricsAvailable, err.Error())
	} else {
		d = r.engine.Decide(r.state, current, candidate, now)
	}

	if d.Final != current {
		r.apply(ctx, cycleID, now, d)
	}
	if err == nil {
		r.deps.Sink.CycleCompleted(model.CycleCompleted{
			Workload:  workload,
			CycleID:   cycleID,
			Current:   d.Current,
			Candidate: d.Candidate,
			Final:     d.Final,
			Direction: d.Direction,
			Duration:  r.opts.Clock.Now().Sub(now),
			Timestamp: now,
		})
	}

	r.sm.TransitionTo(PhaseIdle, "")
	r.publish(cycleID, now, &d)
}

func (r *Reconciler) apply(ctx context.Context, cycleID string, now time.Time, d scaling.Decision) {
	workload := r.spec.Ref.String()
	if ctx.Err() != nil {
		slog.Info("shutdown in progress, dropping decision",
			"workload", workload, "cycle_id", cycleID, "final", d.Final)
		return
	}

	r.sm.TransitionTo(PhaseApplying, "")
	if err := r.deps.Mutator.SetReplicas(ctx, r.spec.Ref, d.Final); err != nil {
		r.deps.Sink.ApplyFailed(model.ApplyFailed{
			Workload:  workload,
			CycleID:   cycleID,
			Target:    d.Final,
			Reason:    fmt.Errorf("%w: %w", autoscalererrors.ErrApplyFailed, err).Error(),
			Timestamp: now,
		})
		return
	}
	r.state.Commit(d, now)
	slog.Info("replica count changed",
		"workload", workload,
		"cycle_id", cycleID,
		"from", d.Current,
		"to", d.Final,
		"direction", d.Direction,
		"limited", d.Limited,
	)
}

type metricResult struct {
	index   int
	desired int32
	err     error
}

// evaluate samples every metric with bounded concurrency and returns the
// desired replica count of each metric that could be evaluated.
func (r *Reconciler) evaluate(ctx context.Context, cycleID string, current int32, now time.Time) []int32 {
	p := pool.NewWithResults[metricResult]().WithMaxGoroutines(r.opts.Concurrency)
	for i, spec := range r.spec.Metrics {
		p.Go(func() metricResult {
			desired, err := r.evaluateMetric(ctx, spec, current, now)
			return metricResult{index: i, desired: desired, err: err}
		})
	}
	results := p.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	desired := make([]int32, 0, len(results))
	for _, res := range results {
		if res.err != nil {
			r.deps.Sink.MetricFailed(model.MetricFailed{
				Workload:  r.spec.Ref.String(),
				CycleID:   cycleID,
				Metric:    r.spec.Metrics[res.index].Name,
				Reason:    res.err.Error(),
				Timestamp: now,
			})
			continue
		}
		desired = append(desired, res.desired)
	}
	return desired
}

func (r *Reconciler) evaluateMetric(ctx context.Context, spec model.MetricSpec, current int32, now time.Time) (int32, error) {
	samples, err := r.deps.Source.Sample(ctx, r.spec.Ref, spec)
	if err != nil {
		return 0, fmt.Errorf("%w: sample: %w", autoscalererrors.ErrMetricUnavailable, err)
	}
	ratio, err := r.aggregator.Aggregate(spec, samples, now)
	if err != nil {
		return 0, err
	}
	desired, ok := scaling.DesiredReplicas(current, ratio, r.spec.Bounds, r.spec.Tolerance)
	if !ok {
		return 0, fmt.Errorf("%w: ratio %v is not usable", autoscalererrors.ErrMetricUnavailable, ratio)
	}
	return desired, nil
}

func (r *Reconciler) skip(cycleID string, now time.Time, code autoscalererrors.Code, reason string) {
	r.deps.Sink.CycleSkipped(model.CycleSkipped{
		Workload:  r.spec.Ref.String(),
		CycleID:   cycleID,
		Code:      string(code),
		Reason:    reason,
		Duration:  r.opts.Clock.Now().Sub(now),
		Timestamp: now,
	})
}

func (r *Reconciler) applyPending() {
	spec := r.pending.Swap(nil)
	if spec == nil {
		return
	}
	r.spec = *spec
	r.engine = scaling.NewEngine(spec.Bounds, spec.Policy)
	r.state.Resize(scaling.HistoryCapacity(spec.Policy, r.opts.Period))
	slog.Info("workload declaration reloaded", "workload", spec.Ref.String())
}

func (r *Reconciler) publish(cycleID string, at time.Time, d *scaling.Decision) {
	prev := r.status.Load()
	st := &Status{
		Workload:     r.spec.Ref.String(),
		Spec:         r.spec,
		LastCycleID:  cycleID,
		LastCycleAt:  at,
		LastDecision: d,
		State:        r.state.Snapshot(),
	}
	if d == nil && prev != nil {
		st.LastDecision = prev.LastDecision
	}
	r.status.Store(st)
}
