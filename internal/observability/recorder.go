package observability

import (
	"log/slog"
	"sync"

	autoscalererrors "github.com/kubeadapt/kubeadapt-autoscaler/internal/errors"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// cycleErrorCodes are the workload-level codes a completed cycle clears.
var cycleErrorCodes = []autoscalererrors.Code{
	autoscalererrors.ErrCodeInspectFailed,
	autoscalererrors.ErrCodeNoMetricsAvailable,
	autoscalererrors.ErrCodeCyclePanic,
}

// Recorder turns cycle events into log lines, Prometheus series and active
// errors for the debug endpoint. It implements controller.Sink.
type Recorder struct {
	metrics *Metrics
	errs    *autoscalererrors.ErrorCollector

	mu sync.Mutex
	// Failing metrics per workload, for the cycle in flight and the last
	// finished one. Metrics that stop failing are resolved.
	failing map[string]*metricFailures
}

type metricFailures struct {
	cycleID     string
	current     map[string]struct{}
	last        map[string]struct{}
	applyFailed bool
}

// NewRecorder creates a Recorder. errs may be shared with other components.
func NewRecorder(m *Metrics, errs *autoscalererrors.ErrorCollector) *Recorder {
	return &Recorder{
		metrics: m,
		errs:    errs,
		failing: make(map[string]*metricFailures),
	}
}

// CycleCompleted records a cycle that reached a decision.
func (r *Recorder) CycleCompleted(e model.CycleCompleted) {
	r.metrics.CyclesTotal.WithLabelValues(e.Workload, "completed").Inc()
	r.metrics.CycleDuration.WithLabelValues(e.Workload, "completed").Observe(e.Duration.Seconds())
	r.metrics.DecisionsTotal.WithLabelValues(e.Workload, string(e.Direction)).Inc()
	r.metrics.CurrentReplicas.WithLabelValues(e.Workload).Set(float64(e.Current))
	r.metrics.DesiredReplicas.WithLabelValues(e.Workload).Set(float64(e.Candidate))
	r.metrics.FinalReplicas.WithLabelValues(e.Workload).Set(float64(e.Final))

	for _, code := range cycleErrorCodes {
		r.errs.Resolve(code, e.Workload)
	}
	if applyFailed := r.finishCycle(e.Workload, e.CycleID); e.Final != e.Current && !applyFailed {
		r.errs.Resolve(autoscalererrors.ErrCodeApplyFailed, e.Workload)
	}

	slog.Debug("cycle completed",
		"workload", e.Workload,
		"cycle_id", e.CycleID,
		"current", e.Current,
		"candidate", e.Candidate,
		"final", e.Final,
		"direction", e.Direction,
		"duration", e.Duration,
	)
}

// CycleSkipped records a cycle that held the replica count.
func (r *Recorder) CycleSkipped(e model.CycleSkipped) {
	r.metrics.CyclesTotal.WithLabelValues(e.Workload, "skipped").Inc()
	r.metrics.CycleDuration.WithLabelValues(e.Workload, "skipped").Observe(e.Duration.Seconds())

	r.errs.Report(autoscalererrors.ControllerError{
		Code:      autoscalererrors.Code(e.Code),
		Message:   e.Reason,
		Component: e.Workload,
		Timestamp: e.Timestamp.UnixMilli(),
	})
	r.finishCycle(e.Workload, e.CycleID)

	slog.Warn("cycle skipped, holding replica count",
		"workload", e.Workload,
		"cycle_id", e.CycleID,
		"code", e.Code,
		"reason", e.Reason,
	)
}

// MetricFailed records one metric that could not be evaluated.
func (r *Recorder) MetricFailed(e model.MetricFailed) {
	r.metrics.MetricFailuresTotal.WithLabelValues(e.Workload, e.Metric).Inc()

	r.errs.Report(autoscalererrors.ControllerError{
		Code:      autoscalererrors.ErrCodeMetricUnavailable,
		Message:   e.Reason,
		Component: metricComponent(e.Workload, e.Metric),
		Timestamp: e.Timestamp.UnixMilli(),
	})

	r.mu.Lock()
	f := r.failuresLocked(e.Workload, e.CycleID)
	f.current[e.Metric] = struct{}{}
	r.mu.Unlock()

	slog.Warn("metric unavailable, excluded from this cycle",
		"workload", e.Workload,
		"cycle_id", e.CycleID,
		"metric", e.Metric,
		"reason", e.Reason,
	)
}

// ApplyFailed records a rejected replica change.
func (r *Recorder) ApplyFailed(e model.ApplyFailed) {
	r.metrics.ApplyFailuresTotal.WithLabelValues(e.Workload).Inc()

	r.mu.Lock()
	r.failuresLocked(e.Workload, e.CycleID).applyFailed = true
	r.mu.Unlock()

	r.errs.Report(autoscalererrors.ControllerError{
		Code:      autoscalererrors.ErrCodeApplyFailed,
		Message:   e.Reason,
		Component: e.Workload,
		Timestamp: e.Timestamp.UnixMilli(),
	})

	slog.Error("replica change rejected",
		"workload", e.Workload,
		"cycle_id", e.CycleID,
		"target", e.Target,
		"reason", e.Reason,
	)
}

// Forget drops all state kept for a removed workload.
func (r *Recorder) Forget(workload string) {
	r.mu.Lock()
	f := r.failing[workload]
	delete(r.failing, workload)
	r.mu.Unlock()

	if f != nil {
		for metric := range f.current {
			r.errs.Resolve(autoscalererrors.ErrCodeMetricUnavailable, metricComponent(workload, metric))
		}
		for metric := range f.last {
			r.errs.Resolve(autoscalererrors.ErrCodeMetricUnavailable, metricComponent(workload, metric))
		}
	}
	for _, code := range cycleErrorCodes {
		r.errs.Resolve(code, workload)
	}
	r.errs.Resolve(autoscalererrors.ErrCodeApplyFailed, workload)
	r.metrics.ForgetWorkload(workload)
}

// failuresLocked returns the tracking entry of workload, rolling it over
// when a new cycle starts. Callers hold r.mu.
func (r *Recorder) failuresLocked(workload, cycleID string) *metricFailures {
	f, ok := r.failing[workload]
	if !ok {
		f = &metricFailures{current: map[string]struct{}{}}
		r.failing[workload] = f
	}
	if f.cycleID != cycleID {
		f.cycleID = cycleID
		if len(f.current) > 0 {
			f.last = f.current
		}
		f.current = map[string]struct{}{}
		f.applyFailed = false
	}
	return f
}

// finishCycle resolves the metric errors of the previous cycle that did not
// fail again in cycleID. It reports whether cycleID had an apply failure.
func (r *Recorder) finishCycle(workload, cycleID string) bool {
	r.mu.Lock()
	f := r.failuresLocked(workload, cycleID)
	var recovered []string
	for metric := range f.last {
		if _, still := f.current[metric]; !still {
			recovered = append(recovered, metric)
		}
	}
	applyFailed := f.applyFailed
	f.last = f.current
	f.current = map[string]struct{}{}
	f.applyFailed = false
	f.cycleID = ""
	r.mu.Unlock()

	for _, metric := range recovered {
		r.errs.Resolve(autoscalererrors.ErrCodeMetricUnavailable, metricComponent(workload, metric))
	}
	return applyFailed
}

func metricComponent(workload, metric string) string {
	return workload + "#" + metric
}
