package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// ErrAlreadyRegistered is returned when a workload is declared twice.
var ErrAlreadyRegistered = errors.New("workload already registered")

// ApplyResult lists the workloads touched by Manager.Apply.
type ApplyResult struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Updated []string `json:"updated"`
}

type worker struct {
	rec    *Reconciler
	spec   model.WorkloadSpec
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager runs one Reconciler goroutine per workload. Reconcilers share
// only the collaborators in Dependencies. Register, StartAll, Apply and
// StopAll are safe to call from different goroutines.
type Manager struct {
	deps Dependencies
	opts Options

	mu      sync.Mutex
	workers map[string]*worker
	ctx     context.Context
	started bool
}

// NewManager creates an empty Manager.
func NewManager(deps Dependencies, opts Options) *Manager {
	return &Manager{
		deps:    deps,
		opts:    opts.withDefaults(),
		workers: make(map[string]*worker),
	}
}

// Register adds a workload. When the Manager is already running the
// reconciler starts immediately.
func (m *Manager) Register(spec model.WorkloadSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := spec.Ref.String()
	if _, ok := m.workers[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	w := &worker{
		rec:  NewReconciler(spec, m.deps, m.opts),
		spec: spec,
	}
	m.workers[id] = w
	if m.started {
		m.startLocked(w)
	}
	return nil
}

// StartAll starts every registered reconciler. The reconcilers stop when
// ctx is canceled or StopAll is called.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.New("manager already started")
	}
	m.ctx = ctx
	m.started = true
	for _, w := range m.workers {
		m.startLocked(w)
	}
	slog.Info("reconcilers started", "workloads", len(m.workers))
	return nil
}

func (m *Manager) startLocked(w *worker) {
	ctx, cancel := context.WithCancel(m.ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		if err := w.rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("reconciler exited", "workload", w.rec.Workload(), "error", err)
		}
	}()
}

// StopAll cancels every reconciler and waits for in-flight cycles to
// finish. Safe to call multiple times.
func (m *Manager) StopAll() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	workers := make([]*worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.started = false
	m.mu.Unlock()

	for _, w := range workers {
		w.cancel()
	}
	for _, w := range workers {
		<-w.done
	}
	slog.Info("reconcilers stopped", "workloads", len(workers))
}

// Apply reconciles the running set against specs: new workloads are
// started, missing ones stopped, and changed ones updated in place so their
// scaling history survives.
func (m *Manager) Apply(specs []model.WorkloadSpec) ApplyResult {
	var res ApplyResult
	var stopped []*worker

	m.mu.Lock()
	wanted := make(map[string]model.WorkloadSpec, len(specs))
	for _, spec := range specs {
		wanted[spec.Ref.String()] = spec
	}
	for id, w := range m.workers {
		if _, ok := wanted[id]; ok {
			continue
		}
		delete(m.workers, id)
		if w.cancel != nil {
			w.cancel()
			stopped = append(stopped, w)
		}
		res.Removed = append(res.Removed, id)
	}
	for id, spec := range wanted {
		w, ok := m.workers[id]
		if !ok {
			w = &worker{rec: NewReconciler(spec, m.deps, m.opts), spec: spec}
			m.workers[id] = w
			if m.started {
				m.startLocked(w)
			}
			res.Added = append(res.Added, id)
			continue
		}
		if !reflect.DeepEqual(w.spec, spec) {
			w.spec = spec
			w.rec.Update(spec)
			res.Updated = append(res.Updated, id)
		}
	}
	m.mu.Unlock()

	for _, w := range stopped {
		<-w.done
	}
	sort.Strings(res.Added)
	sort.Strings(res.Removed)
	sort.Strings(res.Updated)
	slog.Info("workload declarations applied",
		"added", len(res.Added), "removed", len(res.Removed), "updated", len(res.Updated))
	return res
}

// Statuses returns the status of every workload, ordered by identifier.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	recs := make([]*Reconciler, 0, len(m.workers))
	for _, w := range m.workers {
		recs = append(recs, w.rec)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Workload < out[j].Workload })
	return out
}

// Status returns the status of one workload.
func (m *Manager) Status(ref model.WorkloadRef) (Status, bool) {
	m.mu.Lock()
	w, ok := m.workers[ref.String()]
	m.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return w.rec.Status(), true
}

// Len returns the number of managed workloads.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}
