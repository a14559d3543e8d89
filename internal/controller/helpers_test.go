package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// mockClock is a controllable clock for testing.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{now: t}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// fakeCluster implements Inspector and Mutator over an in-memory replica map.
type fakeCluster struct {
	mu         sync.Mutex
	replicas   map[string]int32
	inspectErr error
	applyErr   error
	applied    []int32
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{replicas: make(map[string]int32)}
}

func (f *fakeCluster) set(ref model.WorkloadRef, n int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replicas[ref.String()] = n
}

func (f *fakeCluster) get(ref model.WorkloadRef) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replicas[ref.String()]
}

func (f *fakeCluster) CurrentReplicas(_ context.Context, ref model.WorkloadRef) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inspectErr != nil {
		return 0, f.inspectErr
	}
	n, ok := f.replicas[ref.String()]
	if !ok {
		return 0, fmt.Errorf("%s not found", ref)
	}
	return n, nil
}

func (f *fakeCluster) SetReplicas(_ context.Context, ref model.WorkloadRef, replicas int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.replicas[ref.String()] = replicas
	f.applied = append(f.applied, replicas)
	return nil
}

func (f *fakeCluster) appliedValues() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int32(nil), f.applied...)
}

// fakeSource returns fixed per-instance values for each metric name.
type fakeSource struct {
	mu     sync.Mutex
	clock  *mockClock
	values map[string][]float64
	errs   map[string]error
	panics map[string]bool
	calls  int
}

func newFakeSource(clock *mockClock) *fakeSource {
	return &fakeSource{
		clock:  clock,
		values: make(map[string][]float64),
		errs:   make(map[string]error),
		panics: make(map[string]bool),
	}
}

func (s *fakeSource) setValues(metric string, values ...float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[metric] = values
}

func (s *fakeSource) Sample(_ context.Context, _ model.WorkloadRef, spec model.MetricSpec) (map[string]model.MetricSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.panics[spec.Name] {
		panic("source exploded")
	}
	if err := s.errs[spec.Name]; err != nil {
		return nil, err
	}
	out := make(map[string]model.MetricSample)
	for i, v := range s.values[spec.Name] {
		id := fmt.Sprintf("pod-%d", i)
		out[id] = model.MetricSample{InstanceID: id, Value: v, Timestamp: s.clock.Now()}
	}
	return out, nil
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu        sync.Mutex
	completed []model.CycleCompleted
	skipped   []model.CycleSkipped
	failed    []model.MetricFailed
	applyFail []model.ApplyFailed
}

func (s *recordingSink) CycleCompleted(e model.CycleCompleted) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, e)
}

func (s *recordingSink) CycleSkipped(e model.CycleSkipped) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, e)
}

func (s *recordingSink) MetricFailed(e model.MetricFailed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, e)
}

func (s *recordingSink) ApplyFailed(e model.ApplyFailed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyFail = append(s.applyFail, e)
}

func (s *recordingSink) counts() (completed, skipped, failed, applyFail int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed), len(s.skipped), len(s.failed), len(s.applyFail)
}

func testRef(name string) model.WorkloadRef {
	return model.WorkloadRef{Kind: model.KindDeployment, Namespace: "default", Name: name}
}

func testSpec(name string, minReplicas, maxReplicas int32, metrics ...model.MetricSpec) model.WorkloadSpec {
	return model.WorkloadSpec{
		Ref:     testRef(name),
		Bounds:  model.ScalingBounds{MinReplicas: minReplicas, MaxReplicas: maxReplicas},
		Metrics: metrics,
		Policy: model.ScalingPolicy{
			ScaleUp:   model.DefaultScaleUpPolicy(),
			ScaleDown: model.DefaultScaleDownPolicy(),
		},
	}
}

func cpuMetric(target float64) model.MetricSpec {
	return model.MetricSpec{Kind: model.MetricKindResource, Name: "cpu", TargetUtilization: target}
}

type testEnv struct {
	clock   *mockClock
	cluster *fakeCluster
	source  *fakeSource
	sink    *recordingSink
}

func newTestEnv() *testEnv {
	clock := newMockClock(testNow)
	return &testEnv{
		clock:   clock,
		cluster: newFakeCluster(),
		source:  newFakeSource(clock),
		sink:    &recordingSink{},
	}
}

func (e *testEnv) deps() Dependencies {
	return Dependencies{Inspector: e.cluster, Source: e.source, Mutator: e.cluster, Sink: e.sink}
}

func (e *testEnv) opts() Options {
	return Options{Period: 15 * time.Second, Freshness: time.Minute, Concurrency: 2, Clock: e.clock}
}
