package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

func fastOpts(env *testEnv) Options {
	opts := env.opts()
	opts.Period = 10 * time.Millisecond
	return opts
}

func TestManager_RegisterDuplicate(t *testing.T) {
	env := newTestEnv()
	m := NewManager(env.deps(), env.opts())

	require.NoError(t, m.Register(testSpec("web", 1, 5, cpuMetric(50))))
	err := m.Register(testSpec("web", 1, 5, cpuMetric(50)))
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, 1, m.Len())
}

func TestManager_StartAndStopAll(t *testing.T) {
	env := newTestEnv()
	for _, name := range []string{"api", "web"} {
		env.cluster.set(testRef(name), 2)
	}
	env.source.setValues("cpu", 50, 50)

	m := NewManager(env.deps(), fastOpts(env))
	require.NoError(t, m.Register(testSpec("api", 1, 5, cpuMetric(50))))
	require.NoError(t, m.Register(testSpec("web", 1, 5, cpuMetric(50))))

	require.NoError(t, m.StartAll(context.Background()))
	assert.Error(t, m.StartAll(context.Background()))

	require.Eventually(t, func() bool {
		c, _, _, _ := env.sink.counts()
		return c >= 4
	}, 2*time.Second, 5*time.Millisecond)

	m.StopAll()
	m.StopAll()

	statuses := m.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "deployment/default/api", statuses[0].Workload)
	assert.Equal(t, "deployment/default/web", statuses[1].Workload)
	for _, st := range statuses {
		assert.Equal(t, PhaseStopped, st.Phase)
	}
}

func TestManager_IsolatesFailingWorkload(t *testing.T) {
	env := newTestEnv()
	env.cluster.set(testRef("web"), 2)
	env.source.setValues("cpu", 100, 100)

	m := NewManager(env.deps(), fastOpts(env))
	// "ghost" is unknown to the cluster and fails every inspect.
	require.NoError(t, m.Register(testSpec("ghost", 1, 5, cpuMetric(50))))
	require.NoError(t, m.Register(testSpec("web", 1, 5, cpuMetric(50))))

	require.NoError(t, m.StartAll(context.Background()))
	defer m.StopAll()

	require.Eventually(t, func() bool {
		return env.cluster.get(testRef("web")) == 4
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManager_Apply(t *testing.T) {
	env := newTestEnv()
	for _, name := range []string{"api", "web", "worker"} {
		env.cluster.set(testRef(name), 2)
	}
	env.source.setValues("cpu", 50, 50)

	m := NewManager(env.deps(), fastOpts(env))
	require.NoError(t, m.Register(testSpec("api", 1, 5, cpuMetric(50))))
	require.NoError(t, m.Register(testSpec("web", 1, 5, cpuMetric(50))))
	require.NoError(t, m.StartAll(context.Background()))
	defer m.StopAll()

	changed := testSpec("web", 1, 8, cpuMetric(50))
	res := m.Apply([]model.WorkloadSpec{changed, testSpec("worker", 1, 5, cpuMetric(50))})

	assert.Equal(t, []string{"deployment/default/worker"}, res.Added)
	assert.Equal(t, []string{"deployment/default/api"}, res.Removed)
	assert.Equal(t, []string{"deployment/default/web"}, res.Updated)
	assert.Equal(t, 2, m.Len())

	_, ok := m.Status(testRef("api"))
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		st, ok := m.Status(testRef("web"))
		return ok && st.Spec.Bounds.MaxReplicas == 8
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		st, ok := m.Status(testRef("worker"))
		return ok && st.LastCycleID != ""
	}, 2*time.Second, 5*time.Millisecond)

	// Unchanged declarations are a no-op.
	res = m.Apply([]model.WorkloadSpec{changed, testSpec("worker", 1, 5, cpuMetric(50))})
	assert.Empty(t, res.Added)
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.Updated)
}

func TestManager_ApplyBeforeStart(t *testing.T) {
	env := newTestEnv()
	m := NewManager(env.deps(), env.opts())

	res := m.Apply([]model.WorkloadSpec{testSpec("web", 1, 5, cpuMetric(50))})
	assert.Equal(t, []string{"deployment/default/web"}, res.Added)
	assert.Equal(t, 1, m.Len())

	st, ok := m.Status(testRef("web"))
	require.True(t, ok)
	assert.Equal(t, PhaseIdle, st.Phase)
}
