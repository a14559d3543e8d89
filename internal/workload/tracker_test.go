package workload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

var webRef = model.WorkloadRef{Kind: model.KindDeployment, Namespace: "default", Name: "web"}

func TestTracker_DeploymentAddUpdateDelete(t *testing.T) {
	env := newTestEnv(t)
	tr := startTracker(t, env, TrackerOptions{ResyncPeriod: testResyncPeriod})

	dep := deployment("default", "web", 3)
	_, err := env.client.AppsV1().Deployments("default").Create(env.ctx, dep, metav1.CreateOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := tr.CurrentReplicas(env.ctx, webRef)
		return err == nil && n == 3
	}, waitTimeout, pollInterval)

	dep.Spec.Replicas = ptr.To(int32(5))
	_, err = env.client.AppsV1().Deployments("default").Update(env.ctx, dep, metav1.UpdateOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, _ := tr.CurrentReplicas(env.ctx, webRef)
		return n == 5
	}, waitTimeout, pollInterval)

	err = env.client.AppsV1().Deployments("default").Delete(env.ctx, "web", metav1.DeleteOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := tr.CurrentReplicas(env.ctx, webRef)
		return err != nil
	}, waitTimeout, pollInterval)
	_, err = tr.CurrentReplicas(env.ctx, webRef)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTracker_StatefulSet(t *testing.T) {
	env := newTestEnv(t)
	tr := startTracker(t, env, TrackerOptions{})

	_, err := env.client.AppsV1().StatefulSets("data").Create(env.ctx, statefulSet("data", "queue", 2), metav1.CreateOptions{})
	require.NoError(t, err)

	ref := model.WorkloadRef{Kind: model.KindStatefulSet, Namespace: "data", Name: "queue"}
	require.Eventually(t, func() bool {
		_, ok := tr.Workload(ref)
		return ok
	}, waitTimeout, pollInterval)

	info, _ := tr.Workload(ref)
	assert.Equal(t, int32(2), info.Replicas)
	assert.Equal(t, "app=queue", info.Selector)

	// A Deployment with the same name is a different workload.
	_, err = tr.CurrentReplicas(env.ctx, model.WorkloadRef{Kind: model.KindDeployment, Namespace: "data", Name: "queue"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTracker_NotSynced(t *testing.T) {
	env := newTestEnv(t)
	tr := NewTracker(env.client, env.store, env.metrics, TrackerOptions{})

	_, err := tr.CurrentReplicas(context.Background(), webRef)
	assert.ErrorIs(t, err, ErrNotSynced)
	assert.False(t, tr.Synced())
	tr.Stop()
}

func TestTracker_NamespaceFilter(t *testing.T) {
	env := newTestEnv(t)
	tr := startTracker(t, env, TrackerOptions{Namespaces: []string{"prod"}})

	_, err := env.client.AppsV1().Deployments("prod").Create(env.ctx, deployment("prod", "web", 2), metav1.CreateOptions{})
	require.NoError(t, err)
	_, err = env.client.AppsV1().Deployments("dev").Create(env.ctx, deployment("dev", "web", 2), metav1.CreateOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return env.store.Workloads.Len() == 1
	}, waitTimeout, pollInterval)

	_, ok := tr.Workload(model.WorkloadRef{Kind: model.KindDeployment, Namespace: "dev", Name: "web"})
	assert.False(t, ok)
}

func TestTracker_Pods(t *testing.T) {
	env := newTestEnv(t)
	tr := startTracker(t, env, TrackerOptions{WatchPods: true})

	_, err := env.client.AppsV1().Deployments("default").Create(env.ctx, deployment("default", "web", 2), metav1.CreateOptions{})
	require.NoError(t, err)
	for _, p := range []struct{ name, app string }{{"web-1", "web"}, {"web-2", "web"}, {"api-1", "api"}} {
		_, err := env.client.CoreV1().Pods("default").Create(env.ctx, runningPod("default", p.name, p.app, "100m"), metav1.CreateOptions{})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		pods, err := tr.Pods(webRef)
		return err == nil && len(pods) == 2
	}, waitTimeout, pollInterval)

	err = env.client.CoreV1().Pods("default").Delete(env.ctx, "web-1", metav1.DeleteOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		pods, _ := tr.Pods(webRef)
		return len(pods) == 1 && pods[0].Name == "web-2"
	}, waitTimeout, pollInterval)
}

func TestTracker_PodsDisabled(t *testing.T) {
	env := newTestEnv(t)
	tr := startTracker(t, env, TrackerOptions{})

	_, err := tr.Pods(webRef)
	assert.Error(t, err)
}
