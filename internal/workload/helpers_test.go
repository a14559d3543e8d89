package workload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/ptr"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/observability"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/store"
)

const (
	testResyncPeriod = 0 // no resync in tests
	waitTimeout      = 5 * time.Second
	pollInterval     = 50 * time.Millisecond
)

type testEnv struct {
	client  *fake.Clientset
	store   *store.Store
	metrics *observability.Metrics
	ctx     context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &testEnv{
		client:  fake.NewSimpleClientset(),
		store:   store.New(),
		metrics: observability.NewMetrics(),
		ctx:     ctx,
	}
}

func startTracker(t *testing.T, env *testEnv, opts TrackerOptions) *Tracker {
	t.Helper()
	tr := NewTracker(env.client, env.store, env.metrics, opts)
	require.NoError(t, tr.Start(env.ctx), "Start() should succeed")
	require.NoError(t, tr.WaitForSync(env.ctx), "WaitForSync() should succeed")
	t.Cleanup(tr.Stop)
	return tr
}

func deployment(ns, name string, replicas int32) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(replicas),
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": name}},
		},
	}
}

func statefulSet(ns, name string, replicas int32) *appsv1.StatefulSet {
	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		Spec: appsv1.StatefulSetSpec{
			Replicas: ptr.To(replicas),
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": name}},
		},
	}
}

func runningPod(ns, name, app, cpu string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, Labels: map[string]string{"app": app}},
		Spec: corev1.PodSpec{Containers: []corev1.Container{{
			Name: "app",
			Resources: corev1.ResourceRequirements{Requests: corev1.ResourceList{
				corev1.ResourceCPU: resource.MustParse(cpu),
			}},
		}}},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}
}
