// Package workload observes and changes the Kubernetes objects the
// controller scales.
package workload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/convert"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/observability"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/store"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

var (
	// ErrNotFound means the workload is not in the informer cache.
	ErrNotFound = errors.New("workload not found")
	// ErrNotSynced means the informer caches have not been filled yet.
	ErrNotSynced = errors.New("workload cache not synced")
)

// TrackerOptions configure a Tracker.
type TrackerOptions struct {
	// Namespaces limits the watch. Empty means all namespaces.
	Namespaces   []string
	ResyncPeriod time.Duration
	// WatchPods enables the pod informer the resource metric source needs.
	WatchPods bool
}

// Tracker watches Deployments, StatefulSets and optionally Pods via
// SharedInformers and keeps the store current. It implements
// controller.Inspector.
type Tracker struct {
	client  kubernetes.Interface
	store   *store.Store
	metrics *observability.Metrics
	opts    TrackerOptions

	informers []cache.SharedIndexInformer
	synced    atomic.Bool
	stopCh    chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// NewTracker creates a new Tracker.
func NewTracker(client kubernetes.Interface, s *store.Store, m *observability.Metrics, opts TrackerOptions) *Tracker {
	return &Tracker{
		client:  client,
		store:   s,
		metrics: m,
		opts:    opts,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start registers event handlers and begins the informers.
func (t *Tracker) Start(_ context.Context) error {
	namespaces := t.opts.Namespaces
	if len(namespaces) == 0 {
		namespaces = []string{corev1.NamespaceAll}
	}

	for _, ns := range namespaces {
		factory := informers.NewSharedInformerFactoryWithOptions(t.client, t.opts.ResyncPeriod, informers.WithNamespace(ns))

		deployments := factory.Apps().V1().Deployments().Informer()
		if _, err := deployments.AddEventHandler(eventHandler(t, "deployments",
			func(d *appsv1.Deployment) { t.setWorkload(convert.DeploymentToInfo(d)) },
			func(d *appsv1.Deployment) { t.deleteWorkload(model.KindDeployment, d.Namespace, d.Name) },
		)); err != nil {
			return fmt.Errorf("failed to add deployments event handler: %w", err)
		}

		statefulSets := factory.Apps().V1().StatefulSets().Informer()
		if _, err := statefulSets.AddEventHandler(eventHandler(t, "statefulsets",
			func(s *appsv1.StatefulSet) { t.setWorkload(convert.StatefulSetToInfo(s)) },
			func(s *appsv1.StatefulSet) { t.deleteWorkload(model.KindStatefulSet, s.Namespace, s.Name) },
		)); err != nil {
			return fmt.Errorf("failed to add statefulsets event handler: %w", err)
		}
		t.informers = append(t.informers, deployments, statefulSets)

		if t.opts.WatchPods {
			pods := factory.Core().V1().Pods().Informer()
			if _, err := pods.AddEventHandler(eventHandler(t, "pods",
				func(p *corev1.Pod) { t.setPod(convert.PodToInfo(p)) },
				func(p *corev1.Pod) { t.deletePod(p.Namespace, p.Name) },
			)); err != nil {
				return fmt.Errorf("failed to add pods event handler: %w", err)
			}
			t.informers = append(t.informers, pods)
		}
	}

	var wg sync.WaitGroup
	for _, inf := range t.informers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inf.Run(t.stopCh)
		}()
	}
	go func() {
		wg.Wait()
		close(t.done)
	}()
	return nil
}

// WaitForSync blocks until every informer cache is synced or ctx is canceled.
func (t *Tracker) WaitForSync(ctx context.Context) error {
	hasSynced := make([]cache.InformerSynced, 0, len(t.informers))
	for _, inf := range t.informers {
		hasSynced = append(hasSynced, inf.HasSynced)
	}
	if !cache.WaitForCacheSync(ctx.Done(), hasSynced...) {
		return fmt.Errorf("workload informer cache sync failed")
	}
	t.synced.Store(true)
	return nil
}

// Synced reports whether WaitForSync has succeeded.
func (t *Tracker) Synced() bool {
	return t.synced.Load()
}

// Stop signals the informers to stop and waits for them to exit.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
	if len(t.informers) > 0 {
		<-t.done
	}
}

// CurrentReplicas returns spec.replicas of the workload from the cache.
func (t *Tracker) CurrentReplicas(_ context.Context, ref model.WorkloadRef) (int32, error) {
	info, err := t.lookup(ref)
	if err != nil {
		return 0, err
	}
	return info.Replicas, nil
}

// Workload returns the cached state of a workload.
func (t *Tracker) Workload(ref model.WorkloadRef) (model.WorkloadInfo, bool) {
	return t.store.Workloads.Get(store.WorkloadKey(ref))
}

// Pods returns the running pods selected by the workload.
func (t *Tracker) Pods(ref model.WorkloadRef) ([]model.PodInfo, error) {
	if !t.opts.WatchPods {
		return nil, fmt.Errorf("pod watch is disabled")
	}
	info, err := t.lookup(ref)
	if err != nil {
		return nil, err
	}
	if info.Selector == "" {
		return nil, fmt.Errorf("workload %s has no usable selector", ref)
	}
	sel, err := labels.Parse(info.Selector)
	if err != nil {
		return nil, fmt.Errorf("parse selector of %s: %w", ref, err)
	}
	return t.store.PodsInNamespace(ref.Namespace, func(l map[string]string) bool {
		return sel.Matches(labels.Set(l))
	}), nil
}

func (t *Tracker) lookup(ref model.WorkloadRef) (model.WorkloadInfo, error) {
	if !t.Synced() {
		return model.WorkloadInfo{}, ErrNotSynced
	}
	info, ok := t.Workload(ref)
	if !ok {
		return model.WorkloadInfo{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return info, nil
}

func (t *Tracker) setWorkload(info model.WorkloadInfo) {
	t.store.Workloads.Set(store.WorkloadKey(info.Ref), info)
	t.metrics.StoreItems.WithLabelValues("workloads").Set(float64(t.store.Workloads.Len()))
}

func (t *Tracker) deleteWorkload(kind model.WorkloadKind, namespace, name string) {
	t.store.Workloads.Delete(store.WorkloadKey(model.WorkloadRef{Kind: kind, Namespace: namespace, Name: name}))
	t.metrics.StoreItems.WithLabelValues("workloads").Set(float64(t.store.Workloads.Len()))
}

func (t *Tracker) setPod(info model.PodInfo) {
	t.store.Pods.Set(info.Key(), info)
	t.metrics.StoreItems.WithLabelValues("pods").Set(float64(t.store.Pods.Len()))
}

func (t *Tracker) deletePod(namespace, name string) {
	t.store.Pods.Delete(namespace + "/" + name)
	t.metrics.StoreItems.WithLabelValues("pods").Set(float64(t.store.Pods.Len()))
}

// eventHandler adapts typed set/delete callbacks to informer events and
// unwraps delete tombstones.
func eventHandler[T any](t *Tracker, resource string, set, del func(T)) cache.ResourceEventHandlerFuncs {
	return cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			o, ok := obj.(T)
			if !ok {
				return
			}
			set(o)
			t.metrics.InformerEventsTotal.WithLabelValues(resource, "add").Inc()
		},
		UpdateFunc: func(_, newObj interface{}) {
			o, ok := newObj.(T)
			if !ok {
				return
			}
			set(o)
			t.metrics.InformerEventsTotal.WithLabelValues(resource, "update").Inc()
		},
		DeleteFunc: func(obj interface{}) {
			o, ok := obj.(T)
			if !ok {
				tombstone, ok := obj.(cache.DeletedFinalStateUnknown)
				if !ok {
					return
				}
				o, ok = tombstone.Obj.(T)
				if !ok {
					return
				}
			}
			del(o)
			t.metrics.InformerEventsTotal.WithLabelValues(resource, "delete").Inc()
		},
	}
}
