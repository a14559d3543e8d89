// Package source provides the metric sources the reconcilers sample:
// metrics-server for resource utilization and Prometheus for custom
// metrics.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/controller"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/observability"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// Router dispatches each metric to the source of its kind. It implements
// controller.MetricSource.
type Router struct {
	sources map[model.MetricKind]controller.MetricSource
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{sources: make(map[model.MetricKind]controller.MetricSource)}
}

// Handle registers src for kind, replacing any earlier registration.
func (r *Router) Handle(kind model.MetricKind, src controller.MetricSource) *Router {
	r.sources[kind] = src
	return r
}

// Sample forwards to the source registered for spec.Kind.
func (r *Router) Sample(ctx context.Context, ref model.WorkloadRef, spec model.MetricSpec) (map[string]model.MetricSample, error) {
	src, ok := r.sources[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("no source configured for %s metrics", spec.Kind)
	}
	return src.Sample(ctx, ref, spec)
}

// observe records the outcome of one source request.
func observe(m *observability.Metrics, source string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SourceRequestDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	m.SourceRequestsTotal.WithLabelValues(source, status).Inc()
}
