package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	prommodel "github.com/prometheus/common/model"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/observability"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// PrometheusSource evaluates custom metric queries against Prometheus or a
// compatible API.
type PrometheusSource struct {
	api     promv1.API
	timeout time.Duration
	metrics *observability.Metrics
	now     func() time.Time
}

// PrometheusOption configures the Prometheus source.
type PrometheusOption func(*PrometheusSource)

// WithTimeout sets the per-query timeout.
func WithTimeout(d time.Duration) PrometheusOption {
	return func(s *PrometheusSource) { s.timeout = d }
}

// WithMetrics records request counts and latency.
func WithMetrics(m *observability.Metrics) PrometheusOption {
	return func(s *PrometheusSource) { s.metrics = m }
}

// NewPrometheusSource creates a source connected to the given endpoint. A
// nil rt uses the client's default transport.
func NewPrometheusSource(endpoint string, rt http.RoundTripper, opts ...PrometheusOption) (*PrometheusSource, error) {
	client, err := promapi.NewClient(promapi.Config{
		Address:      endpoint,
		RoundTripper: rt,
	})
	if err != nil {
		return nil, fmt.Errorf("creating prometheus client: %w", err)
	}
	return NewPrometheusSourceFromAPI(promv1.NewAPI(client), opts...), nil
}

// NewPrometheusSourceFromAPI creates a source over an existing API client.
func NewPrometheusSourceFromAPI(api promv1.API, opts ...PrometheusOption) *PrometheusSource {
	s := &PrometheusSource{
		api:     api,
		timeout: 10 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks that the endpoint answers queries.
func (s *PrometheusSource) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, _, err := s.api.Query(ctx, "vector(1)", s.now()); err != nil {
		return fmt.Errorf("prometheus unreachable: %w", err)
	}
	return nil
}

// Sample runs the metric query and maps each series to the instance named
// by its InstanceLabel. Series without that label, or with a duplicate
// one, are dropped.
func (s *PrometheusSource) Sample(ctx context.Context, ref model.WorkloadRef, spec model.MetricSpec) (samples map[string]model.MetricSample, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "prometheus", start, err) }()

	query := RenderQuery(spec.Query, ref)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, warnings, err := s.api.Query(ctx, query, s.now())
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	if len(warnings) > 0 {
		slog.Debug("prometheus query returned warnings", "workload", ref.String(), "metric", spec.Name, "warnings", warnings)
	}

	label := prommodel.LabelName(spec.InstanceLabel)
	if label == "" {
		label = model.DefaultInstanceLabel
	}

	switch v := result.(type) {
	case prommodel.Vector:
		samples = make(map[string]model.MetricSample, len(v))
		for _, sample := range v {
			id := string(sample.Metric[label])
			if id == "" {
				continue
			}
			if _, dup := samples[id]; dup {
				slog.Warn("query returned several series for one instance, keeping the first",
					"workload", ref.String(), "metric", spec.Name, "instance", id)
				continue
			}
			samples[id] = model.MetricSample{
				InstanceID: id,
				Value:      float64(sample.Value),
				Timestamp:  sample.Timestamp.Time(),
			}
		}
		return samples, nil
	case *prommodel.Scalar:
		// A scalar describes the workload as a whole.
		return map[string]model.MetricSample{
			ref.Name: {InstanceID: ref.Name, Value: float64(v.Value), Timestamp: v.Timestamp.Time()},
		}, nil
	default:
		return nil, fmt.Errorf("query %q returned unsupported result type %s", query, result.Type())
	}
}

// RenderQuery substitutes the workload placeholders {{namespace}},
// {{name}} and {{kind}} in a query template.
func RenderQuery(tmpl string, ref model.WorkloadRef) string {
	return strings.NewReplacer(
		"{{namespace}}", ref.Namespace,
		"{{name}}", ref.Name,
		"{{kind}}", string(ref.Kind),
	).Replace(tmpl)
}
