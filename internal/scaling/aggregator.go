// Package scaling holds the decision logic of the autoscaler: turning raw
// samples into a utilization ratio, a ratio into a desired replica count,
// several desired counts into one candidate, and a candidate into a final,
// rate-limited replica count.
package scaling

import (
	"fmt"
	"math"
	"sort"
	"time"

	autoscalererrors "github.com/kubeadapt/kubeadapt-autoscaler/internal/errors"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// Reducer combines custom metric values into one value. It is never called
// with an empty slice.
type Reducer func(values []float64) float64

// Aggregator reduces per-instance samples into a utilization ratio.
type Aggregator struct {
	freshness time.Duration
	reducers  map[model.Reduction]Reducer
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithReducer registers a reduction for custom metrics under name,
// overriding a built-in one of the same name.
func WithReducer(name model.Reduction, fn Reducer) AggregatorOption {
	return func(a *Aggregator) { a.reducers[name] = fn }
}

// NewAggregator creates an Aggregator that ignores samples older than
// freshness. A zero freshness accepts samples of any age.
func NewAggregator(freshness time.Duration, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		freshness: freshness,
		reducers: map[model.Reduction]Reducer{
			model.ReductionMean:   Mean,
			model.ReductionMax:    Max,
			model.ReductionMin:    Min,
			model.ReductionMedian: Median,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate returns the utilization ratio of spec over the fresh samples.
// Instances without a fresh sample are left out. When no instance reported
// within the freshness window the error wraps ErrMetricUnavailable: the
// caller must not read that as zero utilization.
func (a *Aggregator) Aggregate(spec model.MetricSpec, samples map[string]model.MetricSample, now time.Time) (float64, error) {
	if spec.TargetUtilization <= 0 {
		return 0, fmt.Errorf("%s: target utilization %v: %w", spec.Name, spec.TargetUtilization, autoscalererrors.ErrMetricUnavailable)
	}

	values := a.freshValues(samples, now)
	if len(values) == 0 {
		return 0, fmt.Errorf("%s: no samples within %s of %d instances: %w",
			spec.Name, a.freshness, len(samples), autoscalererrors.ErrMetricUnavailable)
	}

	var ratio float64
	switch spec.Kind {
	case model.MetricKindResource:
		var sum float64
		for _, v := range values {
			sum += v
		}
		ratio = sum / (float64(len(values)) * spec.TargetUtilization)
	case model.MetricKindCustom:
		reduction := spec.Reduction
		if reduction == "" {
			reduction = model.ReductionMean
		}
		reduce, ok := a.reducers[reduction]
		if !ok {
			return 0, fmt.Errorf("%s: unknown reduction %q: %w", spec.Name, reduction, autoscalererrors.ErrMetricUnavailable)
		}
		ratio = reduce(values) / spec.TargetUtilization
	default:
		return 0, fmt.Errorf("%s: unknown metric kind %q: %w", spec.Name, spec.Kind, autoscalererrors.ErrMetricUnavailable)
	}

	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0, fmt.Errorf("%s: non-finite ratio: %w", spec.Name, autoscalererrors.ErrMetricUnavailable)
	}
	return ratio, nil
}

func (a *Aggregator) freshValues(samples map[string]model.MetricSample, now time.Time) []float64 {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if a.freshness > 0 && now.Sub(s.Timestamp) > a.freshness {
			continue
		}
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		values = append(values, s.Value)
	}
	return values
}

// Mean is the arithmetic mean.
func Mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Max returns the largest value.
func Max(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Min returns the smallest value.
func Min(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Median returns the middle value, averaging the two middle values of an
// even-length input.
func Median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
