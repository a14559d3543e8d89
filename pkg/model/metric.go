package model

import "time"

// MetricKind distinguishes per-instance resource utilization from
// arbitrary custom metrics.
type MetricKind string

// Supported metric kinds.
const (
	MetricKindResource MetricKind = "Resource"
	MetricKindCustom   MetricKind = "Custom"
)

// Reduction names how custom metric samples are combined into one value.
type Reduction string

// Named reductions for custom metrics. An empty Reduction means mean.
const (
	ReductionMean   Reduction = "mean"
	ReductionMax    Reduction = "max"
	ReductionMin    Reduction = "min"
	ReductionMedian Reduction = "median"
)

// DefaultInstanceLabel is the query result label that identifies an instance.
const DefaultInstanceLabel = "pod"

// MetricSpec describes one metric that participates in scaling decisions.
// It is immutable once loaded.
type MetricSpec struct {
	Kind              MetricKind `json:"kind"`
	Name              string     `json:"name"`
	TargetUtilization float64    `json:"target_utilization"`

	// Custom metrics only.
	Query         string    `json:"query,omitempty"`
	InstanceLabel string    `json:"instance_label,omitempty"`
	Reduction     Reduction `json:"reduction,omitempty"`
}

// MetricSample is the most recent observation of a metric for one instance.
type MetricSample struct {
	InstanceID string    `json:"instance_id"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}
