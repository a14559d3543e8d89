package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	autoscalererrors "github.com/kubeadapt/kubeadapt-autoscaler/internal/errors"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// Limits mirrored from the HorizontalPodAutoscaler API.
const (
	maxStabilizationWindowSeconds = 3600
	maxStepPeriodSeconds          = 1800
	defaultMinReplicas            = 1
)

// WorkloadsFile is the on-disk declaration document.
type WorkloadsFile struct {
	Workloads []WorkloadDecl `mapstructure:"workloads" json:"workloads"`
}

// WorkloadDecl declares one managed workload. Field names follow the
// HorizontalPodAutoscaler so existing manifests translate directly.
type WorkloadDecl struct {
	Kind        string        `mapstructure:"kind" json:"kind"`
	Namespace   string        `mapstructure:"namespace" json:"namespace,omitempty"`
	Name        string        `mapstructure:"name" json:"name"`
	MinReplicas *int32        `mapstructure:"minReplicas" json:"minReplicas,omitempty"`
	MaxReplicas int32         `mapstructure:"maxReplicas" json:"maxReplicas"`
	Tolerance   float64       `mapstructure:"tolerance" json:"tolerance,omitempty"`
	Metrics     []MetricDecl  `mapstructure:"metrics" json:"metrics"`
	Behavior    *BehaviorDecl `mapstructure:"behavior" json:"behavior,omitempty"`
}

// MetricDecl declares one metric of a workload.
type MetricDecl struct {
	Type              string  `mapstructure:"type" json:"type"`
	Name              string  `mapstructure:"name" json:"name"`
	TargetUtilization float64 `mapstructure:"targetUtilization" json:"targetUtilization"`
	Query             string  `mapstructure:"query" json:"query,omitempty"`
	InstanceLabel     string  `mapstructure:"instanceLabel" json:"instanceLabel,omitempty"`
	Reduction         string  `mapstructure:"reduction" json:"reduction,omitempty"`
}

// BehaviorDecl configures scale-up and scale-down separately. A nil
// direction keeps its defaults.
type BehaviorDecl struct {
	ScaleUp   *DirectionDecl `mapstructure:"scaleUp" json:"scaleUp,omitempty"`
	ScaleDown *DirectionDecl `mapstructure:"scaleDown" json:"scaleDown,omitempty"`
}

// DirectionDecl configures one scaling direction. Disabled turns the
// direction off; an empty step list otherwise means the default steps.
type DirectionDecl struct {
	StabilizationWindowSeconds *int32     `mapstructure:"stabilizationWindowSeconds" json:"stabilizationWindowSeconds,omitempty"`
	Steps                      []StepDecl `mapstructure:"steps" json:"steps,omitempty"`
	Disabled                   bool       `mapstructure:"disabled" json:"disabled,omitempty"`
}

// StepDecl is one rate limit of a direction.
type StepDecl struct {
	Type          string `mapstructure:"type" json:"type"`
	Value         int32  `mapstructure:"value" json:"value"`
	PeriodSeconds int32  `mapstructure:"periodSeconds" json:"periodSeconds"`
}

// WorkloadSet is the outcome of loading a declaration file. Invalid
// workloads are rejected one by one; the rest are still usable.
type WorkloadSet struct {
	Specs    []model.WorkloadSpec
	Rejected []error
}

// LoadWorkloads reads and validates the declaration file at path. An
// unreadable or unparsable file is an error; invalid workloads are listed
// in WorkloadSet.Rejected.
func LoadWorkloads(path string) (*WorkloadSet, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configType(path))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read workloads file %s: %w", path, err)
	}
	return ParseWorkloads(v)
}

// ParseWorkloads decodes and validates the declarations held by v.
func ParseWorkloads(v *viper.Viper) (*WorkloadSet, error) {
	var file WorkloadsFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode workloads: %w", err)
	}
	return file.Resolve(), nil
}

// Resolve validates every declaration. Later duplicates of a workload are
// rejected.
func (f WorkloadsFile) Resolve() *WorkloadSet {
	set := &WorkloadSet{}
	seen := make(map[string]struct{}, len(f.Workloads))
	for i, decl := range f.Workloads {
		spec, err := decl.ToSpec()
		if err != nil {
			set.Rejected = append(set.Rejected, fmt.Errorf("workloads[%d]: %w", i, err))
			continue
		}
		id := spec.Ref.String()
		if _, dup := seen[id]; dup {
			set.Rejected = append(set.Rejected, fmt.Errorf("workloads[%d]: %w: duplicate workload %s",
				i, autoscalererrors.ErrInvalidConfiguration, id))
			continue
		}
		seen[id] = struct{}{}
		set.Specs = append(set.Specs, spec)
	}
	return set
}

func configType(path string) string {
	if strings.HasSuffix(path, ".json") {
		return "json"
	}
	return "yaml"
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", autoscalererrors.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// ToSpec validates the declaration and applies defaults.
func (d WorkloadDecl) ToSpec() (model.WorkloadSpec, error) {
	kind, ok := model.ParseWorkloadKind(d.Kind)
	if !ok {
		return model.WorkloadSpec{}, invalid("unsupported kind %q", d.Kind)
	}
	if d.Name == "" {
		return model.WorkloadSpec{}, invalid("name is required")
	}
	ns := d.Namespace
	if ns == "" {
		ns = "default"
	}
	ref := model.WorkloadRef{Kind: kind, Namespace: ns, Name: d.Name}

	minReplicas := int32(defaultMinReplicas)
	if d.MinReplicas != nil {
		minReplicas = *d.MinReplicas
	}
	if minReplicas < 0 {
		return model.WorkloadSpec{}, invalid("%s: minReplicas must be >= 0, got %d", ref, minReplicas)
	}
	// maxReplicas 0 with minReplicas 0 parks the workload at zero.
	if d.MaxReplicas < minReplicas {
		return model.WorkloadSpec{}, invalid("%s: maxReplicas must be >= minReplicas (%d), got %d", ref, minReplicas, d.MaxReplicas)
	}
	if d.Tolerance < 0 || math.IsNaN(d.Tolerance) || math.IsInf(d.Tolerance, 0) {
		return model.WorkloadSpec{}, invalid("%s: tolerance must be a finite value >= 0", ref)
	}

	if len(d.Metrics) == 0 {
		return model.WorkloadSpec{}, invalid("%s: at least one metric is required", ref)
	}
	metrics := make([]model.MetricSpec, 0, len(d.Metrics))
	names := make(map[string]struct{}, len(d.Metrics))
	for _, m := range d.Metrics {
		spec, err := m.toSpec()
		if err != nil {
			return model.WorkloadSpec{}, fmt.Errorf("%s: %w", ref, err)
		}
		if _, dup := names[spec.Name]; dup {
			return model.WorkloadSpec{}, invalid("%s: metric %q declared twice", ref, spec.Name)
		}
		names[spec.Name] = struct{}{}
		metrics = append(metrics, spec)
	}

	policy, err := d.Behavior.toPolicy()
	if err != nil {
		return model.WorkloadSpec{}, fmt.Errorf("%s: %w", ref, err)
	}

	return model.WorkloadSpec{
		Ref:       ref,
		Bounds:    model.ScalingBounds{MinReplicas: minReplicas, MaxReplicas: d.MaxReplicas},
		Metrics:   metrics,
		Policy:    policy,
		Tolerance: d.Tolerance,
	}, nil
}

func (m MetricDecl) toSpec() (model.MetricSpec, error) {
	if m.Name == "" {
		return model.MetricSpec{}, invalid("metric name is required")
	}
	if !(m.TargetUtilization > 0) || math.IsInf(m.TargetUtilization, 0) {
		return model.MetricSpec{}, invalid("metric %q: targetUtilization must be > 0", m.Name)
	}

	spec := model.MetricSpec{
		Name:              m.Name,
		TargetUtilization: m.TargetUtilization,
		Query:             m.Query,
		InstanceLabel:     m.InstanceLabel,
		Reduction:         model.Reduction(strings.ToLower(m.Reduction)),
	}
	switch strings.ToLower(m.Type) {
	case "resource":
		spec.Kind = model.MetricKindResource
		if m.Name != "cpu" && m.Name != "memory" {
			return model.MetricSpec{}, invalid("resource metric must be cpu or memory, got %q", m.Name)
		}
		if m.Query != "" || m.Reduction != "" {
			return model.MetricSpec{}, invalid("resource metric %q does not take query or reduction", m.Name)
		}
	case "custom":
		spec.Kind = model.MetricKindCustom
		if m.Query == "" {
			return model.MetricSpec{}, invalid("custom metric %q: query is required", m.Name)
		}
		switch spec.Reduction {
		case "", model.ReductionMean, model.ReductionMax, model.ReductionMin, model.ReductionMedian:
		default:
			return model.MetricSpec{}, invalid("custom metric %q: unknown reduction %q", m.Name, m.Reduction)
		}
		if spec.InstanceLabel == "" {
			spec.InstanceLabel = model.DefaultInstanceLabel
		}
	default:
		return model.MetricSpec{}, invalid("metric %q: unsupported type %q", m.Name, m.Type)
	}
	return spec, nil
}

func (b *BehaviorDecl) toPolicy() (model.ScalingPolicy, error) {
	var up, down *DirectionDecl
	if b != nil {
		up, down = b.ScaleUp, b.ScaleDown
	}
	upPolicy, err := up.toPolicy(model.DefaultScaleUpPolicy())
	if err != nil {
		return model.ScalingPolicy{}, fmt.Errorf("scaleUp: %w", err)
	}
	downPolicy, err := down.toPolicy(model.DefaultScaleDownPolicy())
	if err != nil {
		return model.ScalingPolicy{}, fmt.Errorf("scaleDown: %w", err)
	}
	return model.ScalingPolicy{ScaleUp: upPolicy, ScaleDown: downPolicy}, nil
}

func (d *DirectionDecl) toPolicy(defaults model.DirectionPolicy) (model.DirectionPolicy, error) {
	if d == nil {
		return defaults, nil
	}

	out := model.DirectionPolicy{StabilizationWindow: defaults.StabilizationWindow}
	if d.StabilizationWindowSeconds != nil {
		w := *d.StabilizationWindowSeconds
		if w < 0 || w > maxStabilizationWindowSeconds {
			return model.DirectionPolicy{}, invalid("stabilizationWindowSeconds must be 0-%d, got %d", maxStabilizationWindowSeconds, w)
		}
		out.StabilizationWindow = time.Duration(w) * time.Second
	}

	switch {
	case d.Disabled && len(d.Steps) > 0:
		return model.DirectionPolicy{}, invalid("disabled direction must not declare steps")
	case d.Disabled:
		return out, nil
	case len(d.Steps) == 0:
		out.Steps = defaults.Steps
		return out, nil
	}

	for _, s := range d.Steps {
		step, err := s.toStep()
		if err != nil {
			return model.DirectionPolicy{}, err
		}
		out.Steps = append(out.Steps, step)
	}
	return out, nil
}

func (s StepDecl) toStep() (model.Step, error) {
	var typ model.StepType
	switch strings.ToLower(s.Type) {
	case "percent":
		typ = model.StepPercent
	case "pods":
		typ = model.StepPods
	default:
		return model.Step{}, invalid("unsupported step type %q", s.Type)
	}
	if s.Value <= 0 {
		return model.Step{}, invalid("step value must be > 0, got %d", s.Value)
	}
	if s.PeriodSeconds <= 0 || s.PeriodSeconds > maxStepPeriodSeconds {
		return model.Step{}, invalid("step periodSeconds must be 1-%d, got %d", maxStepPeriodSeconds, s.PeriodSeconds)
	}
	return model.Step{Type: typ, Value: s.Value, PeriodSeconds: s.PeriodSeconds}, nil
}

// Errors joins the rejections into one error, or nil when none.
func (s *WorkloadSet) Errors() error {
	return errors.Join(s.Rejected...)
}
