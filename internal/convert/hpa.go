package convert

import (
	"fmt"
	"strings"

	autoscalingv2 "k8s.io/api/autoscaling/v2"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/config"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// HPAConversion is the declaration derived from one HorizontalPodAutoscaler
// plus the parts of it that have no equivalent.
type HPAConversion struct {
	Decl    config.WorkloadDecl
	Skipped []string
}

// HPAToDecl converts a HorizontalPodAutoscaler (v2) to a workload
// declaration. Only resource utilization metrics translate; every metric or
// behavior setting that cannot be expressed is listed in Skipped. The
// result still needs config validation.
func HPAToDecl(hpa *autoscalingv2.HorizontalPodAutoscaler) HPAConversion {
	var conv HPAConversion
	ref := hpa.Namespace + "/" + hpa.Name

	conv.Decl = config.WorkloadDecl{
		Kind:        hpa.Spec.ScaleTargetRef.Kind,
		Namespace:   hpa.Namespace,
		Name:        hpa.Spec.ScaleTargetRef.Name,
		MinReplicas: hpa.Spec.MinReplicas,
		MaxReplicas: hpa.Spec.MaxReplicas,
	}
	if _, ok := model.ParseWorkloadKind(conv.Decl.Kind); !ok {
		conv.skip("%s: scale target kind %q is not supported", ref, conv.Decl.Kind)
	}

	for i, m := range hpa.Spec.Metrics {
		decl, ok := convertHPAMetric(m)
		if !ok {
			conv.skip("%s: metrics[%d]: %s metric has no equivalent", ref, i, describeMetric(m))
			continue
		}
		conv.Decl.Metrics = append(conv.Decl.Metrics, decl)
	}

	if b := hpa.Spec.Behavior; b != nil {
		conv.Decl.Behavior = &config.BehaviorDecl{}
		if b.ScaleUp != nil {
			conv.Decl.Behavior.ScaleUp = conv.convertRules(ref, "scaleUp", b.ScaleUp, autoscalingv2.MaxChangePolicySelect)
		}
		if b.ScaleDown != nil {
			conv.Decl.Behavior.ScaleDown = conv.convertRules(ref, "scaleDown", b.ScaleDown, autoscalingv2.MinChangePolicySelect)
		}
		conv.Decl.Tolerance = conv.convertTolerance(ref, b)
	}
	return conv
}

func (c *HPAConversion) skip(format string, args ...any) {
	c.Skipped = append(c.Skipped, fmt.Sprintf(format, args...))
}

// convertHPAMetric maps a Resource metric with a utilization target.
func convertHPAMetric(m autoscalingv2.MetricSpec) (config.MetricDecl, bool) {
	if m.Type != autoscalingv2.ResourceMetricSourceType || m.Resource == nil {
		return config.MetricDecl{}, false
	}
	target := m.Resource.Target
	if target.Type != autoscalingv2.UtilizationMetricType || target.AverageUtilization == nil {
		return config.MetricDecl{}, false
	}
	return config.MetricDecl{
		Type:              string(model.MetricKindResource),
		Name:              string(m.Resource.Name),
		TargetUtilization: float64(*target.AverageUtilization),
	}, true
}

func describeMetric(m autoscalingv2.MetricSpec) string {
	if m.Type == autoscalingv2.ResourceMetricSourceType && m.Resource != nil {
		return fmt.Sprintf("Resource %s with %s target", m.Resource.Name, m.Resource.Target.Type)
	}
	return string(m.Type)
}

// convertRules maps one direction. natural is the select policy this
// controller always applies for the direction; any other is reported.
func (c *HPAConversion) convertRules(ref, dir string, rules *autoscalingv2.HPAScalingRules, natural autoscalingv2.ScalingPolicySelect) *config.DirectionDecl {
	d := &config.DirectionDecl{StabilizationWindowSeconds: rules.StabilizationWindowSeconds}
	if rules.SelectPolicy != nil {
		switch *rules.SelectPolicy {
		case autoscalingv2.DisabledPolicySelect:
			d.Disabled = true
			return d
		case natural:
		default:
			c.skip("%s: %s.selectPolicy %s replaced by %s", ref, dir, *rules.SelectPolicy, natural)
		}
	}
	for _, p := range rules.Policies {
		d.Steps = append(d.Steps, config.StepDecl{
			Type:          stepType(p.Type),
			Value:         p.Value,
			PeriodSeconds: p.PeriodSeconds,
		})
	}
	return d
}

func stepType(t autoscalingv2.HPAScalingPolicyType) string {
	if t == autoscalingv2.PercentScalingPolicy {
		return string(model.StepPercent)
	}
	return string(model.StepPods)
}

// convertTolerance folds the per-direction tolerances into the single
// workload tolerance, keeping the smaller one.
func (c *HPAConversion) convertTolerance(ref string, b *autoscalingv2.HorizontalPodAutoscalerBehavior) float64 {
	var values []float64
	for _, rules := range []*autoscalingv2.HPAScalingRules{b.ScaleUp, b.ScaleDown} {
		if rules != nil && rules.Tolerance != nil {
			values = append(values, ParseQuantity(*rules.Tolerance))
		}
	}
	switch len(values) {
	case 0:
		return 0
	case 1:
		return values[0]
	}
	if values[0] != values[1] {
		c.skip("%s: asymmetric tolerances %s collapsed to %g", ref,
			strings.Trim(fmt.Sprint(values), "[]"), min(values[0], values[1]))
	}
	return min(values[0], values[1])
}
