package convert

import (
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// DeploymentToInfo converts a Kubernetes Deployment to model.WorkloadInfo.
// Pure function, no side effects.
func DeploymentToInfo(dep *appsv1.Deployment) model.WorkloadInfo {
	return model.WorkloadInfo{
		Ref: model.WorkloadRef{
			Kind:      model.KindDeployment,
			Namespace: dep.Namespace,
			Name:      dep.Name,
		},
		UID:           string(dep.UID),
		Replicas:      specReplicas(dep.Spec.Replicas),
		ReadyReplicas: dep.Status.ReadyReplicas,
		Selector:      selectorString(dep.Spec.Selector),
		Labels:        copyLabels(dep.Labels),
		Generation:    dep.Generation,
	}
}

// StatefulSetToInfo converts a Kubernetes StatefulSet to model.WorkloadInfo.
// Pure function, no side effects.
func StatefulSetToInfo(ss *appsv1.StatefulSet) model.WorkloadInfo {
	return model.WorkloadInfo{
		Ref: model.WorkloadRef{
			Kind:      model.KindStatefulSet,
			Namespace: ss.Namespace,
			Name:      ss.Name,
		},
		UID:           string(ss.UID),
		Replicas:      specReplicas(ss.Spec.Replicas),
		ReadyReplicas: ss.Status.ReadyReplicas,
		Selector:      selectorString(ss.Spec.Selector),
		Labels:        copyLabels(ss.Labels),
		Generation:    ss.Generation,
	}
}

// specReplicas applies the API server default of 1 for an unset field.
func specReplicas(r *int32) int32 {
	if r == nil {
		return 1
	}
	return *r
}

// selectorString renders a label selector in its string form. An invalid or
// missing selector yields "", which matches no pods downstream.
func selectorString(sel *metav1.LabelSelector) string {
	if sel == nil {
		return ""
	}
	s, err := metav1.LabelSelectorAsSelector(sel)
	if err != nil {
		return ""
	}
	return s.String()
}
