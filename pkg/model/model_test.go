package model

import (
	"encoding/json"
	"testing"
	"time"
)

// assertJSONFieldAbsent verifies that a JSON key is absent when a field is zero/nil (omitempty).
func assertJSONFieldAbsent(t *testing.T, data []byte, key string) {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal to map: %v", err)
	}
	if _, ok := m[key]; ok {
		t.Errorf("expected JSON key %q to be absent (omitempty), but it was present", key)
	}
}

// assertJSONFieldPresent verifies that a JSON key is present.
func assertJSONFieldPresent(t *testing.T, data []byte, key string) {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal to map: %v", err)
	}
	if _, ok := m[key]; !ok {
		t.Errorf("expected JSON key %q to be present, but it was absent", key)
	}
}

// --- Workload identity ---

func TestWorkloadRef_String(t *testing.T) {
	ref := WorkloadRef{Kind: KindStatefulSet, Namespace: "db", Name: "pg"}
	if got := ref.String(); got != "statefulset/db/pg" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseWorkloadRef(t *testing.T) {
	tests := []struct {
		in      string
		want    WorkloadRef
		wantErr bool
	}{
		{in: "deployment/default/api", want: WorkloadRef{Kind: KindDeployment, Namespace: "default", Name: "api"}},
		{in: "StatefulSet/db/pg", want: WorkloadRef{Kind: KindStatefulSet, Namespace: "db", Name: "pg"}},
		{in: "daemonset/kube-system/agent", wantErr: true},
		{in: "deployment/default", wantErr: true},
		{in: "deployment//api", wantErr: true},
		{in: "deployment/default/", wantErr: true},
		{in: "deployment/a/b/c", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseWorkloadRef(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseWorkloadRef(%q) expected error, got %+v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseWorkloadRef(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseWorkloadRef(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if back, _ := ParseWorkloadRef(got.String()); back != got {
			t.Errorf("String() of %+v does not parse back", got)
		}
	}
}

// --- Pods ---

func TestPodInfo_Running(t *testing.T) {
	tests := []struct {
		name string
		pod  PodInfo
		want bool
	}{
		{"running", PodInfo{Phase: "Running"}, true},
		{"pending", PodInfo{Phase: "Pending"}, false},
		{"terminating", PodInfo{Phase: "Running", Deleting: true}, false},
	}
	for _, tt := range tests {
		if got := tt.pod.Running(); got != tt.want {
			t.Errorf("%s: Running() = %v, want %v", tt.name, got, tt.want)
		}
	}
	if key := (PodInfo{Namespace: "ns", Name: "p"}).Key(); key != "ns/p" {
		t.Errorf("Key() = %q", key)
	}
}

func TestPodInfo_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(PodInfo{Namespace: "ns", Name: "p", Phase: "Running"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	assertJSONFieldAbsent(t, data, "requests")
	assertJSONFieldAbsent(t, data, "labels")
	assertJSONFieldAbsent(t, data, "deleting")
	assertJSONFieldPresent(t, data, "ready")
}

// --- Policy ---

func TestScalingBounds(t *testing.T) {
	b := ScalingBounds{MinReplicas: 2, MaxReplicas: 10}
	for in, want := range map[int32]int32{0: 2, 2: 2, 7: 7, 10: 10, 50: 10} {
		if got := b.Clamp(in); got != want {
			t.Errorf("Clamp(%d) = %d, want %d", in, got, want)
		}
	}
	if b.Contains(1) || !b.Contains(2) || !b.Contains(10) || b.Contains(11) {
		t.Error("Contains disagrees with the inclusive bounds")
	}
}

func TestDirectionPolicy_Disabled(t *testing.T) {
	if !(DirectionPolicy{}).Disabled() {
		t.Error("empty steps should disable the direction")
	}
	if DefaultScaleUpPolicy().Disabled() || DefaultScaleDownPolicy().Disabled() {
		t.Error("defaults should allow scaling")
	}
}

func TestScalingPolicy_Retention(t *testing.T) {
	p := ScalingPolicy{ScaleUp: DefaultScaleUpPolicy(), ScaleDown: DefaultScaleDownPolicy()}
	if got := p.Retention(); got != 300*time.Second {
		t.Errorf("Retention() = %v, want 5m", got)
	}

	p.ScaleDown.StabilizationWindow = 0
	p.ScaleUp.Steps = append(p.ScaleUp.Steps, Step{Type: StepPods, Value: 1, PeriodSeconds: 600})
	if got := p.Retention(); got != 600*time.Second {
		t.Errorf("Retention() = %v, want the longest step period", got)
	}
}

// --- Audit wire format ---

func TestAuditEvent_JSONShape(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := AuditEvent{
		ID:           "e1",
		Type:         EventCycleCompleted,
		ControllerID: "ctl",
		Payload: CycleCompleted{
			Workload: "deployment/default/api", CycleID: "c1",
			Current: 2, Candidate: 4, Final: 4, Direction: DirectionUp,
			Duration: 15 * time.Millisecond, Timestamp: ts,
		},
		Timestamp: ts,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Type != "cycle_completed" {
		t.Errorf("type = %q", out.Type)
	}
	if out.Payload["direction"] != "up" || out.Payload["final"] != float64(4) {
		t.Errorf("unexpected payload %v", out.Payload)
	}
	if out.Payload["duration_ns"] != float64(15*time.Millisecond) {
		t.Errorf("duration_ns = %v", out.Payload["duration_ns"])
	}
}

func TestMetricSpec_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(MetricSpec{Kind: MetricKindResource, Name: "cpu", TargetUtilization: 0.7})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	assertJSONFieldAbsent(t, data, "query")
	assertJSONFieldAbsent(t, data, "reduction")
	assertJSONFieldPresent(t, data, "target_utilization")
}
