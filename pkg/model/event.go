package model

import "time"

// Direction is the direction of a scaling decision.
type Direction string

// Decision directions.
const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionNone Direction = "none"
)

// EventType names an observability event.
type EventType string

// Observability event types.
const (
	EventCycleCompleted EventType = "cycle_completed"
	EventCycleSkipped   EventType = "cycle_skipped"
	EventMetricFailed   EventType = "metric_failed"
	EventApplyFailed    EventType = "apply_failed"
)

// CycleCompleted is emitted once per cycle that reached a decision.
type CycleCompleted struct {
	Workload  string        `json:"workload"`
	CycleID   string        `json:"cycle_id"`
	Current   int32         `json:"current"`
	Candidate int32         `json:"candidate"`
	Final     int32         `json:"final"`
	Direction Direction     `json:"direction"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// CycleSkipped is emitted when a cycle held the replica count without a
// decision, e.g. because no metric could be evaluated.
type CycleSkipped struct {
	Workload  string        `json:"workload"`
	CycleID   string        `json:"cycle_id"`
	Code      string        `json:"code"`
	Reason    string        `json:"reason"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// MetricFailed is emitted for each metric that could not be evaluated.
type MetricFailed struct {
	Workload  string    `json:"workload"`
	CycleID   string    `json:"cycle_id"`
	Metric    string    `json:"metric"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ApplyFailed is emitted when the workload mutator rejected a new replica
// count. It is not retried within the cycle.
type ApplyFailed struct {
	Workload  string    `json:"workload"`
	CycleID   string    `json:"cycle_id"`
	Target    int32     `json:"target"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEvent is the envelope shipped to the audit endpoint. Payload holds
// one of the event structs above.
type AuditEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	ControllerID string    `json:"controller_id"`
	Payload      any       `json:"payload"`
	Timestamp    time.Time `json:"timestamp"`
}

// AuditBatch is one compressed upload.
type AuditBatch struct {
	ControllerID string       `json:"controller_id"`
	SentAt       time.Time    `json:"sent_at"`
	Events       []AuditEvent `json:"events"`
}
