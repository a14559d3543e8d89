package scaling

import (
	"time"

	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// minHistoryCapacity is the smallest ring allocated for a workload.
const minHistoryCapacity = 16

// Record is one timestamped value in a History.
type Record struct {
	At    time.Time `json:"at"`
	Value int32     `json:"value"`
}

// History is a fixed-capacity ring buffer of records in insertion order.
// Records are expected to be added with non-decreasing timestamps. When
// full, the oldest record is overwritten. It is not safe for concurrent use.
type History struct {
	buf  []Record
	head int // index of the oldest record
	size int
}

// NewHistory creates a History holding at most capacity records.
func NewHistory(capacity int) *History {
	if capacity < minHistoryCapacity {
		capacity = minHistoryCapacity
	}
	return &History{buf: make([]Record, capacity)}
}

// Len returns the number of retained records.
func (h *History) Len() int { return h.size }

// Cap returns the maximum number of records.
func (h *History) Cap() int { return len(h.buf) }

// Add appends a record, evicting the oldest one when full.
func (h *History) Add(at time.Time, value int32) {
	if h.size == len(h.buf) {
		h.buf[h.head] = Record{At: at, Value: value}
		h.head = (h.head + 1) % len(h.buf)
		return
	}
	h.buf[(h.head+h.size)%len(h.buf)] = Record{At: at, Value: value}
	h.size++
}

// Prune drops records strictly older than cutoff.
func (h *History) Prune(cutoff time.Time) {
	for h.size > 0 && h.buf[h.head].At.Before(cutoff) {
		h.buf[h.head] = Record{}
		h.head = (h.head + 1) % len(h.buf)
		h.size--
	}
}

// Since calls fn for every record at or after cutoff, oldest first.
func (h *History) Since(cutoff time.Time, fn func(Record)) {
	for i := 0; i < h.size; i++ {
		r := h.buf[(h.head+i)%len(h.buf)]
		if r.At.Before(cutoff) {
			continue
		}
		fn(r)
	}
}

// After calls fn for every record strictly after cutoff, oldest first.
func (h *History) After(cutoff time.Time, fn func(Record)) {
	for i := 0; i < h.size; i++ {
		r := h.buf[(h.head+i)%len(h.buf)]
		if r.At.After(cutoff) {
			fn(r)
		}
	}
}

// Records returns a copy of all retained records, oldest first.
func (h *History) Records() []Record {
	out := make([]Record, 0, h.size)
	h.Since(time.Time{}, func(r Record) { out = append(out, r) })
	return out
}

// Resize changes the capacity, keeping the newest records that fit.
func (h *History) Resize(capacity int) {
	if capacity < minHistoryCapacity {
		capacity = minHistoryCapacity
	}
	if capacity == len(h.buf) {
		return
	}
	records := h.Records()
	if len(records) > capacity {
		records = records[len(records)-capacity:]
	}
	h.buf = make([]Record, capacity)
	h.head = 0
	h.size = copy(h.buf, records)
}

// HistoryCapacity sizes a ring for the policy's retention at one record per
// sync period, with slack for late or early ticks.
func HistoryCapacity(policy model.ScalingPolicy, period time.Duration) int {
	if period <= 0 {
		return minHistoryCapacity
	}
	n := int(policy.Retention()/period) + 2
	if n < minHistoryCapacity {
		return minHistoryCapacity
	}
	return n
}

// State is the mutable history of one workload. It is owned by a single
// reconciler and never shared.
type State struct {
	CurrentReplicas   int32
	LastScaleUpTime   time.Time
	LastScaleDownTime time.Time

	desired *History // candidate per evaluated cycle
	events  *History // replica change per applied decision, signed
}

// NewState creates a State whose history rings hold capacity records each.
func NewState(capacity int) *State {
	return &State{
		desired: NewHistory(capacity),
		events:  NewHistory(capacity),
	}
}

// Commit records that d was applied at time at. Decisions that were not
// applied, because the mutator failed or the cycle was canceled, must not be
// committed: they would consume step budget for a change that never happened.
func (s *State) Commit(d Decision, at time.Time) {
	switch delta := d.Final - d.Current; {
	case delta > 0:
		s.LastScaleUpTime = at
		s.events.Add(at, delta)
	case delta < 0:
		s.LastScaleDownTime = at
		s.events.Add(at, delta)
	}
	s.CurrentReplicas = d.Final
}

// changedWithin returns the replicas added (DirectionUp) or removed
// (DirectionDown) by committed changes within the period ending at now. A
// change exactly one period old belongs to the previous period.
func (s *State) changedWithin(period time.Duration, now time.Time, dir model.Direction) int32 {
	var total int32
	s.events.After(now.Add(-period), func(r Record) {
		switch {
		case dir == model.DirectionUp && r.Value > 0:
			total += r.Value
		case dir == model.DirectionDown && r.Value < 0:
			total -= r.Value
		}
	})
	return total
}

// RecentDesired returns the retained candidates, oldest first.
func (s *State) RecentDesired() []Record { return s.desired.Records() }

// ScaleEvents returns the retained replica changes, oldest first.
func (s *State) ScaleEvents() []Record { return s.events.Records() }

// Resize adjusts both history rings, e.g. after a policy reload.
func (s *State) Resize(capacity int) {
	s.desired.Resize(capacity)
	s.events.Resize(capacity)
}

// StateSnapshot is a read-only copy of a State for debugging.
type StateSnapshot struct {
	CurrentReplicas   int32     `json:"current_replicas"`
	LastScaleUpTime   time.Time `json:"last_scale_up_time,omitempty"`
	LastScaleDownTime time.Time `json:"last_scale_down_time,omitempty"`
	RecentDesired     []Record  `json:"recent_desired"`
	ScaleEvents       []Record  `json:"scale_events"`
}

// Snapshot copies the state.
func (s *State) Snapshot() StateSnapshot {
	return StateSnapshot{
		CurrentReplicas:   s.CurrentReplicas,
		LastScaleUpTime:   s.LastScaleUpTime,
		LastScaleDownTime: s.LastScaleDownTime,
		RecentDesired:     s.RecentDesired(),
		ScaleEvents:       s.ScaleEvents(),
	}
}
