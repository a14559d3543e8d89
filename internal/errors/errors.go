package errors

import (
	stderrors "errors"
	"sort"
	"sync"
	"time"
)

// Code represents a typed error code surfaced on the debug endpoint and in
// audit events.
type Code string

// Controller error codes.
const (
	ErrCodeMetricUnavailable    Code = "METRIC_UNAVAILABLE"
	ErrCodeNoMetricsAvailable   Code = "NO_METRICS_AVAILABLE"
	ErrCodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	ErrCodeApplyFailed          Code = "APPLY_FAILED"
	ErrCodeInspectFailed        Code = "INSPECT_FAILED"
	ErrCodeCyclePanic           Code = "CYCLE_PANIC"
	ErrCodeAuditUnreachable     Code = "AUDIT_UNREACHABLE"
	ErrCodeInformerSyncTimeout  Code = "INFORMER_SYNC_TIMEOUT"
)

// Sentinel errors for errors.Is checks across package boundaries.
var (
	// ErrMetricUnavailable means one metric has no usable data this cycle.
	ErrMetricUnavailable = stderrors.New("metric unavailable")
	// ErrNoMetricsAvailable means every metric failed this cycle.
	ErrNoMetricsAvailable = stderrors.New("no metrics available")
	// ErrInvalidConfiguration rejects a workload declaration at load time.
	ErrInvalidConfiguration = stderrors.New("invalid configuration")
	// ErrApplyFailed means the workload mutator rejected a replica change.
	ErrApplyFailed = stderrors.New("apply failed")
)

// defaultTTL is the auto-expiry duration for errors not re-reported.
const defaultTTL = 5 * time.Minute

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock uses the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// ControllerError represents a typed controller error with code, component,
// and optional wrapped error. Component is usually a workload identifier.
type ControllerError struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Component string `json:"component"`
	Timestamp int64  `json:"timestamp"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *ControllerError) Error() string {
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As compatibility.
func (e *ControllerError) Unwrap() error {
	return e.Err
}

// entry wraps a ControllerError with its last-reported time for expiry tracking.
type entry struct {
	err        ControllerError
	lastReport time.Time
}

// ErrorCollector is a thread-safe store for active controller errors.
// Errors are keyed by Code+Component and auto-expire after 5 minutes
// if not re-reported.
type ErrorCollector struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]entry // key = string(Code) + "|" + Component
}

// NewErrorCollector creates an ErrorCollector with the given clock.
func NewErrorCollector(clock Clock) *ErrorCollector {
	return &ErrorCollector{
		clock:   clock,
		entries: make(map[string]entry),
	}
}

func key(code Code, component string) string {
	return string(code) + "|" + component
}

// Report stores or refreshes an error. The dedup key is Code+Component.
func (ec *ErrorCollector) Report(err ControllerError) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.entries[key(err.Code, err.Component)] = entry{
		err:        err,
		lastReport: ec.clock.Now(),
	}
}

// Resolve drops an error before its TTL, e.g. once a metric recovers.
func (ec *ErrorCollector) Resolve(code Code, component string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	delete(ec.entries, key(code, component))
}

// GetActiveErrors returns all errors reported within the TTL window, ordered
// by component then code.
func (ec *ErrorCollector) GetActiveErrors() []ControllerError {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	now := ec.clock.Now()
	result := make([]ControllerError, 0, len(ec.entries))
	for k, e := range ec.entries {
		if now.Sub(e.lastReport) > defaultTTL {
			delete(ec.entries, k)
			continue
		}
		result = append(result, e.err)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Component != result[j].Component {
			return result[i].Component < result[j].Component
		}
		return result[i].Code < result[j].Code
	})
	return result
}

// GetActiveErrorCodes returns a deduplicated list of active error codes.
func (ec *ErrorCollector) GetActiveErrorCodes() []string {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	now := ec.clock.Now()
	seen := make(map[Code]struct{})
	codes := make([]string, 0)
	for k, e := range ec.entries {
		if now.Sub(e.lastReport) > defaultTTL {
			delete(ec.entries, k)
			continue
		}
		if _, ok := seen[e.err.Code]; !ok {
			seen[e.err.Code] = struct{}{}
			codes = append(codes, string(e.err.Code))
		}
	}
	sort.Strings(codes)
	return codes
}

// Clear removes all tracked errors.
func (ec *ErrorCollector) Clear() {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.entries = make(map[string]entry)
}
