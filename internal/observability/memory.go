package observability

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"
)

// MemoryMonitor samples process memory against GOMEMLIMIT and calls
// onPressure whenever usage exceeds threshold (0.8 = 80%) of the limit.
type MemoryMonitor struct {
	threshold  float64
	interval   time.Duration
	onPressure func()
	metrics    *Metrics

	readMemStats func(*runtime.MemStats)
	memoryLimit  func() int64
}

// NewMemoryMonitor creates a monitor. metrics may be nil.
func NewMemoryMonitor(threshold float64, interval time.Duration, onPressure func(), metrics *Metrics) *MemoryMonitor {
	return &MemoryMonitor{
		threshold:    threshold,
		interval:     interval,
		onPressure:   onPressure,
		metrics:      metrics,
		readMemStats: runtime.ReadMemStats,
		// A negative input reads the limit without changing it.
		memoryLimit: func() int64 { return debug.SetMemoryLimit(-1) },
	}
}

// Run samples every interval until ctx is cancelled.
func (m *MemoryMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ratio, ok := m.Sample()
			if ok && ratio > m.threshold {
				slog.Warn("memory pressure detected", "usage_ratio", ratio, "threshold", m.threshold)
				m.onPressure()
			}
		}
	}
}

// Sample returns usage divided by GOMEMLIMIT. ok is false when no limit is
// set.
func (m *MemoryMonitor) Sample() (ratio float64, ok bool) {
	limit := m.memoryLimit()
	if limit <= 0 || limit == int64(^uint64(0)>>1) {
		return 0, false
	}

	var stats runtime.MemStats
	m.readMemStats(&stats)
	ratio = float64(stats.Sys-stats.HeapReleased) / float64(limit)

	if m.metrics != nil {
		m.metrics.MemoryUsageRatio.Set(ratio)
	}
	return ratio, true
}
