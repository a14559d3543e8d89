package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/observability"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// batchSender is the upload side of the Shipper. *Client implements it.
type batchSender interface {
	Send(ctx context.Context, batch *model.AuditBatch) error
}

// ShipperOptions configures a Shipper.
type ShipperOptions struct {
	ControllerID  string
	FlushInterval time.Duration
	BufferSize    int
	// FinalFlushTimeout bounds the upload done when Run returns.
	FinalFlushTimeout time.Duration
}

// Shipper buffers cycle events and uploads them in batches. It implements
// controller.Sink; recording never blocks, and events arriving while the
// buffer is full are dropped.
type Shipper struct {
	sender  batchSender
	opts    ShipperOptions
	metrics *observability.Metrics
	now     func() time.Time

	mu  sync.Mutex
	buf []model.AuditEvent

	// wake asks Run for an early flush once the buffer is half full.
	wake chan struct{}
}

// NewShipper creates a Shipper uploading through sender.
func NewShipper(sender batchSender, opts ShipperOptions, metrics *observability.Metrics) *Shipper {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 10 * time.Second
	}
	if opts.FinalFlushTimeout <= 0 {
		opts.FinalFlushTimeout = 30 * time.Second
	}
	return &Shipper{
		sender:  sender,
		opts:    opts,
		metrics: metrics,
		now:     time.Now,
		buf:     make([]model.AuditEvent, 0, opts.BufferSize),
		wake:    make(chan struct{}, 1),
	}
}

// Run flushes the buffer every FlushInterval until ctx is cancelled, then
// makes one last upload of whatever is left.
func (s *Shipper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), s.opts.FinalFlushTimeout)
			s.Flush(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			s.Flush(ctx)
		case <-s.wake:
			s.Flush(ctx)
		}
	}
}

// Flush uploads the buffered events as one batch. Events of a batch that
// fails after all retries are dropped.
func (s *Shipper) Flush(ctx context.Context) {
	s.mu.Lock()
	events := s.buf
	s.buf = make([]model.AuditEvent, 0, s.opts.BufferSize)
	s.mu.Unlock()
	s.setBuffered(0)

	if len(events) == 0 {
		return
	}

	batch := &model.AuditBatch{
		ControllerID: s.opts.ControllerID,
		SentAt:       s.now(),
		Events:       events,
	}
	if err := s.sender.Send(ctx, batch); err != nil {
		slog.Warn("dropping audit batch", "events", len(events), "error", err)
		if s.metrics != nil {
			s.metrics.AuditEventsDropped.Add(float64(len(events)))
		}
		return
	}
	if s.metrics != nil {
		s.metrics.AuditEventsSent.Add(float64(len(events)))
	}
}

// Buffered returns the number of events waiting for upload.
func (s *Shipper) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

func (s *Shipper) CycleCompleted(e model.CycleCompleted) {
	s.enqueue(model.EventCycleCompleted, e, e.Timestamp)
}

func (s *Shipper) CycleSkipped(e model.CycleSkipped) {
	s.enqueue(model.EventCycleSkipped, e, e.Timestamp)
}

func (s *Shipper) MetricFailed(e model.MetricFailed) {
	s.enqueue(model.EventMetricFailed, e, e.Timestamp)
}

func (s *Shipper) ApplyFailed(e model.ApplyFailed) {
	s.enqueue(model.EventApplyFailed, e, e.Timestamp)
}

func (s *Shipper) enqueue(typ model.EventType, payload any, ts time.Time) {
	ev := model.AuditEvent{
		ID:           uuid.NewString(),
		Type:         typ,
		ControllerID: s.opts.ControllerID,
		Payload:      payload,
		Timestamp:    ts,
	}

	s.mu.Lock()
	if len(s.buf) >= s.opts.BufferSize {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.AuditEventsDropped.Inc()
		}
		return
	}
	s.buf = append(s.buf, ev)
	n := len(s.buf)
	s.mu.Unlock()
	s.setBuffered(n)

	if n >= s.opts.BufferSize/2 {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

func (s *Shipper) setBuffered(n int) {
	if s.metrics != nil {
		s.metrics.AuditBufferedEvents.Set(float64(n))
	}
}
