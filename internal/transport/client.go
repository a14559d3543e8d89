// Package transport ships audit events to an external endpoint as
// zstd-compressed JSON batches.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/config"
	autoscalererrors "github.com/kubeadapt/kubeadapt-autoscaler/internal/errors"
	"github.com/kubeadapt/kubeadapt-autoscaler/internal/observability"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

// Client posts AuditBatches over HTTP with streaming zstd compression. The
// JSON payload is never held in memory as a whole.
type Client struct {
	httpClient     *http.Client
	url            string
	controllerID   string
	version        string
	maxRetries     int
	level          zstd.EncoderLevel
	baseBackoff    time.Duration
	metrics        *observability.Metrics
	errorCollector *autoscalererrors.ErrorCollector
}

// NewClient creates a Client for cfg.AuditURL. Retry happens at the Send
// level because the streaming body must be rebuilt on each attempt.
func NewClient(cfg *config.Config, metrics *observability.Metrics, errCollector *autoscalererrors.ErrorCollector) *Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.AuditRequestTimeout,
			Transport: WithAuth(cfg.AuditAPIKey, WithLogging(slog.Default(), base)),
		},
		url:            cfg.AuditURL,
		controllerID:   cfg.ControllerID,
		version:        cfg.Version,
		maxRetries:     cfg.AuditMaxRetries,
		level:          zstd.EncoderLevel(cfg.AuditCompressionLevel),
		baseBackoff:    time.Second,
		metrics:        metrics,
		errorCollector: errCollector,
	}
}

// Send uploads one batch, retrying transient failures up to maxRetries
// times with exponential backoff.
func (c *Client) Send(ctx context.Context, batch *model.AuditBatch) error {
	start := time.Now()

	var lastErr error
	var sizes batchSizes
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.AuditRetries.Inc()
			}
			if err := sleepCtx(ctx, backoffDelay(c.baseBackoff, attempt-1, lastErr)); err != nil {
				lastErr = fmt.Errorf("transport: canceled before attempt %d: %w", attempt+1, err)
				break
			}
		}

		sizes, lastErr = c.doSend(ctx, batch)
		if lastErr == nil || !isRetryable(lastErr) {
			break
		}
		slog.Debug("audit upload attempt failed", "attempt", attempt+1, "error", lastErr)
	}

	if c.metrics != nil {
		c.metrics.AuditSendDuration.Observe(time.Since(start).Seconds())
		if sizes.compressed > 0 {
			c.metrics.AuditBatchBytes.WithLabelValues("compressed").Observe(float64(sizes.compressed))
			c.metrics.AuditBatchBytes.WithLabelValues("uncompressed").Observe(float64(sizes.raw))
			if sizes.raw > 0 {
				c.metrics.AuditCompressionRate.Set(float64(sizes.compressed) / float64(sizes.raw))
			}
		}
	}

	if c.errorCollector != nil {
		if lastErr != nil {
			c.errorCollector.Report(autoscalererrors.ControllerError{
				Code:      autoscalererrors.ErrCodeAuditUnreachable,
				Message:   fmt.Sprintf("audit upload failed: %v", lastErr),
				Component: "transport",
				Timestamp: time.Now().UnixMilli(),
				Err:       lastErr,
			})
		} else {
			c.errorCollector.Resolve(autoscalererrors.ErrCodeAuditUnreachable, "transport")
		}
	}
	return lastErr
}

type batchSizes struct {
	raw, compressed int64
}

// doSend performs a single POST. Each call builds a fresh io.Pipe.
func (c *Client) doSend(ctx context.Context, batch *model.AuditBatch) (batchSizes, error) {
	pr, pw := io.Pipe()
	compressed := NewCountingWriter(pw)

	zw, err := zstd.NewWriter(compressed, zstd.WithEncoderLevel(c.level))
	if err != nil {
		_ = pw.Close()
		return batchSizes{}, fmt.Errorf("transport: failed to create zstd encoder: %w", err)
	}
	raw := NewCountingWriter(zw)

	encoded := make(chan struct{})
	go func() {
		defer close(encoded)
		encodeErr := json.NewEncoder(raw).Encode(batch)
		closeErr := zw.Close()
		switch {
		case encodeErr != nil:
			pw.CloseWithError(fmt.Errorf("transport: JSON encode failed: %w", encodeErr))
		case closeErr != nil:
			pw.CloseWithError(fmt.Errorf("transport: zstd close failed: %w", closeErr))
		default:
			_ = pw.Close()
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		<-encoded
		return batchSizes{}, fmt.Errorf("transport: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "zstd")
	req.Header.Set("X-Controller-ID", c.controllerID)
	req.Header.Set("X-Autoscaler-Version", c.version)
	req.Header.Set("X-Batch-Events", strconv.Itoa(len(batch.Events)))

	resp, err := c.httpClient.Do(req)
	// The transport closes the request body, which unblocks the encoder.
	_ = pr.Close()
	<-encoded
	sizes := batchSizes{raw: raw.Count(), compressed: compressed.Count()}
	if err != nil {
		return sizes, fmt.Errorf("transport: HTTP request failed: %w", err)
	}
	return sizes, checkResponse(resp)
}
