package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/config"
	"github.com/kubeadapt/kubeadapt-autoscaler/pkg/model"
)

func testConfig(serverURL string) *config.Config {
	return &config.Config{
		AuditURL:              serverURL,
		AuditAPIKey:           "test-api-key-abc",
		ControllerID:          "ctrl-test",
		Version:               "v0.1.0-test",
		AuditMaxRetries:       0,
		AuditCompressionLevel: 3,
		AuditRequestTimeout:   10 * time.Second,
	}
}

// testClient returns a client with millisecond backoff.
func testClient(cfg *config.Config) *Client {
	c := NewClient(cfg, nil, nil)
	c.baseBackoff = time.Millisecond
	return c
}

func testBatch(n int) *model.AuditBatch {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	batch := &model.AuditBatch{ControllerID: "ctrl-test", SentAt: ts}
	for i := range n {
		batch.Events = append(batch.Events, model.AuditEvent{
			ID:           "evt-" + string(rune('a'+i%26)),
			Type:         model.EventCycleCompleted,
			ControllerID: "ctrl-test",
			Payload: model.CycleCompleted{
				Workload:  "deployment/default/web",
				CycleID:   "cycle-1",
				Current:   3,
				Candidate: 5,
				Final:     5,
				Direction: model.DirectionUp,
				Timestamp: ts,
			},
			Timestamp: ts,
		})
	}
	return batch
}

// decodeBatch reads a zstd-compressed JSON batch from r.
func decodeBatch(t *testing.T, r *http.Request) model.AuditBatch {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Errorf("failed to read body: %v", err)
		return model.AuditBatch{}
	}
	dec, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		t.Errorf("failed to create zstd decoder: %v", err)
		return model.AuditBatch{}
	}
	defer dec.Close()

	var batch model.AuditBatch
	if err := json.NewDecoder(dec).Decode(&batch); err != nil {
		t.Errorf("failed to decode batch: %v", err)
	}
	return batch
}
