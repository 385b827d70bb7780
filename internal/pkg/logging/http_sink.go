// Generic batched HTTP log sink, replacing Yandex Cloud
// Logging-specific handler (yandex_logging.go): same buffering and
// flush-loop shape (size-triggered or ticker-triggered batch POST), but
// talking to any JSON-accepting log ingestion endpoint named by
// LoggingConfig.SinkURL instead of Yandex's proprietary form-encoded
// wire format and IAM auth. See DESIGN.md for why the Yandex-specific
// transport was dropped.
package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

// HTTPSinkConfig configures the batched HTTP log sink.
type HTTPSinkConfig struct {
	URL           string
	Level         slog.Level
	BatchSize     int
	FlushInterval time.Duration
}

// LogEntry is one batched record posted to the sink.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// HTTPSinkHandler implements slog.Handler, batching records and
// POSTing them as a JSON array to cfg.URL.
type HTTPSinkHandler struct {
	cfg    HTTPSinkConfig
	client *http.Client

	mu     sync.Mutex
	buffer []LogEntry

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewHTTPSinkHandler(cfg HTTPSinkConfig) *HTTPSinkHandler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	h := &HTTPSinkHandler{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		buffer: make([]LogEntry, 0, cfg.BatchSize),
		ticker: time.NewTicker(cfg.FlushInterval),
		done:   make(chan struct{}),
	}
	h.wg.Add(1)
	go h.flushLoop()
	return h
}

func (h *HTTPSinkHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.Level
}

func (h *HTTPSinkHandler) Handle(_ context.Context, record slog.Record) error {
	entry := LogEntry{
		Timestamp: record.Time,
		Level:     record.Level.String(),
		Message:   record.Message,
		Payload:   make(map[string]any),
	}
	record.Attrs(func(a slog.Attr) bool {
		entry.Payload[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	h.buffer = append(h.buffer, entry)
	shouldFlush := len(h.buffer) >= h.cfg.BatchSize
	h.mu.Unlock()

	if shouldFlush {
		go h.flush()
	}
	return nil
}

// WithAttrs and WithGroup are no-ops here, matching own
// simplification for its remote handler — group/attr scoping is
// preserved by the stdout handler in the MultiHandler fan-out.
func (h *HTTPSinkHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *HTTPSinkHandler) WithGroup(_ string) slog.Handler      { return h }

func (h *HTTPSinkHandler) flushLoop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ticker.C:
			h.flush()
		case <-h.done:
			return
		}
	}
}

func (h *HTTPSinkHandler) flush() {
	h.mu.Lock()
	if len(h.buffer) == 0 {
		h.mu.Unlock()
		return
	}
	entries := make([]LogEntry, len(h.buffer))
	copy(entries, h.buffer)
	h.buffer = h.buffer[:0]
	h.mu.Unlock()

	body, err := json.Marshal(entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: failed to marshal batch: %v\n", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: failed to build sink request: %v\n", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: sink request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "logging: sink returned status %d\n", resp.StatusCode)
	}
}

// Close stops the flush loop and sends any remaining buffered entries.
func (h *HTTPSinkHandler) Close() error {
	close(h.done)
	h.ticker.Stop()
	h.wg.Wait()
	h.flush()
	return nil
}
