package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedBatch struct {
	mu      sync.Mutex
	batches [][]LogEntry
}

func (c *capturedBatch) add(b []LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
}

func (c *capturedBatch) totalEntries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func TestHTTPSinkHandler_FlushesOnceBatchSizeReached(t *testing.T) {
	captured := &capturedBatch{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var entries []LogEntry
		require.NoError(t, json.NewDecoder(r.Body).Decode(&entries))
		captured.add(entries)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h := NewHTTPSinkHandler(HTTPSinkConfig{
		URL:           server.URL,
		Level:         slog.LevelInfo,
		BatchSize:     2,
		FlushInterval: time.Hour, // long enough that only size-triggering fires in this test
	})
	defer h.Close()

	ctx := context.Background()
	require.NoError(t, h.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelInfo, "first", 0)))
	require.NoError(t, h.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelInfo, "second", 0)))

	assert.Eventually(t, func() bool {
		return captured.totalEntries() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestHTTPSinkHandler_CloseFlushesRemainingEntries(t *testing.T) {
	captured := &capturedBatch{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var entries []LogEntry
		require.NoError(t, json.NewDecoder(r.Body).Decode(&entries))
		captured.add(entries)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h := NewHTTPSinkHandler(HTTPSinkConfig{
		URL:           server.URL,
		Level:         slog.LevelInfo,
		BatchSize:     20,
		FlushInterval: time.Hour,
	})

	require.NoError(t, h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "only one", 0)))
	require.NoError(t, h.Close())

	assert.Equal(t, 1, captured.totalEntries())
}

func TestHTTPSinkHandler_EnabledRespectsConfiguredLevel(t *testing.T) {
	h := NewHTTPSinkHandler(HTTPSinkConfig{URL: "http://example.invalid", Level: slog.LevelWarn})
	defer h.Close()

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
}
