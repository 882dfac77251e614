package enhance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvc/snaptext/internal/config"
)

func testConfig(url string) config.EnhanceConfig {
	return config.EnhanceConfig{
		Enabled:   true,
		BaseURL:   url,
		APIKey:    "test-key",
		Model:     "test-model",
		Timeout:   5,
		MaxTokens: 256,
		RateLimit: 1000,
	}
}

func completionServer(t *testing.T, reply string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		resp := map[string]any{
			"choices": []map[string]any{
				{
					"message":       map[string]string{"role": "assistant", "content": reply},
					"finish_reason": "stop",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEnhanceSuccess(t *testing.T) {
	var hits atomic.Int64
	srv := completionServer(t, "Xin chào", &hits)
	defer srv.Close()

	e := New(testConfig(srv.URL), nil)
	got := e.Enhance(context.Background(), "xin chao", Options{Language: "vie"})

	assert.Equal(t, "Xin chào", got)
	assert.Equal(t, int64(1), hits.Load())
}

func TestEnhanceFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := New(testConfig(srv.URL), nil)
	got := e.Enhance(context.Background(), "xin chao", Options{})

	// The failure must be invisible: the original text comes back.
	assert.Equal(t, "xin chao", got)
}

func TestEnhanceFallsBackOnUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e := New(testConfig(srv.URL), nil)
	got := e.Enhance(context.Background(), "xin chao", Options{})

	assert.Equal(t, "xin chao", got)
}

func TestEnhanceDisabled(t *testing.T) {
	var hits atomic.Int64
	srv := completionServer(t, "never", &hits)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Enabled = false
	e := New(cfg, nil)

	assert.False(t, e.Enabled())
	assert.Equal(t, "raw text", e.Enhance(context.Background(), "raw text", Options{}))
	assert.Equal(t, int64(0), hits.Load())

	cfg = testConfig(srv.URL)
	cfg.APIKey = ""
	e = New(cfg, nil)
	assert.False(t, e.Enabled())
	assert.Equal(t, "raw text", e.Enhance(context.Background(), "raw text", Options{}))
	assert.Equal(t, int64(0), hits.Load())
}

func TestEnhanceSkipsBlankText(t *testing.T) {
	var hits atomic.Int64
	srv := completionServer(t, "never", &hits)
	defer srv.Close()

	e := New(testConfig(srv.URL), nil)
	assert.Equal(t, "   ", e.Enhance(context.Background(), "   ", Options{}))
	assert.Equal(t, int64(0), hits.Load())
}

func TestEnhanceEmptyCompletion(t *testing.T) {
	var hits atomic.Int64
	srv := completionServer(t, "", &hits)
	defer srv.Close()

	e := New(testConfig(srv.URL), nil)
	assert.Equal(t, "keep me", e.Enhance(context.Background(), "keep me", Options{}))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	e := New(testConfig(srv.URL), nil)
	for i := 0; i < 5; i++ {
		got := e.Enhance(context.Background(), "text", Options{})
		assert.Equal(t, "text", got)
	}

	// After three consecutive failures the breaker is open; the last two
	// calls never reach the service.
	assert.Equal(t, int64(3), hits.Load())
}

func TestEnhanceCanceledContext(t *testing.T) {
	var hits atomic.Int64
	srv := completionServer(t, "never", &hits)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(testConfig(srv.URL), nil)
	assert.Equal(t, "text", e.Enhance(ctx, "text", Options{}))
}

func TestBuildUserMessage(t *testing.T) {
	msg := buildUserMessage("body", Options{Language: "eng", Context: "receipt", PreserveFormatting: true})
	assert.True(t, strings.Contains(msg, `"eng"`))
	assert.True(t, strings.Contains(msg, "receipt"))
	assert.True(t, strings.Contains(msg, "line breaks"))
	assert.True(t, strings.HasSuffix(msg, "body"))

	assert.Equal(t, "just text", buildUserMessage("just text", Options{}))
}
