// Package enhance post-processes extracted text through an
// OpenAI-compatible chat completions service. Enhancement is best effort
// by contract: Enhance always returns usable text, falling back to its
// input on any failure.
package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tuanvc/snaptext/internal/config"
)

const systemPrompt = "You are an OCR post-processor. Correct recognition errors in the text you receive: fix broken characters, join wrongly split words, and repair obvious misreads. Do not translate, do not paraphrase, and do not add commentary. Return only the corrected text."

// Options tune one enhancement call.
type Options struct {
	Language           string `json:"language,omitempty"`
	Context            string `json:"context,omitempty"`
	PreserveFormatting bool   `json:"preserve_formatting,omitempty"`
}

// Enhancer wraps the cloud text service behind a circuit breaker, so a
// down service fails fast instead of stalling every image, and a rate
// limiter that paces calls.
type Enhancer struct {
	cfg     config.EnhanceConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds an Enhancer from config. The logger may be nil.
func New(cfg config.EnhanceConfig, logger *zap.Logger) *Enhancer {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 2
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "enhance",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Enhancer{
		cfg:     cfg,
		client:  &http.Client{Timeout: time.Duration(timeout) * time.Second},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

// Enabled reports whether the service is configured and turned on.
func (e *Enhancer) Enabled() bool {
	return e.cfg.Enabled && e.cfg.APIKey != "" && e.cfg.BaseURL != ""
}

// Enhance returns an improved rendition of text, or text unchanged on
// any failure. Failures are logged, never surfaced to the caller.
func (e *Enhancer) Enhance(ctx context.Context, text string, opts Options) string {
	if !e.Enabled() || strings.TrimSpace(text) == "" {
		return text
	}

	if err := e.limiter.Wait(ctx); err != nil {
		e.logger.Warn("enhancement skipped, rate limiter interrupted", zap.Error(err))
		return text
	}

	improved, err := e.breaker.Execute(func() (string, error) {
		return e.chatCompletion(ctx, text, opts)
	})
	if err != nil {
		e.logger.Warn("enhancement failed, keeping original text", zap.Error(err))
		return text
	}
	if strings.TrimSpace(improved) == "" {
		e.logger.Warn("enhancement returned empty completion, keeping original text")
		return text
	}
	return improved
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (e *Enhancer) chatCompletion(ctx context.Context, text string, opts Options) (string, error) {
	req := chatRequest{
		Model: e.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserMessage(text, opts)},
		},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: 0.1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}
	return result.Choices[0].Message.Content, nil
}

func buildUserMessage(text string, opts Options) string {
	var b strings.Builder
	if opts.Language != "" {
		fmt.Fprintf(&b, "The text is in %q.\n", opts.Language)
	}
	if opts.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", opts.Context)
	}
	if opts.PreserveFormatting {
		b.WriteString("Preserve the original line breaks and spacing.\n")
	}
	b.WriteString(text)
	return b.String()
}
