package engine

import (
	"context"
	"sync"
	"time"
)

// Mock is a canned engine for tests and for wiring without a tesseract
// runtime.
type Mock struct {
	TextResult string
	Err        error
	FailFirst  int           // fail this many leading calls, then succeed
	Delay      time.Duration // artificial per-call latency
	Steps      []float64     // progress fractions emitted per call

	mu    sync.Mutex
	calls int
}

func (m *Mock) Name() string    { return "mock" }
func (m *Mock) Available() bool { return true }

// Calls returns how many recognitions were attempted.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Recognize returns the canned outcome, honoring ctx during the
// configured delay.
func (m *Mock) Recognize(ctx context.Context, req Request) (Result, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	for _, f := range m.Steps {
		if req.Progress != nil {
			req.Progress(f)
		}
	}

	if m.FailFirst > 0 && call <= m.FailFirst {
		return Result{}, m.Err
	}
	if m.FailFirst == 0 && m.Err != nil {
		return Result{}, m.Err
	}

	text := m.TextResult
	if text == "" {
		text = "mock recognized text"
	}
	return Result{Text: text}, nil
}
