// Package processor drives image records through recognition: strictly
// one image at a time, in store order, with bounded automatic retry for
// transient failures.
package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tuanvc/snaptext/internal/engine"
	"github.com/tuanvc/snaptext/internal/record"
	"github.com/tuanvc/snaptext/internal/settings"
)

// Config tunes the retry and timeout policy.
type Config struct {
	MaxRetries     int           // automatic retries after the first attempt
	RetryDelay     time.Duration // fixed pause before each retry, not exponential
	AttemptTimeout time.Duration // per-attempt ceiling
}

// DefaultConfig returns the stock policy: three attempts total, two
// seconds between them, sixty seconds per attempt.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		RetryDelay:     2 * time.Second,
		AttemptTimeout: 60 * time.Second,
	}
}

// Recorder receives recognition telemetry. Implementations must be safe
// for concurrent use.
type Recorder interface {
	RecognitionFinished(outcome string, d time.Duration)
	RecognitionRetried()
}

type nopRecorder struct{}

func (nopRecorder) RecognitionFinished(string, time.Duration) {}
func (nopRecorder) RecognitionRetried()                       {}

// Processor owns all movement of records through the state machine. The
// internal mutex keeps engine usage bounded to one in-flight recognition
// no matter how Process and ProcessAll are invoked.
type Processor struct {
	store    *record.Store
	engine   engine.Engine
	settings *settings.Store
	config   Config
	recorder Recorder
	logger   *zap.Logger

	mu sync.Mutex
}

// New builds a processor. Recorder and logger may be nil.
func New(store *record.Store, eng engine.Engine, st *settings.Store, cfg Config, rec Recorder, logger *zap.Logger) *Processor {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:    store,
		engine:   eng,
		settings: st,
		config:   cfg,
		recorder: rec,
		logger:   logger,
	}
}

// Summary aggregates one batch run.
type Summary struct {
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
}

func (s *Summary) String() string {
	var sb strings.Builder
	sb.WriteString("=== Batch Summary ===\n")
	sb.WriteString(fmt.Sprintf("Total:     %d\n", s.Total))
	sb.WriteString(fmt.Sprintf("Completed: %d\n", s.Completed))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", s.Failed))
	sb.WriteString(fmt.Sprintf("Skipped:   %d\n", s.Skipped))
	sb.WriteString(fmt.Sprintf("Duration:  %v\n", s.Duration))
	return sb.String()
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeSkipped
)

// Process runs one record through recognition, following the same state
// machine and retry policy as a batch run.
func (p *Processor) Process(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	out, err := p.processOne(ctx, id)
	if out == outcomeCompleted {
		return nil
	}
	return err
}

// ProcessAll processes every record that is pending when the call is
// made, strictly one at a time in store order. Records that disappear
// before their turn are skipped; one failing image never aborts the
// rest.
func (p *Processor) ProcessAll(ctx context.Context) (*Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := p.store.PendingIDs()
	summary := &Summary{Total: len(ids), StartTime: time.Now()}

	var runErr error
	for i, id := range ids {
		if ctx.Err() != nil {
			summary.Skipped += len(ids) - i
			runErr = ctx.Err()
			break
		}

		out, err := p.processOne(ctx, id)
		switch out {
		case outcomeCompleted:
			summary.Completed++
		case outcomeFailed:
			summary.Failed++
		case outcomeSkipped:
			summary.Skipped++
			if err != nil {
				p.logger.Debug("batch skipped record",
					zap.String("id", id),
					zap.Error(err))
			}
		}
	}

	summary.EndTime = time.Now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)

	p.logger.Info("batch run finished",
		zap.Int("total", summary.Total),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration))

	return summary, runErr
}

func (p *Processor) processOne(ctx context.Context, id string) (outcome, error) {
	rec, err := p.store.BeginProcessing(id)
	if err != nil {
		return outcomeSkipped, err
	}

	// Settings are read at the processing-start instant, never cached
	// for a whole batch, so a mid-run change applies to every image not
	// yet started.
	cfg := p.settings.Current()
	maxAttempts := p.config.MaxRetries + 1
	started := time.Now()

	var result engine.Result
	var attemptErr error
	attempts := 0

attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		result, attemptErr = p.attempt(ctx, id, rec.Source, cfg)
		if attemptErr == nil {
			break
		}

		p.logger.Warn("recognition attempt failed",
			zap.String("id", id),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(attemptErr))

		if !Transient(attemptErr) || attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(p.config.RetryDelay):
		case <-ctx.Done():
			attemptErr = ctx.Err()
			break attemptLoop
		}

		// The retry re-enters processing with progress reset.
		p.recorder.RecognitionRetried()
		zero := 0
		n := attempt
		p.store.UpdateStatus(id, record.StatusProcessing, record.Patch{Progress: &zero, Attempts: &n})
	}

	if attemptErr != nil {
		msg := attemptErr.Error()
		zero := 0
		n := attempts
		updated, uerr := p.store.UpdateStatus(id, record.StatusError, record.Patch{Error: &msg, Progress: &zero, Attempts: &n})
		if uerr != nil {
			p.logger.Warn("could not record terminal failure",
				zap.String("id", id),
				zap.Error(uerr))
			p.recorder.RecognitionFinished("skipped", time.Since(started))
			return outcomeSkipped, attemptErr
		}
		if !updated {
			// Removed mid-flight; the late result is discarded.
			p.recorder.RecognitionFinished("skipped", time.Since(started))
			return outcomeSkipped, attemptErr
		}
		p.recorder.RecognitionFinished("failed", time.Since(started))
		return outcomeFailed, attemptErr
	}

	full := 100
	n := attempts
	text := result.Text
	updated, uerr := p.store.UpdateStatus(id, record.StatusCompleted, record.Patch{Text: &text, Progress: &full, Attempts: &n})
	if uerr != nil {
		p.logger.Warn("could not record completion",
			zap.String("id", id),
			zap.Error(uerr))
		p.recorder.RecognitionFinished("skipped", time.Since(started))
		return outcomeSkipped, uerr
	}
	if !updated {
		p.recorder.RecognitionFinished("skipped", time.Since(started))
		return outcomeSkipped, nil
	}

	p.logger.Info("recognition completed",
		zap.String("id", id),
		zap.Int("attempts", attempts),
		zap.Int("chars", len(text)))
	p.recorder.RecognitionFinished("completed", time.Since(started))
	return outcomeCompleted, nil
}

// attempt runs a single recognition with its own deadline. The engine
// call is isolated in a goroutine because a cgo-backed engine may not
// honor ctx; on timeout the attempt is abandoned and any late result or
// progress report from it is discarded.
func (p *Processor) attempt(ctx context.Context, id string, image []byte, cfg settings.OCRSettings) (engine.Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.config.AttemptTimeout)
	defer cancel()

	lastPct := -1
	progress := func(fraction float64) {
		if attemptCtx.Err() != nil {
			return
		}
		pct := int(fraction * 100)
		if pct > 99 {
			pct = 99
		}
		if pct <= lastPct {
			return
		}
		lastPct = pct
		p.store.UpdateStatus(id, record.StatusProcessing, record.Patch{Progress: &pct})
	}

	type attemptResult struct {
		res engine.Result
		err error
	}
	done := make(chan attemptResult, 1)
	go func() {
		res, err := p.engine.Recognize(attemptCtx, engine.Request{
			Image:       image,
			Language:    cfg.Language,
			PageSegMode: cfg.PageSegMode,
			Progress:    progress,
		})
		done <- attemptResult{res: res, err: err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-attemptCtx.Done():
		return engine.Result{}, attemptCtx.Err()
	}
}
