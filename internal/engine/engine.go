// Package engine defines the recognition engine contract and its
// tesseract-backed implementation.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// Request carries one recognition attempt's inputs. Progress, when set,
// is invoked zero or more times with a 0.0-1.0 fraction during the
// attempt.
type Request struct {
	Image       []byte
	Language    string
	PageSegMode int
	Progress    func(fraction float64)
}

// Result is a successful recognition outcome.
type Result struct {
	Text string `json:"text"`
}

// Engine turns image bytes into text.
type Engine interface {
	Name() string
	Available() bool
	Recognize(ctx context.Context, req Request) (Result, error)
}

// ErrTransient marks failures presumed recoverable by retrying with the
// same inputs. Engines wrap such failures with MarkTransient so callers
// get a structured signal instead of matching description text.
var ErrTransient = errors.New("transient recognition failure")

// MarkTransient tags err as retryable.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err carries the transient mark.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
