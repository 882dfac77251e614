package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTransientMark(t *testing.T) {
	base := fmt.Errorf("connection reset")
	marked := MarkTransient(base)

	if !IsTransient(marked) {
		t.Error("expected marked error to report transient")
	}
	if !errors.Is(marked, base) {
		t.Error("mark must preserve the original error chain")
	}
	if IsTransient(base) {
		t.Error("unmarked error must not report transient")
	}
	if MarkTransient(nil) != nil {
		t.Error("marking nil should stay nil")
	}
}

func TestMockSucceeds(t *testing.T) {
	m := &Mock{TextResult: "hello world", Steps: []float64{0.5, 1.0}}

	var fractions []float64
	res, err := m.Recognize(context.Background(), Request{
		Image:    []byte{1},
		Progress: func(f float64) { fractions = append(fractions, f) },
	})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("unexpected text: %q", res.Text)
	}
	if len(fractions) != 2 || fractions[0] != 0.5 || fractions[1] != 1.0 {
		t.Errorf("unexpected progress fractions: %v", fractions)
	}
	if m.Calls() != 1 {
		t.Errorf("expected 1 call, got %d", m.Calls())
	}
}

func TestMockFailFirst(t *testing.T) {
	m := &Mock{
		TextResult: "eventually",
		Err:        MarkTransient(fmt.Errorf("network unreachable")),
		FailFirst:  2,
	}

	for i := 0; i < 2; i++ {
		if _, err := m.Recognize(context.Background(), Request{}); err == nil {
			t.Fatalf("call %d should fail", i+1)
		}
	}
	res, err := m.Recognize(context.Background(), Request{})
	if err != nil {
		t.Fatalf("third call should succeed: %v", err)
	}
	if res.Text != "eventually" {
		t.Errorf("unexpected text: %q", res.Text)
	}
}

func TestMockHonorsContext(t *testing.T) {
	m := &Mock{Delay: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Recognize(ctx, Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}
