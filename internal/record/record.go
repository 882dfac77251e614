// Package record holds the ordered in-memory collection of image records
// and the status state machine that guards every mutation. The store is
// the single owner of preview handles: whatever removes a record releases
// its handle, exactly once.
package record

import (
	"time"

	"github.com/google/uuid"

	"github.com/tuanvc/snaptext/internal/imaging"
)

// Status is the lifecycle state of one image record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// legalTransitions lists the edges of the record state machine.
// processing -> processing carries progress updates and retries; error ->
// processing is the retry path. completed is final.
var legalTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusError},
	StatusError:      {StatusProcessing},
	StatusCompleted:  {},
}

// CanTransition reports whether the state machine has an edge from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ImageRecord is one tracked image and its OCR lifecycle state. Source
// is immutable after admission. Preview is owned by the store and must
// not be released by anyone else.
type ImageRecord struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type"`
	Size        int            `json:"size"`
	Source      []byte         `json:"-"`
	Preview     imaging.Handle `json:"-"`
	Status      Status         `json:"status"`
	Text        string         `json:"text"`
	Progress    int            `json:"progress"`
	Error       string         `json:"error,omitempty"`
	Attempts    int            `json:"attempts"`
	AddedAt     time.Time      `json:"added_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Patch is a partial update merged into a record by UpdateStatus. Nil
// fields are left untouched.
type Patch struct {
	Progress *int
	Text     *string
	Error    *string
	Attempts *int
}

// Counts aggregates record statuses for display.
type Counts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Error      int `json:"error"`
	Total      int `json:"total"`
}

func generateID() string {
	return "img_" + uuid.NewString()
}
