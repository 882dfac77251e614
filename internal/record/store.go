package record

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tuanvc/snaptext/internal/errors"
	"github.com/tuanvc/snaptext/internal/imaging"
)

// Store is the ordered, mutex-guarded collection of image records.
type Store struct {
	mu      sync.RWMutex
	records map[string]*ImageRecord
	order   []string
	closed  bool

	newPreview imaging.PreviewFactory
	logger     *zap.Logger

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewStore builds an empty store. The preview factory is invoked once per
// admitted upload; the logger may be nil.
func NewStore(factory imaging.PreviewFactory, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		records:    make(map[string]*ImageRecord),
		order:      make([]string, 0),
		newPreview: factory,
		logger:     logger,
		subs:       make(map[int]chan Event),
	}
}

type admitted struct {
	id      string
	upload  imaging.Upload
	preview imaging.Handle
}

// Add validates each upload and appends the admitted ones, in input
// order, each with a freshly allocated preview handle. Rejected payloads
// are reported per item and never abort the rest of the batch.
func (s *Store) Add(uploads ...imaging.Upload) ([]ImageRecord, []imaging.Rejection, error) {
	var pass []admitted
	var rejected []imaging.Rejection

	for _, u := range uploads {
		if verr := imaging.Validate(u); verr != nil {
			rejected = append(rejected, imaging.Rejection{Filename: u.Filename, Reason: verr.Message})
			s.logger.Debug("upload rejected",
				zap.String("filename", u.Filename),
				zap.String("reason", verr.Message))
			continue
		}

		id := generateID()
		preview, err := s.newPreview(id, u)
		if err != nil {
			// Preview derivation failing is an admission failure for
			// this payload only.
			rejected = append(rejected, imaging.Rejection{Filename: u.Filename, Reason: "preview allocation failed"})
			s.logger.Warn("preview allocation failed",
				zap.String("filename", u.Filename),
				zap.Error(err))
			continue
		}
		pass = append(pass, admitted{id: id, upload: u, preview: preview})
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		for _, a := range pass {
			if err := a.preview.Release(); err != nil {
				s.logger.Warn("preview release failed", zap.Error(err))
			}
		}
		return nil, rejected, errors.ErrStoreClosed
	}

	now := time.Now()
	added := make([]ImageRecord, 0, len(pass))
	for _, a := range pass {
		rec := &ImageRecord{
			ID:          a.id,
			Filename:    a.upload.Filename,
			ContentType: imaging.NormalizeContentType(a.upload.ContentType),
			Size:        len(a.upload.Data),
			Source:      a.upload.Data,
			Preview:     a.preview,
			Status:      StatusPending,
			AddedAt:     now,
			UpdatedAt:   now,
		}
		s.records[rec.ID] = rec
		s.order = append(s.order, rec.ID)
		added = append(added, *rec)
	}
	counts := s.countsLocked()
	s.mu.Unlock()

	for _, rec := range added {
		s.emit(Event{Type: EventAdded, ID: rec.ID, Status: rec.Status, Counts: counts})
	}
	return added, rejected, nil
}

// Remove deletes one record and releases its preview handle.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrStoreClosed
	}
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return errors.ErrImageNotFound
	}
	delete(s.records, id)
	s.order = removeOrdered(s.order, id)
	counts := s.countsLocked()
	s.mu.Unlock()

	s.release(rec)
	s.emit(Event{Type: EventRemoved, ID: id, Status: rec.Status, Counts: counts})
	return nil
}

// Clear removes every record atomically and releases every handle. It
// returns the number of records removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	taken := make([]*ImageRecord, 0, len(s.order))
	for _, id := range s.order {
		taken = append(taken, s.records[id])
	}
	s.records = make(map[string]*ImageRecord)
	s.order = s.order[:0]
	s.mu.Unlock()

	for _, rec := range taken {
		s.release(rec)
	}
	if len(taken) > 0 {
		s.emit(Event{Type: EventCleared, Counts: Counts{}})
	}
	return len(taken)
}

// UpdateStatus merges a partial update into the record matching id,
// guarded by the state machine. An unknown id is a silent no-op so that
// late results from removed records are discarded, not faulted. The
// returned bool reports whether a record was updated.
func (s *Store) UpdateStatus(id string, status Status, patch Patch) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, errors.ErrStoreClosed
	}
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	if !CanTransition(rec.Status, status) {
		from := rec.Status
		s.mu.Unlock()
		return false, errors.New(errors.ErrIllegalTransition.Code,
			"illegal status transition: "+string(from)+" -> "+string(status))
	}

	rec.Status = status
	if patch.Progress != nil {
		rec.Progress = *patch.Progress
	}
	if patch.Text != nil {
		rec.Text = *patch.Text
	}
	if patch.Error != nil {
		rec.Error = *patch.Error
	}
	if patch.Attempts != nil {
		rec.Attempts = *patch.Attempts
	}
	rec.UpdatedAt = time.Now()
	snapshot := *rec
	counts := s.countsLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventUpdated, ID: id, Status: snapshot.Status, Progress: snapshot.Progress, Counts: counts})
	return true, nil
}

// BeginProcessing atomically moves a pending or previously failed record
// into processing, resetting progress and clearing the prior error. It
// returns a copy of the record, source bytes included, for the engine.
func (s *Store) BeginProcessing(id string) (ImageRecord, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ImageRecord{}, errors.ErrStoreClosed
	}
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return ImageRecord{}, errors.ErrImageNotFound
	}
	if rec.Status == StatusCompleted {
		s.mu.Unlock()
		return ImageRecord{}, errors.ErrNotReprocessable
	}
	if !CanTransition(rec.Status, StatusProcessing) {
		from := rec.Status
		s.mu.Unlock()
		return ImageRecord{}, errors.New(errors.ErrIllegalTransition.Code,
			"illegal status transition: "+string(from)+" -> processing")
	}

	rec.Status = StatusProcessing
	rec.Progress = 0
	rec.Error = ""
	rec.Attempts = 0
	rec.UpdatedAt = time.Now()
	snapshot := *rec
	counts := s.countsLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventUpdated, ID: id, Status: StatusProcessing, Counts: counts})
	return snapshot, nil
}

// SetText replaces the extracted text of a completed record. Text is
// user-editable only after a successful recognition.
func (s *Store) SetText(id, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrStoreClosed
	}
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return errors.ErrImageNotFound
	}
	if rec.Status != StatusCompleted {
		s.mu.Unlock()
		return errors.New(errors.ErrIllegalTransition.Code, "text is editable only after completion")
	}
	rec.Text = text
	rec.UpdatedAt = time.Now()
	counts := s.countsLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventUpdated, ID: id, Status: StatusCompleted, Progress: 100, Counts: counts})
	return nil
}

// Get returns a copy of one record.
func (s *Store) Get(id string) (ImageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return ImageRecord{}, false
	}
	return *rec, true
}

// Snapshot returns copies of all records in store order.
func (s *Store) Snapshot() []ImageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ImageRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out
}

// Counts aggregates the current statuses.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countsLocked()
}

// PendingIDs returns the ids of all pending records in store order.
func (s *Store) PendingIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0)
	for _, id := range s.order {
		if s.records[id].Status == StatusPending {
			ids = append(ids, id)
		}
	}
	return ids
}

// Teardown releases every outstanding preview handle and closes the
// store. It is idempotent; all later mutations fail with a closed error.
func (s *Store) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	taken := make([]*ImageRecord, 0, len(s.order))
	for _, id := range s.order {
		taken = append(taken, s.records[id])
	}
	s.records = make(map[string]*ImageRecord)
	s.order = nil
	s.mu.Unlock()

	for _, rec := range taken {
		s.release(rec)
	}

	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()

	s.logger.Info("record store torn down", zap.Int("released", len(taken)))
}

func (s *Store) release(rec *ImageRecord) {
	if rec.Preview == nil {
		return
	}
	if err := rec.Preview.Release(); err != nil {
		s.logger.Warn("preview release failed",
			zap.String("id", rec.ID),
			zap.Error(err))
	}
}

func (s *Store) countsLocked() Counts {
	var c Counts
	for _, rec := range s.records {
		switch rec.Status {
		case StatusPending:
			c.Pending++
		case StatusProcessing:
			c.Processing++
		case StatusCompleted:
			c.Completed++
		case StatusError:
			c.Error++
		}
	}
	c.Total = len(s.records)
	return c
}

func removeOrdered(order []string, id string) []string {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
