package record

// EventType names a store mutation.
type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
	EventCleared EventType = "cleared"
)

// Event is emitted after every store mutation. Counts reflects the store
// as of the mutation, so subscribers can render without polling.
type Event struct {
	Type     EventType `json:"type"`
	ID       string    `json:"id,omitempty"`
	Status   Status    `json:"status,omitempty"`
	Progress int       `json:"progress"`
	Counts   Counts    `json:"counts"`
}

const subscriberBuffer = 64

// Subscribe registers a listener for store events. The returned cancel
// function unregisters it and closes the channel. A slow subscriber
// drops events rather than blocking mutations.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan Event, subscriberBuffer)

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Store) emit(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
