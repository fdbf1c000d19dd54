// Package feed holds the session's message timeline: an append-only,
// id-keyed set that admits each message once and notifies subscribers.
package feed

import (
	"iter"
	"slices"
	"sync"

	"github.com/eldtechnologies/chatline/internal/events"
	"github.com/eldtechnologies/chatline/internal/models"
)

// Store is a deduplicating, insertion-ordered message collection.
type Store struct {
	mu    sync.RWMutex
	seen  map[string]struct{}
	order []models.Message
	bus   *events.Broadcaster[models.Message]
	stats Observer
}

// Observer receives admission outcomes, typically for metrics.
type Observer interface {
	Admitted()
	Duplicate()
}

type nopObserver struct{}

func (nopObserver) Admitted()  {}
func (nopObserver) Duplicate() {}

// NewStore creates an empty Store. obs may be nil.
func NewStore(obs Observer) *Store {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Store{
		seen:  make(map[string]struct{}),
		bus:   events.NewBroadcaster[models.Message](),
		stats: obs,
	}
}

// Admit inserts m unless a message with the same id was already admitted.
// It reports whether m was inserted. New messages are published to
// subscribers after the store lock is released.
func (s *Store) Admit(m models.Message) bool {
	s.mu.Lock()
	if _, dup := s.seen[m.ID]; dup {
		s.mu.Unlock()
		s.stats.Duplicate()
		return false
	}
	s.seen[m.ID] = struct{}{}
	s.order = append(s.order, m)
	s.mu.Unlock()

	s.stats.Admitted()
	s.bus.Publish(m)
	return true
}

// BulkAdmit admits ms in ascending SentAt order. Ties keep input order.
// It returns the number of messages inserted.
func (s *Store) BulkAdmit(ms []models.Message) int {
	sorted := slices.Clone(ms)
	slices.SortStableFunc(sorted, func(a, b models.Message) int {
		switch {
		case a.SentAt < b.SentAt:
			return -1
		case a.SentAt > b.SentAt:
			return 1
		default:
			return 0
		}
	})

	n := 0
	for _, m := range sorted {
		if s.Admit(m) {
			n++
		}
	}
	return n
}

// All yields the stored messages in store order. Each call starts from
// the first message; messages admitted during iteration are not yielded.
func (s *Store) All() iter.Seq[models.Message] {
	return func(yield func(models.Message) bool) {
		s.mu.RLock()
		snapshot := s.order[:len(s.order):len(s.order)]
		s.mu.RUnlock()

		for _, m := range snapshot {
			if !yield(m) {
				return
			}
		}
	}
}

// Has reports whether a message with id was admitted.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Subscribe registers fn for "new message" events.
func (s *Store) Subscribe(fn func(models.Message)) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

// Reset drops every stored message. Subscribers stay registered.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
	s.order = nil
}
