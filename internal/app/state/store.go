package state

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/domain/settings"
)

// Mutation is a pure transform from one snapshot to the next. It receives a
// private copy and may modify it freely.
type Mutation func(Snapshot) Snapshot

// Listener is notified after a mutation has been applied.
type Listener func(Change)

type subscription struct {
	id string
	fn Listener
}

// Store owns the canonical snapshot. Mutations are serialized; listeners are
// called outside the store lock, in the order the mutations were applied, so
// a listener may itself call Apply.
type Store struct {
	mu       sync.Mutex
	snap     Snapshot
	subs     []subscription
	pending  []Change
	draining bool
}

// NewStore creates a store holding an empty snapshot with default settings.
func NewStore() *Store {
	return &Store{
		snap: Snapshot{Settings: settings.Default()},
	}
}

// Get returns a copy of the current snapshot.
func (s *Store) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Apply runs fn against the current snapshot and stores its result.
// The new snapshot is returned.
func (s *Store) Apply(reason string, fn Mutation) Snapshot {
	s.mu.Lock()
	prev := s.snap
	next := fn(prev.Clone())
	next.Version = prev.Version + 1
	s.snap = next
	s.pending = append(s.pending, Change{Reason: reason, Prev: prev.Clone(), Next: next.Clone()})
	if s.draining {
		s.mu.Unlock()
		return next.Clone()
	}
	s.draining = true
	s.mu.Unlock()

	s.drain()
	return next.Clone()
}

// drain delivers pending changes until none are left.
func (s *Store) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		change := s.pending[0]
		s.pending = s.pending[1:]
		subs := make([]subscription, len(s.subs))
		copy(subs, s.subs)
		s.mu.Unlock()

		for _, sub := range subs {
			s.notify(sub, change)
		}
	}
}

func (s *Store) notify(sub subscription, change Change) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("state: listener panicked: id=%s reason=%s panic=%v", sub.id, change.Reason, r)
		}
	}()
	sub.fn(change)
}

// Subscribe registers fn and returns its subscription ID.
func (s *Store) Subscribe(fn Listener) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (s *Store) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
