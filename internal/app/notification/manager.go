// Package notification fans now-playing updates out to remote subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// SequenceField is the field stamped with the broadcast sequence number.
const SequenceField = "sequence"

// DefaultSendTimeout bounds a single subscriber send.
const DefaultSendTimeout = 500 * time.Millisecond

// Stream receives notifications for one subscriber.
type Stream interface {
	Send(*structpb.Struct) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration

	lastMu sync.RWMutex
	last   *structpb.Struct
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   DefaultSendTimeout,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	zlog.Debug().Msgf("notification: subscribed: id=%s", id)
	return id
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Last returns a copy of the most recent broadcast, or nil before the first.
func (m *Manager) Last() *structpb.Struct {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	if m.last == nil {
		return nil
	}
	return cloneStruct(m.last)
}

// Broadcast stamps msg with the next sequence number and sends it to all
// subscribers. Each send runs in its own goroutine bounded by the send
// timeout; subscribers whose send fails are dropped.
func (m *Manager) Broadcast(msg *structpb.Struct) {
	msg = cloneStruct(msg)
	msg.Fields[SequenceField] = structpb.NewNumberValue(float64(m.NextSequenceNo()))

	m.lastMu.Lock()
	m.last = msg
	m.lastMu.Unlock()

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(cloneStruct(msg))
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: dropping subscriber after send failure: id=%s error=%v", s.id, err)
					m.Unsubscribe(s.id)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send timed out: id=%s", s.id)
			}
		}(sub)
	}
	wg.Wait()
}

// Send sends a notification to a specific subscriber.
func (m *Manager) Send(subscriptionID string, msg *structpb.Struct) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return sub.stream.Send(msg)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}

func cloneStruct(s *structpb.Struct) *structpb.Struct {
	out, _ := proto.Clone(s).(*structpb.Struct)
	if out == nil {
		out = &structpb.Struct{}
	}
	if out.Fields == nil {
		out.Fields = make(map[string]*structpb.Value)
	}
	return out
}
