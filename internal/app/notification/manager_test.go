package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

type recordingStream struct {
	mu    sync.Mutex
	msgs  []*structpb.Struct
	err   error
	block chan struct{}
}

func (s *recordingStream) Send(msg *structpb.Struct) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingStream) received() []*structpb.Struct {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*structpb.Struct(nil), s.msgs...)
}

func nowPlaying(t *testing.T, title string) *structpb.Struct {
	t.Helper()
	msg, err := structpb.NewStruct(map[string]any{"title": title})
	require.NoError(t, err)
	return msg
}

func TestManager_Broadcast(t *testing.T) {
	m := NewManager()
	a, b := &recordingStream{}, &recordingStream{}
	m.Subscribe(a)
	idB := m.Subscribe(b)
	assert.Equal(t, 2, m.SubscriberCount())

	in := nowPlaying(t, "one")
	m.Broadcast(in)
	assert.NotContains(t, in.Fields, SequenceField, "input is not modified")

	m.Unsubscribe(idB)
	m.Broadcast(nowPlaying(t, "two"))

	require.Len(t, a.received(), 2)
	require.Len(t, b.received(), 1)
	assert.Equal(t, "two", a.received()[1].Fields["title"].GetStringValue())

	first := a.received()[0].Fields[SequenceField].GetNumberValue()
	second := a.received()[1].Fields[SequenceField].GetNumberValue()
	assert.Greater(t, second, first)

	last := m.Last()
	require.NotNil(t, last)
	assert.Equal(t, "two", last.Fields["title"].GetStringValue())
}

func TestManager_DropsFailingSubscriber(t *testing.T) {
	m := NewManager()
	m.Subscribe(&recordingStream{err: errors.New("stream closed")})
	ok := &recordingStream{}
	m.Subscribe(ok)

	m.Broadcast(nowPlaying(t, "x"))
	assert.Equal(t, 1, m.SubscriberCount())
	assert.Len(t, ok.received(), 1)
}

func TestManager_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager()
	m.sendTimeout = 20 * time.Millisecond
	slow := &recordingStream{block: make(chan struct{})}
	defer close(slow.block)
	m.Subscribe(slow)

	start := time.Now()
	m.Broadcast(nowPlaying(t, "x"))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, m.SubscriberCount())
}

func TestManager_SendAndClose(t *testing.T) {
	m := NewManager()
	assert.Nil(t, m.Last())

	s := &recordingStream{}
	id := m.Subscribe(s)
	require.NoError(t, m.Send(id, nowPlaying(t, "direct")))
	require.NoError(t, m.Send("unknown", nowPlaying(t, "ignored")))
	assert.Len(t, s.received(), 1)

	m.Close()
	assert.Zero(t, m.SubscriberCount())
}
