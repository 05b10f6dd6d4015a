package mediacontrol

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunebox/internal/app/state"
	"github.com/osa030/tunebox/internal/domain/track"
)

type fakeSurface struct {
	mu       sync.Mutex
	updates  []Status
	handlers Handlers
	clears   int
}

func (f *fakeSurface) Name() string { return "fake" }

func (f *fakeSurface) Update(s Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, s)
	return nil
}

func (f *fakeSurface) SetHandlers(h Handlers) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
	return nil
}

func (f *fakeSurface) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeSurface) last() (Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return Status{}, false
	}
	return f.updates[len(f.updates)-1], true
}

type fakeControls struct {
	store *state.Store
	calls []string
	seeks []time.Duration
}

func (c *fakeControls) TogglePlay() {
	c.calls = append(c.calls, "toggle")
	c.store.Apply("toggle", func(s state.Snapshot) state.Snapshot {
		if s.Status == state.StatusPlaying {
			s.Status = state.StatusPaused
		} else {
			s.Status = state.StatusPlaying
		}
		return s
	})
}
func (c *fakeControls) SkipTrack()              { c.calls = append(c.calls, "next") }
func (c *fakeControls) PreviousTrack()          { c.calls = append(c.calls, "previous") }
func (c *fakeControls) Seek(d time.Duration)    { c.seeks = append(c.seeks, d) }
func (c *fakeControls) Position() time.Duration { return 7 * time.Second }

func setCurrent(st *state.Store, id string, status state.Status) {
	st.Apply("test", func(s state.Snapshot) state.Snapshot {
		if id == "" {
			s.Current = nil
		} else {
			t := track.Sanitize(track.Track{ID: id, Title: "Song " + id})
			s.Current = &t
		}
		s.Status = status
		return s
	})
}

func TestBridge_MetadataFollowsState(t *testing.T) {
	st := state.NewStore()
	ctrl := &fakeControls{store: st}
	surface := &fakeSurface{}
	b := NewBridge(st, ctrl, surface)
	t.Cleanup(b.Close)

	assert.Equal(t, 1, surface.clears, "attaching without a track clears the surface")

	setCurrent(st, "a", state.StatusPlaying)
	got, ok := surface.last()
	require.True(t, ok)
	assert.Equal(t, "a", got.Track.ID)
	assert.Equal(t, "Song a", got.Track.Title)
	assert.True(t, got.Playing)
	assert.Equal(t, 7*time.Second, got.Position())

	setCurrent(st, "a", state.StatusPaused)
	got, _ = surface.last()
	assert.False(t, got.Playing)

	n := len(surface.updates)
	st.Apply("volume", func(s state.Snapshot) state.Snapshot {
		s.Settings.Volume = 0.5
		return s
	})
	assert.Len(t, surface.updates, n, "unrelated changes do not touch the surface")

	setCurrent(st, "", state.StatusIdle)
	assert.Equal(t, 2, surface.clears)
}

func TestBridge_Handlers(t *testing.T) {
	st := state.NewStore()
	ctrl := &fakeControls{store: st}
	surface := &fakeSurface{}
	b := NewBridge(st, ctrl, surface)
	t.Cleanup(b.Close)

	setCurrent(st, "a", state.StatusPlaying)
	h := surface.handlers

	h.Play()
	assert.Empty(t, ctrl.calls, "play while playing is a no-op")
	h.Pause()
	assert.Equal(t, []string{"toggle"}, ctrl.calls)
	assert.Equal(t, state.StatusPaused, st.Get().Status)
	h.Pause()
	assert.Equal(t, []string{"toggle"}, ctrl.calls)
	h.Play()
	assert.Equal(t, state.StatusPlaying, st.Get().Status)

	h.Next()
	h.Previous()
	h.Seek(42 * time.Second)
	assert.Equal(t, []string{"toggle", "toggle", "next", "previous"}, ctrl.calls)
	assert.Equal(t, []time.Duration{42 * time.Second}, ctrl.seeks)
}

func TestBridge_AttachLateAndClose(t *testing.T) {
	st := state.NewStore()
	ctrl := &fakeControls{store: st}
	first := &fakeSurface{}
	b := NewBridge(st, ctrl, first)

	setCurrent(st, "a", state.StatusPlaying)

	second := &fakeSurface{}
	b.Attach(second)
	got, ok := second.last()
	require.True(t, ok)
	assert.Equal(t, "a", got.Track.ID)

	b.Close()
	assert.Equal(t, 0, st.SubscriberCount())
	assert.Equal(t, 2, first.clears)
	assert.Equal(t, 1, second.clears)
	assert.Nil(t, first.handlers.Play)

	setCurrent(st, "b", state.StatusPlaying)
	got, _ = first.last()
	assert.Equal(t, "a", got.Track.ID)
	assert.NotPanics(t, b.Close)
}
