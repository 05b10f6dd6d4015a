// Package mediacontrol connects OS-level media surfaces (lock screen, media
// keys, remote controllers) to the playback engine.
package mediacontrol

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/app/state"
	"github.com/osa030/tunebox/internal/domain/track"
)

// Status is what a surface displays.
type Status struct {
	Track    track.Track
	Playing  bool
	Position func() time.Duration
}

// Handlers are the actions a surface may trigger.
type Handlers struct {
	Play     func()
	Pause    func()
	Toggle   func()
	Next     func()
	Previous func()
	Seek     func(time.Duration)
}

// Surface is an OS media session.
type Surface interface {
	Name() string
	Update(s Status) error
	SetHandlers(h Handlers) error
	Clear() error
}

// Controls is the part of the engine surfaces drive.
type Controls interface {
	TogglePlay()
	SkipTrack()
	PreviousTrack()
	Seek(d time.Duration)
	Position() time.Duration
}

// Bridge keeps every attached surface in sync with the state store.
type Bridge struct {
	store    *state.Store
	controls Controls

	mu       sync.Mutex
	surfaces []Surface
	subID    string
	closed   bool
}

// NewBridge creates a bridge and registers it with the store.
func NewBridge(store *state.Store, controls Controls, surfaces ...Surface) *Bridge {
	b := &Bridge{
		store:    store,
		controls: controls,
	}
	for _, s := range surfaces {
		b.Attach(s)
	}
	b.subID = store.Subscribe(b.onChange)
	return b
}

// Attach adds a surface and brings it up to date.
func (b *Bridge) Attach(s Surface) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.surfaces = append(b.surfaces, s)
	b.mu.Unlock()

	zlog.Info().Msgf("mediacontrol: surface attached: name=%s", s.Name())
	b.establish(s, b.store.Get())
}

// Close clears every surface and stops listening for changes.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	surfaces := b.surfaces
	b.surfaces = nil
	b.mu.Unlock()

	b.store.Unsubscribe(b.subID)
	for _, s := range surfaces {
		_ = s.SetHandlers(Handlers{})
		if err := s.Clear(); err != nil {
			zlog.Warn().Msgf("mediacontrol: failed to clear surface: name=%s error=%v", s.Name(), err)
		}
	}
}

func (b *Bridge) onChange(c state.Change) {
	if !c.CurrentChanged() && !c.StatusChanged() {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	surfaces := append([]Surface(nil), b.surfaces...)
	b.mu.Unlock()

	for _, s := range surfaces {
		b.establish(s, c.Next)
	}
}

// establish hands s a fresh set of handlers and the current status. Without
// a current track the surface is cleared.
func (b *Bridge) establish(s Surface, snap state.Snapshot) {
	if snap.Current == nil {
		if err := s.Clear(); err != nil {
			zlog.Warn().Msgf("mediacontrol: failed to clear surface: name=%s error=%v", s.Name(), err)
		}
		return
	}

	if err := s.SetHandlers(b.handlers()); err != nil {
		zlog.Warn().Msgf("mediacontrol: failed to set handlers: name=%s error=%v", s.Name(), err)
	}
	status := Status{
		Track:    *snap.Current,
		Playing:  snap.IsPlaying(),
		Position: b.controls.Position,
	}
	if err := s.Update(status); err != nil {
		zlog.Warn().Msgf("mediacontrol: failed to update surface: name=%s error=%v", s.Name(), err)
		return
	}
	zlog.Debug().Msgf("mediacontrol: surface updated: name=%s id=%s playing=%v", s.Name(), snap.Current.ID, status.Playing)
}

func (b *Bridge) handlers() Handlers {
	return Handlers{
		Play: func() {
			if !b.store.Get().IsPlaying() {
				b.controls.TogglePlay()
			}
		},
		Pause: func() {
			if b.store.Get().IsPlaying() {
				b.controls.TogglePlay()
			}
		},
		Toggle:   b.controls.TogglePlay,
		Next:     b.controls.SkipTrack,
		Previous: b.controls.PreviousTrack,
		Seek:     b.controls.Seek,
	}
}
