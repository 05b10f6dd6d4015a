package audio

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/app/playback"
	"github.com/osa030/tunebox/internal/app/timer"
	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

// Silent is a Player without audio output. It keeps time against the
// track's advertised duration and ends the track when that elapses, so the
// queue advances as it would with a speaker.
type Silent struct {
	mu sync.Mutex

	loaded   bool
	length   time.Duration
	offset   time.Duration // Position when playback last started or paused
	started  time.Time     // Zero while paused
	loop     bool
	volume   float64
	quality  settings.AudioQuality
	onEnded  func()
	endTimer timer.Timer

	now func() time.Time
}

var _ playback.Player = (*Silent)(nil)

// NewSilent creates a silent player.
func NewSilent() *Silent {
	return &Silent{volume: 1, quality: settings.QualityHigh, now: time.Now}
}

func (s *Silent) Load(_ context.Context, t track.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endTimer.Cancel()
	s.loaded = true
	s.length = t.Duration
	s.offset = 0
	s.started = time.Time{}
	zlog.Debug().Msgf("audio: silent load: id=%s duration=%v", t.ID, t.Duration)
	return nil
}

func (s *Silent) Play(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNothingLoaded
	}
	if s.started.IsZero() {
		s.started = s.now()
	}
	s.scheduleEndLocked()
	return nil
}

func (s *Silent) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = s.positionLocked()
	s.started = time.Time{}
	s.endTimer.Cancel()
	return nil
}

func (s *Silent) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endTimer.Cancel()
	s.loaded = false
	s.length = 0
	s.offset = 0
	s.started = time.Time{}
	return nil
}

func (s *Silent) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Silent) positionLocked() time.Duration {
	pos := s.offset
	if !s.started.IsZero() {
		pos += s.now().Sub(s.started)
	}
	if s.length > 0 && pos > s.length {
		if s.loop {
			return pos % s.length
		}
		return s.length
	}
	return pos
}

func (s *Silent) Seek(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return ErrNothingLoaded
	}
	if d < 0 {
		d = 0
	}
	if s.length > 0 && d > s.length {
		d = s.length
	}
	s.offset = d
	if !s.started.IsZero() {
		s.started = s.now()
		s.scheduleEndLocked()
	}
	return nil
}

func (s *Silent) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length
}

func (s *Silent) SetVolume(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = settings.ClampVolume(v)
	return nil
}

func (s *Silent) SetAudioQuality(q settings.AudioQuality) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quality = q
	return nil
}

func (s *Silent) SetLoop(loop bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = loop
	if !s.started.IsZero() {
		s.scheduleEndLocked()
	}
	return nil
}

func (s *Silent) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

// scheduleEndLocked arms the end-of-track timer for the remaining time.
func (s *Silent) scheduleEndLocked() {
	if s.length <= 0 {
		return
	}
	remaining := s.length - s.positionLocked()
	if remaining < 0 {
		remaining = 0
	}
	s.endTimer.Schedule(remaining, s.ended)
}

func (s *Silent) ended() {
	s.mu.Lock()
	if s.started.IsZero() || !s.loaded {
		s.mu.Unlock()
		return
	}
	if s.loop {
		s.offset = 0
		s.started = s.now()
		s.scheduleEndLocked()
		s.mu.Unlock()
		return
	}
	s.offset = s.length
	s.started = time.Time{}
	fn := s.onEnded
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}
