package playback

import (
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/app/state"
	"github.com/osa030/tunebox/internal/app/timer"
	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

// TogglePlay pauses a playing track, resumes a paused one, and restarts a
// stopped current track from the beginning.
func (e *Engine) TogglePlay() {
	p := e.gateway()
	if p == nil {
		e.warn("Cannot toggle playback: player unavailable")
		return
	}

	snap := e.store.Get()
	if snap.Current == nil {
		zlog.Debug().Msg("playback: toggle ignored, no current track")
		return
	}

	switch snap.Status {
	case state.StatusPlaying:
		e.playMu.Lock()
		e.mu.Lock()
		e.playGen++
		e.mu.Unlock()
		if err := p.Pause(); err != nil {
			zlog.Warn().Msgf("playback: pause failed: %v", err)
		}
		e.playMu.Unlock()
		e.stopPolling()
		pos := p.Position()
		next := e.store.Apply("pause", func(s state.Snapshot) state.Snapshot {
			if s.Current != nil {
				s.Status = state.StatusPaused
				s.Position = pos
			}
			return s
		})
		e.sendEvent(Event{Type: EventStateChanged, Track: next.Current, Status: next.Status})

	case state.StatusPaused:
		next := e.store.Apply("resume", func(s state.Snapshot) state.Snapshot {
			if s.Current != nil {
				s.Status = state.StatusPlaying
			}
			return s
		})
		e.sendEvent(Event{Type: EventStateChanged, Track: next.Current, Status: next.Status})
		e.resume(p)

	default:
		cur := *snap.Current
		next := e.store.Apply("restart", func(s state.Snapshot) state.Snapshot {
			if s.Current != nil {
				s.Status = state.StatusPlaying
				s.Position = 0
			}
			return s
		})
		e.sendEvent(Event{Type: EventStateChanged, Track: next.Current, Status: next.Status})
		e.load(cur, true)
	}
}

// handleEnded applies the track-end policy of the current repeat mode.
// Callbacks from a load that has since been replaced are ignored.
func (e *Engine) handleEnded(gen uint64) {
	e.mu.Lock()
	stale := gen != e.loadGen || e.closed
	p := e.player
	e.mu.Unlock()
	if stale || p == nil {
		zlog.Debug().Msgf("playback: ignoring stale ended callback: gen=%d", gen)
		return
	}

	snap := e.store.Get()
	if snap.Current == nil {
		return
	}
	ended := *snap.Current
	e.sendEvent(Event{Type: EventTrackEnded, Track: &ended, Status: snap.Status})
	zlog.Debug().Msgf("playback: track ended: id=%s repeat=%s queue=%d", ended.ID, snap.Settings.Repeat, len(snap.Queue))

	switch snap.Settings.Repeat {
	case settings.RepeatOne:
		e.restartCurrent(p, gen)
	case settings.RepeatAll:
		e.endedRepeatAll(p, gen)
	default:
		e.endedRepeatOff()
	}
}

// restartCurrent replays the current track from offset 0.
func (e *Engine) restartCurrent(p Player, gen uint64) {
	e.store.Apply("repeat_one", func(s state.Snapshot) state.Snapshot {
		s.Position = 0
		s.Status = state.StatusPlaying
		return s
	})
	_, play := e.intent()
	e.startPolling()
	e.async(func() {
		defer e.recoverTask("restart")
		if err := p.Seek(0); err != nil {
			zlog.Warn().Msgf("playback: failed to rewind: %v", err)
		}
		if _, err := e.playIfCurrent(e.ctx, p, gen, play); err != nil {
			zlog.Warn().Msgf("playback: replay rejected: %v", err)
			e.settle(gen, state.StatusPaused)
		}
	})
}

// endedRepeatAll skips to the next track. When the queue is exhausted and
// reseeding is enabled, the history is replayed oldest first and the
// finished track joins the history.
func (e *Engine) endedRepeatAll(p Player, gen uint64) {
	var f effect
	restart := false
	e.store.Apply("ended_repeat_all", func(s state.Snapshot) state.Snapshot {
		if len(s.Queue) > 0 || !e.config.RepeatAllReseed {
			return e.skipLocked(s, &f)
		}
		if len(s.Previous) == 0 {
			restart = true
			return s
		}

		cur := *s.Current
		loop := make([]track.Track, 0, len(s.Previous))
		for i := len(s.Previous) - 1; i >= 0; i-- {
			loop = append(loop, s.Previous[i])
		}
		loop = track.Without(track.Dedupe(loop), cur.ID)

		s.Queue = loop
		zlog.Info().Msgf("playback: queue exhausted under repeat-all, looping history: tracks=%d", len(loop))
		return e.skipLocked(s, &f)
	})
	if restart {
		e.restartCurrent(p, gen)
		return
	}
	e.run(f)
}

// endedRepeatOff skips when tracks remain; otherwise playback stops and the
// finished track stays current.
func (e *Engine) endedRepeatOff() {
	var f effect
	stopped := false
	e.store.Apply("ended_repeat_off", func(s state.Snapshot) state.Snapshot {
		if len(s.Queue) > 0 {
			return e.skipLocked(s, &f)
		}
		stopped = true
		s.Status = state.StatusIdle
		s.Position = 0
		f.emit(EventQueueEmpty, s.Current, s.Status)
		return s
	})
	if stopped {
		f.stop = true
	}
	e.run(f)
}

// SetRepeatMode changes the track-end policy. It takes effect at the next
// track end; the native loop flag follows RepeatOne immediately.
func (e *Engine) SetRepeatMode(m settings.RepeatMode) {
	e.store.Apply("set_repeat_mode", func(s state.Snapshot) state.Snapshot {
		s.Settings.Repeat = m
		return s
	})
	e.applyLoop(m)
}

// CycleRepeatMode advances off -> all -> one -> off and returns the new mode.
func (e *Engine) CycleRepeatMode() settings.RepeatMode {
	var m settings.RepeatMode
	e.store.Apply("cycle_repeat_mode", func(s state.Snapshot) state.Snapshot {
		s.Settings.Repeat = s.Settings.Repeat.Next()
		m = s.Settings.Repeat
		return s
	})
	e.applyLoop(m)
	return m
}

func (e *Engine) applyLoop(m settings.RepeatMode) {
	p := e.gateway()
	if p == nil {
		return
	}
	if err := p.SetLoop(m == settings.RepeatOne); err != nil {
		zlog.Warn().Msgf("playback: failed to set loop flag: %v", err)
	}
}

// SetShuffle sets the shuffle flag without reordering the queue.
func (e *Engine) SetShuffle(on bool) {
	e.store.Apply("set_shuffle", func(s state.Snapshot) state.Snapshot {
		s.Settings.Shuffle = on
		return s
	})
}

// SetVolume sets the output volume, clamped to [0, 1].
func (e *Engine) SetVolume(v float64) {
	v = settings.ClampVolume(v)
	e.store.Apply("set_volume", func(s state.Snapshot) state.Snapshot {
		s.Settings.Volume = v
		return s
	})
	if p := e.gateway(); p != nil {
		if err := p.SetVolume(v); err != nil {
			zlog.Warn().Msgf("playback: failed to set volume: %v", err)
		}
	}
}

// SetAudioQuality selects the stream quality for subsequent loads.
func (e *Engine) SetAudioQuality(q settings.AudioQuality) {
	e.store.Apply("set_audio_quality", func(s state.Snapshot) state.Snapshot {
		s.Settings.Quality = q
		return s
	})
	if p := e.gateway(); p != nil {
		if err := p.SetAudioQuality(q); err != nil {
			zlog.Warn().Msgf("playback: failed to set audio quality: %v", err)
		}
	}
}

// ApplySettings replaces all playback settings at once.
func (e *Engine) ApplySettings(s settings.Settings) {
	s.Volume = settings.ClampVolume(s.Volume)
	e.store.Apply("apply_settings", func(snap state.Snapshot) state.Snapshot {
		snap.Settings = s
		return snap
	})
	p := e.gateway()
	if p == nil {
		return
	}
	if err := p.SetVolume(s.Volume); err != nil {
		zlog.Warn().Msgf("playback: failed to set volume: %v", err)
	}
	if err := p.SetAudioQuality(s.Quality); err != nil {
		zlog.Warn().Msgf("playback: failed to set audio quality: %v", err)
	}
	e.applyLoop(s.Repeat)
}

// Seek moves the playback position of the current track.
func (e *Engine) Seek(d time.Duration) {
	p := e.gateway()
	if p == nil {
		e.warn("Cannot seek: player unavailable")
		return
	}
	if !e.store.Get().HasCurrent() {
		return
	}
	if d < 0 {
		d = 0
	}
	if length := p.Duration(); length > 0 && d > length {
		d = length
	}
	if err := p.Seek(d); err != nil {
		zlog.Warn().Msgf("playback: seek failed: position=%v error=%v", d, err)
		return
	}
	e.store.Apply("seek", func(s state.Snapshot) state.Snapshot {
		s.Position = d
		return s
	})
}

// SeekToEnd jumps to the end of the current track so the track-end policy
// runs. Without a known duration it skips instead.
func (e *Engine) SeekToEnd() {
	p := e.gateway()
	if p == nil {
		e.warn("Cannot seek: player unavailable")
		return
	}
	snap := e.store.Get()
	if snap.Current == nil {
		return
	}
	end := p.Duration()
	if end <= 0 {
		end = snap.Current.Duration
	}
	if end <= 0 {
		e.SkipTrack()
		return
	}
	e.Seek(end)
}

// Restart rewinds the current track to offset 0.
func (e *Engine) Restart() {
	e.Seek(0)
}

// Stop halts playback. The current track stays set.
func (e *Engine) Stop() {
	e.stopPlayer()
	next := e.store.Apply("stop", func(s state.Snapshot) state.Snapshot {
		s.Status = state.StatusIdle
		s.Position = 0
		return s
	})
	e.sendEvent(Event{Type: EventStateChanged, Track: next.Current, Status: next.Status})
}

// Position samples the player's current offset, falling back to the last
// recorded position.
func (e *Engine) Position() time.Duration {
	if p := e.gateway(); p != nil && e.store.Get().HasCurrent() {
		return p.Position()
	}
	return e.store.Get().Position
}

func (e *Engine) startPolling() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pollCancel != nil || e.closed {
		return
	}
	e.pollCancel = timer.Every(e.config.PollInterval, e.samplePosition)
}

func (e *Engine) stopPolling() {
	e.mu.Lock()
	cancel := e.pollCancel
	e.pollCancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// samplePosition records the player's offset while playing.
func (e *Engine) samplePosition() {
	p := e.gateway()
	if p == nil {
		return
	}
	if !e.store.Get().IsPlaying() {
		return
	}
	pos := p.Position()
	e.store.Apply("position", func(s state.Snapshot) state.Snapshot {
		if s.IsPlaying() {
			s.Position = pos
		}
		return s
	})
}
