package main

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/app/gesture"
	"github.com/osa030/tunebox/internal/app/persistence"
	"github.com/osa030/tunebox/internal/app/playback"
	"github.com/osa030/tunebox/internal/domain/track"
	"github.com/osa030/tunebox/internal/infra/audio"
	"github.com/osa030/tunebox/internal/infra/config"
	"github.com/osa030/tunebox/internal/infra/sqlite"
)

// openStore opens the configured durable store. The returned func closes it.
func openStore(ctx context.Context, cfg config.StoreConfig) (persistence.Store, func(), error) {
	if cfg.Driver == "memory" {
		zlog.Warn().Msg("Using in-memory store, state will not survive a restart")
		return persistence.NewMemoryStore(), func() {}, nil
	}

	s, err := sqlite.Open(ctx, cfg.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	zlog.Info().Msgf("Store opened: path=%s", cfg.Path)
	return s, func() {
		if err := s.Close(); err != nil {
			zlog.Error().Msgf("Failed to close store: %v", err)
		}
	}, nil
}

// newPlayer returns the speaker, or a silent clock when output is disabled or
// the audio device cannot be opened.
func newPlayer(store persistence.Store, cache *trackCache, cfg *config.Config) playback.Player {
	if cfg.Media.Output == "none" {
		zlog.Info().Msg("Audio output disabled, using silent player")
		return audio.NewSilent()
	}

	loader := audio.NewLoader(store, cache.store, audio.LoaderConfig{
		Timeout: cfg.Playback.LoadTimeout(),
		MaxSize: cfg.Persistence.MaxBlobSize(),
	})
	speaker, err := audio.NewSpeaker(loader, cfg.Media.SampleRate)
	if err != nil {
		zlog.Warn().Msgf("Audio output unavailable, using silent player: %v", err)
		return audio.NewSilent()
	}
	return speaker
}

// trackCache hands downloaded streams to the synchronizer once it exists.
type trackCache struct {
	sync atomic.Pointer[persistence.Synchronizer]
}

func (c *trackCache) attach(s *persistence.Synchronizer) {
	c.sync.Store(s)
}

func (c *trackCache) store(ctx context.Context, t track.Track, data []byte) {
	s := c.sync.Load()
	if s == nil {
		return
	}
	if err := s.CacheTrack(ctx, t, bytes.NewReader(data)); err != nil {
		zlog.Warn().Msgf("Failed to cache track audio: id=%s error=%v", t.ID, err)
	}
}

// gestureControls routes the next and previous buttons of media surfaces
// through tap disambiguation.
type gestureControls struct {
	*playback.Engine
	buttons *gesture.Buttons
}

func (g gestureControls) SkipTrack()     { g.buttons.TapNext() }
func (g gestureControls) PreviousTrack() { g.buttons.TapPrevious() }

// watchEvents logs engine events until the channel is closed. The returned
// channel is closed when the loop exits.
func watchEvents(events <-chan playback.Event, onQueueEmpty func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			logEvent(ev)
			if ev.Type == playback.EventQueueEmpty && onQueueEmpty != nil {
				onQueueEmpty()
			}
		}
	}()
	return done
}

func logEvent(ev playback.Event) {
	switch ev.Type {
	case playback.EventWarning:
		zlog.Warn().Msgf("Playback warning: %s", ev.Message)
	case playback.EventNotice:
		zlog.Info().Msgf("Playback notice: %s", ev.Message)
	case playback.EventTrackStarted:
		if ev.Track != nil {
			zlog.Info().Msgf("Now playing: %s - %s", ev.Track.Artist.Name, ev.Track.Title)
		}
	default:
		id := ""
		if ev.Track != nil {
			id = ev.Track.ID
		}
		zlog.Debug().Msgf("Playback event: type=%s status=%s track=%s", ev.Type, ev.Status, id)
	}
}
