package persistence

import (
	"context"
	"encoding/json"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/domain/playlist"
	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

// Target receives restored state.
type Target interface {
	ApplySettings(s settings.Settings)
	Seed(queue, previous []track.Track)
	PlayTrack(t track.Track, autoPlay bool)
}

// FetchFunc produces fresh recommendations when nothing is persisted.
type FetchFunc func(ctx context.Context) ([]track.Track, error)

// QueueSource tells where the restored queue came from.
type QueueSource string

const (
	QueueFromStore       QueueSource = "queue"
	QueueFromRecommended QueueSource = "recommended"
	QueueFromFetch       QueueSource = "fetch"
	QueueEmpty           QueueSource = "empty"
)

// RestoreOptions controls Restore.
type RestoreOptions struct {
	AutoPlay bool      // Start playing the restored current track
	Fetch    FetchFunc // Optional
}

// Restored describes what Restore found.
type Restored struct {
	Settings    settings.Settings
	Playlists   []*playlist.Playlist
	Previous    []track.Track
	Queue       []track.Track
	QueueSource QueueSource
	Current     *track.Track
}

// Restore loads persisted state into target: settings first, then playlists
// and recently played tracks, then the queue, and finally the current track.
// The queue prefers the persisted queue, then persisted recommendations, then
// a fresh fetch. Read failures are logged and treated as nothing persisted.
func Restore(ctx context.Context, store Store, target Target, opts RestoreOptions) Restored {
	var r Restored

	r.Settings = decodeSettings(ctx, store)
	target.ApplySettings(r.Settings)
	zlog.Debug().Msgf("persistence: settings restored: volume=%v shuffle=%v quality=%s repeat=%s",
		r.Settings.Volume, r.Settings.Shuffle, r.Settings.Quality, r.Settings.Repeat)

	playlists, err := store.GetAllPlaylists(ctx)
	if err != nil {
		zlog.Error().Msgf("persistence: failed to load playlists: %v", err)
	}
	r.Playlists = playlists

	previous, err := store.GetRecentlyPlayed(ctx)
	if err != nil {
		zlog.Error().Msgf("persistence: failed to load recently played: %v", err)
	}
	r.Previous = track.Dedupe(previous)

	r.Queue, r.QueueSource = restoreQueue(ctx, store, opts.Fetch)
	target.Seed(r.Queue, r.Previous)

	if cur, ok := restoreCurrent(ctx, store); ok {
		r.Current = &cur
		target.PlayTrack(cur, opts.AutoPlay)
	}

	zlog.Info().Msgf("persistence: state restored: playlists=%d previous=%d queue=%d source=%s current=%v",
		len(r.Playlists), len(r.Previous), len(r.Queue), r.QueueSource, r.Current != nil)
	return r
}

func restoreQueue(ctx context.Context, store Store, fetch FetchFunc) ([]track.Track, QueueSource) {
	queue, err := store.GetQueue(ctx)
	if err != nil {
		zlog.Error().Msgf("persistence: failed to load queue: %v", err)
	}
	if queue = track.Dedupe(queue); len(queue) > 0 {
		return queue, QueueFromStore
	}

	recommended, err := store.GetRecommendedTracks(ctx)
	if err != nil {
		zlog.Error().Msgf("persistence: failed to load recommended tracks: %v", err)
	}
	if recommended = track.Dedupe(recommended); len(recommended) > 0 {
		return recommended, QueueFromRecommended
	}

	if fetch == nil {
		return nil, QueueEmpty
	}
	fetched, err := fetch(ctx)
	if err != nil {
		zlog.Warn().Msgf("persistence: recommendation fetch failed: %v", err)
		return nil, QueueEmpty
	}
	fetched = track.Dedupe(fetched)
	if len(fetched) == 0 {
		return nil, QueueEmpty
	}
	if err := store.StoreRecommendedTracks(ctx, fetched); err != nil {
		zlog.Error().Msgf("persistence: failed to store recommended tracks: %v", err)
	}
	return fetched, QueueFromFetch
}

func restoreCurrent(ctx context.Context, store Store) (track.Track, bool) {
	raw, ok := readSetting(ctx, store, KeyCurrentTrack)
	if !ok {
		return track.Track{}, false
	}
	var t track.Track
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		zlog.Warn().Msgf("persistence: invalid current track setting: %v", err)
		return track.Track{}, false
	}
	return track.Sanitize(t), true
}
