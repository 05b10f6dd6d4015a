// Package persistence mirrors playback state into a durable key-value store
// and restores it at startup.
package persistence

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunebox/internal/domain/playlist"
	"github.com/osa030/tunebox/internal/domain/track"
)

// Setting keys.
const (
	KeyCurrentTrack = "current_track"
	KeyVolume       = "volume"
	KeyShuffle      = "shuffle"
	KeyAudioQuality = "audio_quality"
	KeyRepeatMode   = "repeat_mode"
)

// ErrNotFound is returned by getters when nothing is stored under a key.
var ErrNotFound = errors.New("not found")

// Store is the durable store. Keys are written independently; there is no
// transaction spanning several keys.
type Store interface {
	StoreSetting(ctx context.Context, key, value string) error
	GetSetting(ctx context.Context, key string) (string, error)

	StoreQueue(ctx context.Context, tracks []track.Track) error
	GetQueue(ctx context.Context) ([]track.Track, error)
	ClearQueue(ctx context.Context) error

	StorePlaylist(ctx context.Context, p *playlist.Playlist) error
	GetAllPlaylists(ctx context.Context) ([]*playlist.Playlist, error)
	DeletePlaylistByName(ctx context.Context, name string) error

	StoreRecommendedTracks(ctx context.Context, tracks []track.Track) error
	GetRecommendedTracks(ctx context.Context) ([]track.Track, error)

	StoreRecentlyPlayed(ctx context.Context, tracks []track.Track) error
	GetRecentlyPlayed(ctx context.Context) ([]track.Track, error)

	StoreTrackBlob(ctx context.Context, trackID string, data []byte) error
	GetTrackBlob(ctx context.Context, trackID string) ([]byte, error)
}
