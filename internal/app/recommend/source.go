// Package recommend gathers tracks from remote catalogues, for search and
// for filling the queue when nothing is persisted.
package recommend

import (
	"context"

	"github.com/osa030/tunebox/internal/domain/track"
)

// Source is a catalogue that can search and recommend tracks.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Search returns up to limit tracks matching query.
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)

	// Recommend returns up to limit tracks related to seeds. With no seeds
	// the source returns whatever it considers popular.
	Recommend(ctx context.Context, seeds []track.Track, limit int) ([]track.Track, error)
}

// SpotifyClient defines the Spotify operations used by sources.
type SpotifyClient interface {
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
	Recommend(ctx context.Context, seedIDs []string, limit int) ([]track.Track, error)
	GetPlaylistTracksRandom(ctx context.Context, playlistURL string, count int) ([]track.Track, error)
}
