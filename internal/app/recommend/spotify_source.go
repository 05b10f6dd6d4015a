package recommend

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/domain/track"
)

// SpotifySourceConfig configures a Spotify source.
type SpotifySourceConfig struct {
	// PlaylistURL is sampled when seeds yield nothing.
	PlaylistURL string `mapstructure:"playlist_url"`
}

// SpotifySource searches and recommends through the Spotify API.
type SpotifySource struct {
	name    string
	spotify SpotifyClient
	config  SpotifySourceConfig
}

// NewSpotifySource creates a Spotify source.
func NewSpotifySource(name string, spotify SpotifyClient, settings map[string]any) (*SpotifySource, error) {
	if spotify == nil {
		return nil, errors.New("spotify client is required")
	}
	var cfg SpotifySourceConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	if name == "" {
		name = "spotify"
	}
	return &SpotifySource{name: name, spotify: spotify, config: cfg}, nil
}

func (s *SpotifySource) Name() string { return s.name }

func (s *SpotifySource) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	return s.spotify.Search(ctx, query, limit)
}

// Recommend uses the seeds' Spotify ids. Without usable seeds, or when the
// API returns nothing, the configured playlist is sampled instead.
func (s *SpotifySource) Recommend(ctx context.Context, seeds []track.Track, limit int) ([]track.Track, error) {
	var ids []string
	for _, seed := range seeds {
		if !track.IsFallbackID(seed.ID) {
			ids = append(ids, seed.ID)
		}
	}

	if len(ids) > 0 {
		tracks, err := s.spotify.Recommend(ctx, ids, limit)
		if err != nil && s.config.PlaylistURL == "" {
			return nil, err
		}
		if err != nil {
			zlog.Warn().Msgf("recommend: spotify recommendations failed, sampling playlist: %v", err)
		}
		if len(tracks) > 0 {
			return tracks, nil
		}
	}

	if s.config.PlaylistURL == "" {
		return []track.Track{}, nil
	}
	return s.spotify.GetPlaylistTracksRandom(ctx, s.config.PlaylistURL, limit)
}
