package recommend

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/domain/track"
)

// CatalogSourceConfig lists the tracks of a fixed catalogue.
type CatalogSourceConfig struct {
	Tracks []any `mapstructure:"tracks" validate:"min=1"`
}

// CatalogSource serves a fixed list of tracks from configuration.
type CatalogSource struct {
	name   string
	tracks []track.Track
}

// NewCatalogSource creates a catalogue source from settings.
func NewCatalogSource(name string, settings map[string]any) (*CatalogSource, error) {
	var cfg CatalogSourceConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}

	tracks, skipped := track.DecodeAll(cfg.Tracks)
	if len(tracks) == 0 {
		return nil, errors.New("catalog has no valid tracks")
	}
	if skipped > 0 {
		zlog.Warn().Msgf("recommend: skipped malformed catalog entries: source=%s count=%d", name, skipped)
	}
	return NewCatalog(name, tracks), nil
}

// NewCatalog creates a catalogue source over tracks.
func NewCatalog(name string, tracks []track.Track) *CatalogSource {
	if name == "" {
		name = "catalog"
	}
	return &CatalogSource{name: name, tracks: track.Dedupe(tracks)}
}

func (s *CatalogSource) Name() string { return s.name }

// Search matches query against title, artist and album, case-insensitively.
func (s *CatalogSource) Search(_ context.Context, query string, limit int) ([]track.Track, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []track.Track{}, nil
	}

	var out []track.Track
	for _, t := range s.tracks {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(t.Title), q) ||
			strings.Contains(strings.ToLower(t.Artist.Name), q) ||
			strings.Contains(strings.ToLower(t.Album.Title), q) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Recommend returns catalogue tracks other than the seeds, tracks by the
// seeds' artists first.
func (s *CatalogSource) Recommend(_ context.Context, seeds []track.Track, limit int) ([]track.Track, error) {
	artists := make(map[string]bool, len(seeds))
	for _, seed := range seeds {
		artists[strings.ToLower(seed.Artist.Name)] = true
	}

	var same, other []track.Track
	for _, t := range s.tracks {
		if track.Contains(seeds, t.ID) {
			continue
		}
		if artists[strings.ToLower(t.Artist.Name)] {
			same = append(same, t)
		} else {
			other = append(other, t)
		}
	}

	out := append(same, other...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
