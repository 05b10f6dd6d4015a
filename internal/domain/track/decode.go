package track

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// payload mirrors the loosely typed track objects returned by catalogue APIs
// and stored by older releases: numeric ids, nested artist/album objects and
// durations in seconds.
type payload struct {
	ID     string `mapstructure:"id"`
	Title  string `mapstructure:"title"`
	Name   string `mapstructure:"name"`
	Artist struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"artist"`
	Album struct {
		Title       string `mapstructure:"title"`
		CoverSmall  string `mapstructure:"cover_small"`
		CoverMedium string `mapstructure:"cover_medium"`
		CoverBig    string `mapstructure:"cover_big"`
		CoverXL     string `mapstructure:"cover_xl"`
	} `mapstructure:"album"`
	Duration int    `mapstructure:"duration"`
	Preview  string `mapstructure:"preview"`
	Source   string `mapstructure:"source"`
}

// Decode converts a map-shaped track object into a sanitized Track.
func Decode(raw any) (Track, error) {
	if raw == nil {
		return Track{}, errors.New("track payload is nil")
	}

	var p payload
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return Track{}, errors.Wrap(err, "failed to create decoder")
	}
	if err := dec.Decode(raw); err != nil {
		return Track{}, errors.Wrap(err, "failed to decode track payload")
	}

	title := p.Title
	if title == "" {
		title = p.Name
	}

	return Sanitize(Track{
		ID:     p.ID,
		Title:  title,
		Artist: Artist{Name: p.Artist.Name},
		Album: Album{
			Title:       p.Album.Title,
			CoverSmall:  p.Album.CoverSmall,
			CoverMedium: p.Album.CoverMedium,
			CoverBig:    p.Album.CoverBig,
			CoverXL:     p.Album.CoverXL,
		},
		Duration: time.Duration(p.Duration) * time.Second,
		Preview:  p.Preview,
		Source:   p.Source,
	}), nil
}

// DecodeAll decodes every element of raws, skipping elements that fail, and
// dedupes the result. The number of skipped elements is returned.
func DecodeAll(raws []any) ([]Track, int) {
	tracks := make([]Track, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		t, err := Decode(raw)
		if err != nil {
			skipped++
			continue
		}
		tracks = append(tracks, t)
	}
	return Dedupe(tracks), skipped
}
