// Package playlist provides the Playlist domain entity.
package playlist

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunebox/internal/domain/track"
)

// ErrInvalidName is returned for playlists without a usable name.
var ErrInvalidName = errors.New("playlist name is required")

// Playlist is a named, user-curated list of tracks. Names are unique within
// the durable store.
type Playlist struct {
	Name      string        `json:"name"`
	Tracks    []track.Track `json:"tracks"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// New creates a playlist with sanitized, deduplicated tracks.
func New(name string, tracks []track.Track) (*Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	now := time.Now()
	return &Playlist{
		Name:      name,
		Tracks:    track.Dedupe(tracks),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Add appends tracks, keeping the existing entry when an id repeats.
func (p *Playlist) Add(tracks ...track.Track) {
	p.Tracks = track.Dedupe(append(track.Clone(p.Tracks), tracks...))
	p.UpdatedAt = time.Now()
}

// Remove drops the track with id. It reports whether anything was removed.
func (p *Playlist) Remove(id string) bool {
	if !track.Contains(p.Tracks, id) {
		return false
	}
	p.Tracks = track.Without(p.Tracks, id)
	p.UpdatedAt = time.Now()
	return true
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	return track.IDs(p.Tracks)
}

// TotalDuration returns the total duration of all tracks in seconds.
func (p *Playlist) TotalDuration() int64 {
	var total int64
	for _, t := range p.Tracks {
		total += int64(t.Duration.Seconds())
	}
	return total
}
