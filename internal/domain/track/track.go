// Package track provides the Track domain entity and its normalization rules.
package track

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Placeholder values used when an ingested track is missing a field.
const (
	DefaultTitle      = "Unknown Title"
	DefaultArtistName = "Unknown Artist"
	DefaultAlbumTitle = "Unknown Album"
	PlaceholderCover  = "/images/placeholder-cover.png"

	// FallbackIDPrefix marks identifiers synthesized locally.
	FallbackIDPrefix = "local-"
)

// Track is the canonical unit of playable media.
type Track struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Artist   Artist        `json:"artist"`
	Album    Album         `json:"album"`
	Duration time.Duration `json:"duration,omitempty"` // Zero when unknown
	Preview  string        `json:"preview,omitempty"`  // Stream URL
	Source   string        `json:"source,omitempty"`   // Provider that produced the track
}

// Artist holds the performing artist.
type Artist struct {
	Name string `json:"name"`
}

// Album holds the album title and its four cover variants.
type Album struct {
	Title       string `json:"title"`
	CoverSmall  string `json:"cover_small"`
	CoverMedium string `json:"cover_medium"`
	CoverBig    string `json:"cover_big"`
	CoverXL     string `json:"cover_xl"`
}

// idNamespace scopes content-derived fallback identifiers.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/osa030/tunebox/track"))

// now is replaced in tests.
var now = time.Now

// Sanitize fills every missing field of t with its documented default.
// It never fails.
func Sanitize(t Track) Track {
	if strings.TrimSpace(t.ID) == "" {
		t.ID = FallbackID(t)
	}
	t.Title = orDefault(t.Title, DefaultTitle)
	t.Artist.Name = orDefault(t.Artist.Name, DefaultArtistName)
	t.Album.Title = orDefault(t.Album.Title, DefaultAlbumTitle)
	t.Album.CoverSmall = orDefault(t.Album.CoverSmall, PlaceholderCover)
	t.Album.CoverMedium = orDefault(t.Album.CoverMedium, PlaceholderCover)
	t.Album.CoverBig = orDefault(t.Album.CoverBig, PlaceholderCover)
	t.Album.CoverXL = orDefault(t.Album.CoverXL, PlaceholderCover)
	return t
}

// FallbackID synthesizes an identifier for a track that arrived without one.
// Tracks carrying any descriptive content get a stable id derived from it, so
// the same untagged track imported twice collapses to one entry. Tracks with no
// content at all get a timestamped random id.
func FallbackID(t Track) string {
	parts := []string{
		strings.TrimSpace(strings.ToLower(t.Title)),
		strings.TrimSpace(strings.ToLower(t.Artist.Name)),
		strings.TrimSpace(strings.ToLower(t.Album.Title)),
	}
	key := strings.Join(parts, "\x1f")
	if strings.Trim(key, "\x1f") != "" {
		return FallbackIDPrefix + uuid.NewSHA1(idNamespace, []byte(key)).String()
	}
	return FallbackIDPrefix + strconv.FormatInt(now().UnixMilli(), 36) + "-" + uuid.NewString()
}

// IsFallbackID reports whether id was synthesized by FallbackID.
func IsFallbackID(id string) bool {
	return strings.HasPrefix(id, FallbackIDPrefix)
}

// Cover returns the largest cover that is not the placeholder.
func (t *Track) Cover() string {
	for _, c := range []string{t.Album.CoverXL, t.Album.CoverBig, t.Album.CoverMedium, t.Album.CoverSmall} {
		if c != "" && c != PlaceholderCover {
			return c
		}
	}
	return PlaceholderCover
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
