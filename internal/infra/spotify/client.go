// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/tunebox/internal/domain/track"
)

// SourceName is recorded in Track.Source for tracks produced by this client.
const SourceName = "spotify"

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// Scopes requested by the authorization flow.
var Scopes = []string{
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadRecentlyPlayed,
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(Scopes...),
	)

	// The access token is obtained on first use from the refresh token.
	httpClient := auth.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	market := cfg.Market
	if market == "" {
		market = "JP"
	}

	return &Client{
		client:     spotify.New(httpClient),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (track.Track, error) {
	id := extractTrackID(trackID)
	if id == "" {
		return track.Track{}, errors.New("track id is required")
	}

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to get track")
	}

	return convertTrack(result), nil
}

// Search searches for tracks on Spotify.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}

	limit = clampLimit(limit, 20, 50)

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}
	if result.Tracks == nil {
		return []track.Track{}, nil
	}

	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, convertTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// Recommend returns tracks similar to the seed tracks. Seeds that are not
// Spotify ids are ignored; at most five seeds are used.
func (c *Client) Recommend(ctx context.Context, seedIDs []string, limit int) ([]track.Track, error) {
	var seeds spotify.Seeds
	for _, id := range seedIDs {
		id = extractTrackID(id)
		if id == "" || track.IsFallbackID(id) {
			continue
		}
		seeds.Tracks = append(seeds.Tracks, spotify.ID(id))
		if len(seeds.Tracks) == 5 {
			break
		}
	}
	if len(seeds.Tracks) == 0 {
		return []track.Track{}, nil
	}

	limit = clampLimit(limit, 20, 100)

	var recs *spotify.Recommendations
	err := c.retry(func() error {
		r, err := c.client.GetRecommendations(ctx, seeds, nil,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		recs = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get recommendations")
	}

	ids := make([]spotify.ID, 0, len(recs.Tracks))
	for _, t := range recs.Tracks {
		ids = append(ids, t.ID)
	}
	return c.getTracks(ctx, ids)
}

// getTracks resolves ids to full tracks in batches of 50.
func (c *Client) getTracks(ctx context.Context, ids []spotify.ID) ([]track.Track, error) {
	tracks := make([]track.Track, 0, len(ids))
	for i := 0; i < len(ids); i += 50 {
		batch := ids[i:min(i+50, len(ids))]

		var full []*spotify.FullTrack
		err := c.retry(func() error {
			r, err := c.client.GetTracks(ctx, batch, spotify.Market(c.market))
			if err != nil {
				return err
			}
			full = r
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get tracks")
		}
		for _, t := range full {
			if t != nil && t.ID != "" {
				tracks = append(tracks, convertTrack(t))
			}
		}
	}
	return tracks, nil
}

// GetPlaylistTracksRandom retrieves a random sample of tracks from a playlist.
// It reads the track count first, then fetches one random page.
func (c *Client) GetPlaylistTracksRandom(ctx context.Context, playlistURL string, count int) ([]track.Track, error) {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var firstPage *spotify.PlaylistItemPage
	err := c.retry(func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(1),
			spotify.Offset(0),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		firstPage = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get playlist info")
	}

	total := int(firstPage.Total)
	if total == 0 {
		return []track.Track{}, nil
	}

	const pageSize = 100
	offset := 0
	if maxOffset := total - pageSize; maxOffset > 0 {
		offset = rand.IntN(maxOffset + 1)
	}

	var page *spotify.PlaylistItemPage
	err = c.retry(func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(pageSize),
			spotify.Offset(offset),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get playlist items")
	}

	var tracks []track.Track
	for _, item := range page.Items {
		// Episodes have no Track.
		if item.Track.Track != nil && item.Track.Track.ID != "" {
			tracks = append(tracks, convertTrack(item.Track.Track))
		}
	}

	if count > 0 && len(tracks) > count {
		rand.Shuffle(len(tracks), func(i, j int) {
			tracks[i], tracks[j] = tracks[j], tracks[i]
		})
		tracks = tracks[:count]
	}
	return tracks, nil
}

// convertTrack converts a Spotify FullTrack to a sanitized domain Track.
func convertTrack(t *spotify.FullTrack) track.Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}

	small, medium, big, xl := coverSizes(t.Album.Images)
	return track.Sanitize(track.Track{
		ID:    string(t.ID),
		Title: t.Name,
		Artist: track.Artist{
			Name: strings.Join(names, ", "),
		},
		Album: track.Album{
			Title:       t.Album.Name,
			CoverSmall:  small,
			CoverMedium: medium,
			CoverBig:    big,
			CoverXL:     xl,
		},
		Duration: time.Duration(t.Duration) * time.Millisecond,
		Preview:  t.PreviewURL,
		Source:   SourceName,
	})
}

// coverSizes maps Spotify's album images, ordered widest first, onto the four
// cover variants.
func coverSizes(images []spotify.Image) (small, medium, big, xl string) {
	switch len(images) {
	case 0:
		return "", "", "", ""
	case 1:
		u := images[0].URL
		return u, u, u, u
	case 2:
		return images[1].URL, images[1].URL, images[0].URL, images[0].URL
	default:
		last := len(images) - 1
		return images[last].URL, images[1].URL, images[0].URL, images[0].URL
	}
}

// GetTrackURL returns the Spotify URL for a track.
func GetTrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

func clampLimit(limit, def, upper int) int {
	if limit <= 0 {
		return def
	}
	if limit > upper {
		return upper
	}
	return limit
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

// extractID handles spotify:<kind>:<id> URIs and open.spotify.com URLs,
// including localized /intl-xx/ paths. Anything else is returned trimmed.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	segment := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, segment) {
		parts := strings.Split(input, segment)
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}
