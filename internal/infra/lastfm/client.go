// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/tunebox/internal/domain/track"
)

const (
	defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

	// SourceName is recorded in Track.Source for converted tracks.
	SourceName = "lastfm"
)

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	// Caches for tag lookups, which change rarely.
	trackTagCache  map[string][]Tag
	tagTracksCache map[string][]Track
	cacheMu        sync.RWMutex
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey            string
	BaseURL           string        // Defaults to the public endpoint
	RequestsPerSecond float64       // Defaults to 5, the documented fair-use rate
	Timeout           time.Duration // Defaults to 10s
}

// Tag represents a Last.fm tag.
type Tag struct {
	Name  string
	Count int // Tag count/frequency
}

// Track is a track as described by Last.fm. Last.fm has no playable audio,
// so converted tracks carry metadata only.
type Track struct {
	Name     string
	Artist   string
	Duration time.Duration
	URL      string
	Images   map[string]string // Keyed by size: small, medium, large, extralarge
}

// ToTrack converts t to a sanitized domain track. Last.fm ids are not stable
// across endpoints, so the id is derived from the track's content.
func (t Track) ToTrack() track.Track {
	return track.Sanitize(track.Track{
		Title:  t.Name,
		Artist: track.Artist{Name: t.Artist},
		Album: track.Album{
			CoverSmall:  t.Images["small"],
			CoverMedium: t.Images["medium"],
			CoverBig:    t.Images["large"],
			CoverXL:     t.Images["extralarge"],
		},
		Duration: t.Duration,
		Source:   SourceName,
	})
}

// apiError represents an error response from Last.fm API.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type image struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

// seconds decodes durations that Last.fm sends as either numbers or strings.
type seconds int

func (s *seconds) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), `"`)
	if str == "" || str == "null" {
		*s = 0
		return nil
	}
	n, err := strconv.Atoi(str)
	if err != nil {
		*s = 0
		return nil
	}
	*s = seconds(n)
	return nil
}

type trackItem struct {
	Name     string  `json:"name"`
	URL      string  `json:"url"`
	Duration seconds `json:"duration"`
	Artist   struct {
		Name string `json:"name"`
	} `json:"artist"`
	Image []image `json:"image"`
}

func (t trackItem) convert(artist string) Track {
	if artist == "" {
		artist = t.Artist.Name
	}
	images := make(map[string]string, len(t.Image))
	for _, img := range t.Image {
		if img.URL != "" {
			images[img.Size] = img.URL
		}
	}
	return Track{
		Name:     t.Name,
		Artist:   artist,
		Duration: time.Duration(t.Duration) * time.Second,
		URL:      t.URL,
		Images:   images,
	}
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        cfg.BaseURL,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		trackTagCache:  make(map[string][]Tag),
		tagTracksCache: make(map[string][]Track),
	}, nil
}

// call performs a GET for method with params and decodes the body into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	params.Set("method", method)
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != 0 {
		return errors.Errorf("last.fm API error %d: %s", apiErr.Error, apiErr.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("last.fm returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// GetSimilarTracks retrieves similar tracks based on track name and artist.
// Reference: https://www.last.fm/api/show/track.getSimilar
func (c *Client) GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]Track, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}

	params := url.Values{}
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))
	params.Set("autocorrect", "1")

	var response struct {
		SimilarTracks struct {
			Track []trackItem `json:"track"`
		} `json:"similartracks"`
	}
	if err := c.call(ctx, "track.getSimilar", params, &response); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(response.SimilarTracks.Track))
	for _, t := range response.SimilarTracks.Track {
		tracks = append(tracks, t.convert(""))
	}
	return tracks, nil
}

// SearchTracks runs a free-text track search.
// Reference: https://www.last.fm/api/show/track.search
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}

	params := url.Values{}
	params.Set("track", query)
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))

	// Search results carry the artist as a plain string.
	var response struct {
		Results struct {
			TrackMatches struct {
				Track []struct {
					trackItem
					Artist string `json:"artist"`
				} `json:"track"`
			} `json:"trackmatches"`
		} `json:"results"`
	}
	if err := c.call(ctx, "track.search", params, &response); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(response.Results.TrackMatches.Track))
	for _, t := range response.Results.TrackMatches.Track {
		tracks = append(tracks, t.trackItem.convert(t.Artist))
	}
	return tracks, nil
}

// GetTopTags retrieves top tags for a track.
// Reference: https://www.last.fm/api/show/track.getTopTags
func (c *Client) GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]Tag, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}
	limit = clampLimit(limit, 10)

	cacheKey := fmt.Sprintf("%s:%s", artistName, trackName)
	c.cacheMu.RLock()
	if tags, ok := c.trackTagCache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("lastfm: using cached tags: artist=%s track=%s", artistName, trackName)
		return tags, nil
	}
	c.cacheMu.RUnlock()

	params := url.Values{}
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("autocorrect", "1")

	var response struct {
		TopTags struct {
			Tag []struct {
				Name  string `json:"name"`
				Count int    `json:"count"`
			} `json:"tag"`
		} `json:"toptags"`
	}
	if err := c.call(ctx, "track.getTopTags", params, &response); err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, min(limit, len(response.TopTags.Tag)))
	for i, t := range response.TopTags.Tag {
		if i >= limit {
			break
		}
		tags = append(tags, Tag{Name: t.Name, Count: t.Count})
	}

	c.cacheMu.Lock()
	c.trackTagCache[cacheKey] = tags
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("lastfm: cached tags: artist=%s track=%s count=%d", artistName, trackName, len(tags))

	return tags, nil
}

// GetTopTracks retrieves top tracks for a tag.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) GetTopTracks(ctx context.Context, tagName string, limit int) ([]Track, error) {
	if tagName == "" {
		return nil, errors.New("tag name is required")
	}

	c.cacheMu.RLock()
	if tracks, ok := c.tagTracksCache[tagName]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("lastfm: using cached top tracks: tag=%s", tagName)
		return tracks, nil
	}
	c.cacheMu.RUnlock()

	params := url.Values{}
	params.Set("tag", tagName)
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))

	var response struct {
		Tracks struct {
			Track []trackItem `json:"track"`
		} `json:"tracks"`
	}
	if err := c.call(ctx, "tag.getTopTracks", params, &response); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(response.Tracks.Track))
	for _, t := range response.Tracks.Track {
		tracks = append(tracks, t.convert(""))
	}

	c.cacheMu.Lock()
	c.tagTracksCache[tagName] = tracks
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("lastfm: cached top tracks: tag=%s count=%d", tagName, len(tracks))

	return tracks, nil
}

// GetChartTopTracks retrieves global top tracks from the Last.fm charts.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) GetChartTopTracks(ctx context.Context, limit int) ([]Track, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))

	var response struct {
		Tracks struct {
			Track []trackItem `json:"track"`
		} `json:"tracks"`
	}
	if err := c.call(ctx, "chart.getTopTracks", params, &response); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(response.Tracks.Track))
	for _, t := range response.Tracks.Track {
		tracks = append(tracks, t.convert(""))
	}
	return tracks, nil
}
