package lastfm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunebox/internal/domain/track"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{APIKey: "test_key", BaseURL: server.URL + "/", RequestsPerSecond: 1000})
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	c, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, 10*time.Second, c.httpClient.Timeout)
}

func TestGetTopTags(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "track.getTopTags", r.URL.Query().Get("method"))
		assert.Equal(t, "test_artist", r.URL.Query().Get("artist"))
		assert.Equal(t, "test_track", r.URL.Query().Get("track"))
		assert.Equal(t, "test_key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"toptags": {
				"tag": [
					{"name": "rock", "count": 100},
					{"name": "alternative", "count": 80},
					{"name": "90s", "count": 10}
				]
			}
		}`)
	})

	ctx := context.Background()
	tags, err := client.GetTopTags(ctx, "test_track", "test_artist", 2)
	require.NoError(t, err)
	assert.Equal(t, []Tag{{Name: "rock", Count: 100}, {Name: "alternative", Count: 80}}, tags)

	cached, err := client.GetTopTags(ctx, "test_track", "test_artist", 2)
	require.NoError(t, err)
	assert.Equal(t, tags, cached)
	assert.Equal(t, int32(1), calls.Load(), "second lookup is served from cache")
}

func TestGetTopTracks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tag.getTopTracks", r.URL.Query().Get("method"))
		assert.Equal(t, "rock", r.URL.Query().Get("tag"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		fmt.Fprint(w, `{
			"tracks": {
				"track": [
					{"name": "Track 1", "duration": "241", "artist": {"name": "Artist 1"}},
					{"name": "Track 2", "duration": 0, "artist": {"name": "Artist 2"}}
				]
			}
		}`)
	})

	tracks, err := client.GetTopTracks(context.Background(), "rock", 5)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "Track 1", tracks[0].Name)
	assert.Equal(t, "Artist 1", tracks[0].Artist)
	assert.Equal(t, 241*time.Second, tracks[0].Duration)
	assert.Zero(t, tracks[1].Duration)
}

func TestGetSimilarTracks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "track.getSimilar", r.URL.Query().Get("method"))
		fmt.Fprint(w, `{
			"similartracks": {
				"track": [{
					"name": "Karma Police",
					"duration": 264,
					"url": "https://www.last.fm/music/Radiohead/_/Karma+Police",
					"artist": {"name": "Radiohead"},
					"image": [
						{"#text": "https://img/s.png", "size": "small"},
						{"#text": "https://img/xl.png", "size": "extralarge"},
						{"#text": "", "size": "mega"}
					]
				}]
			}
		}`)
	})

	tracks, err := client.GetSimilarTracks(context.Background(), "Creep", "Radiohead", 10)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, map[string]string{"small": "https://img/s.png", "extralarge": "https://img/xl.png"}, tracks[0].Images)

	got := tracks[0].ToTrack()
	assert.True(t, track.IsFallbackID(got.ID))
	assert.Equal(t, "Karma Police", got.Title)
	assert.Equal(t, "Radiohead", got.Artist.Name)
	assert.Equal(t, "https://img/s.png", got.Album.CoverSmall)
	assert.Equal(t, track.PlaceholderCover, got.Album.CoverMedium)
	assert.Equal(t, "https://img/xl.png", got.Album.CoverXL)
	assert.Equal(t, SourceName, got.Source)
	assert.Equal(t, got.ID, tracks[0].ToTrack().ID, "ids are stable")

	_, err = client.GetSimilarTracks(context.Background(), "", "Radiohead", 10)
	assert.Error(t, err)
}

func TestSearchTracks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "track.search", r.URL.Query().Get("method"))
		assert.Equal(t, "believe", r.URL.Query().Get("track"))
		fmt.Fprint(w, `{
			"results": {
				"trackmatches": {
					"track": [
						{"name": "Believe", "artist": "Cher", "url": "https://www.last.fm/music/Cher/_/Believe"}
					]
				}
			}
		}`)
	})

	tracks, err := client.SearchTracks(context.Background(), "believe", 5)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Believe", tracks[0].Name)
	assert.Equal(t, "Cher", tracks[0].Artist)

	_, err = client.SearchTracks(context.Background(), "  ", 5)
	assert.Error(t, err)
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": 10, "message": "Invalid API key"}`)
	})

	_, err := client.GetChartTopTracks(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestHTTPStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `<html>bad gateway</html>`)
	})

	_, err := client.GetChartTopTracks(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tracks": {"track": []}}`)
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{APIKey: "k", BaseURL: server.URL + "/", RequestsPerSecond: 20})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.GetChartTopTracks(context.Background(), 1)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.GetChartTopTracks(ctx, 1)
	assert.Error(t, err)
}
