package recommend

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunebox/internal/domain/track"
	"github.com/osa030/tunebox/internal/infra/config"
	"github.com/osa030/tunebox/internal/infra/lastfm"
)

func tr(id, artist string) track.Track {
	return track.Sanitize(track.Track{ID: id, Title: "Song " + id, Artist: track.Artist{Name: artist}})
}

// stubSource returns canned results per query.
type stubSource struct {
	name    string
	results map[string][]track.Track
	err     error
	delay   time.Duration
	calls   atomic.Int32
	panics  bool
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Search(ctx context.Context, query string, _ int) ([]track.Track, error) {
	s.calls.Add(1)
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.results[query], nil
}

func (s *stubSource) Recommend(ctx context.Context, _ []track.Track, limit int) ([]track.Track, error) {
	return s.Search(ctx, "", limit)
}

func TestFetcher_Fetch(t *testing.T) {
	a := &stubSource{name: "a", results: map[string][]track.Track{
		"q1": {tr("1", "x"), tr("2", "x")},
		"q2": {tr("2", "x"), tr("3", "y")},
	}}
	failing := &stubSource{name: "failing", err: errors.New("network down")}
	b := &stubSource{name: "b", results: map[string][]track.Track{
		"q1": {tr("4", "z"), tr("1", "x")},
	}}
	f := NewFetcher([]Source{a, failing, b}, 10, time.Second)

	got := f.Fetch(context.Background(), []string{"q1", "q2"})

	assert.Equal(t, []string{"1", "2", "3", "4"}, track.IDs(got))
	assert.Equal(t, int32(2), a.calls.Load())
	assert.Equal(t, int32(2), failing.calls.Load())
	assert.Equal(t, int32(2), b.calls.Load())
}

func TestFetcher_FailuresContributeNothing(t *testing.T) {
	tests := []struct {
		name    string
		sources []Source
	}{
		{"no sources", nil},
		{"all failing", []Source{&stubSource{name: "x", err: errors.New("fail")}}},
		{"panicking", []Source{&stubSource{name: "p", panics: true}}},
		{"timed out", []Source{&stubSource{name: "slow", delay: time.Second}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFetcher(tt.sources, 10, 20*time.Millisecond)
			got := f.Fetch(context.Background(), []string{"q"})
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestFetcher_Recommend(t *testing.T) {
	a := &stubSource{name: "a", results: map[string][]track.Track{"": {tr("1", "x")}}}
	b := &stubSource{name: "b", results: map[string][]track.Track{"": {tr("1", "x"), tr("2", "y")}}}
	f := NewFetcher([]Source{a, b}, 10, time.Second)

	got := f.Recommend(context.Background(), []track.Track{tr("seed", "x")})
	assert.Equal(t, []string{"1", "2"}, track.IDs(got))
}

func TestFetcher_FetchFunc(t *testing.T) {
	src := &stubSource{name: "a", results: map[string][]track.Track{"jazz": {tr("j", "x")}}}
	f := NewFetcher([]Source{src}, 10, time.Second)

	got, err := f.FetchFunc([]string{"jazz"})(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"j"}, track.IDs(got))
}

func TestSearcher_OnlyLastQueryRuns(t *testing.T) {
	src := &stubSource{name: "a", results: map[string][]track.Track{
		"b":    {tr("b", "x")},
		"be":   {tr("be", "x")},
		"bea":  {tr("bea", "x")},
		"beat": {tr("beat", "x")},
	}}
	f := NewFetcher([]Source{src}, 10, time.Second)

	var mu sync.Mutex
	var delivered []string
	s := NewSearcher(f, 30*time.Millisecond, func(q string, tracks []track.Track) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, q)
		assert.Equal(t, []string{q}, track.IDs(tracks))
	})
	t.Cleanup(s.Close)

	for _, q := range []string{"b", "be", "bea", "beat"} {
		s.Query(q)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"beat"}, delivered)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestSearcher_EmptyQueryClears(t *testing.T) {
	src := &stubSource{name: "a"}
	f := NewFetcher([]Source{src}, 10, time.Second)

	var got []string
	s := NewSearcher(f, 20*time.Millisecond, func(q string, tracks []track.Track) {
		got = append(got, q)
		assert.Empty(t, tracks)
	})
	t.Cleanup(s.Close)

	s.Query("abc")
	s.Query("   ")
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []string{""}, got)
	assert.Zero(t, src.calls.Load())
}

func TestCatalogSource(t *testing.T) {
	src, err := NewCatalogSource("local", map[string]any{
		"tracks": []any{
			map[string]any{"id": "1", "title": "Blue in Green", "artist": map[string]any{"name": "Miles Davis"}},
			map[string]any{"id": 2, "title": "So What", "artist": map[string]any{"name": "Miles Davis"}},
			map[string]any{"id": "3", "title": "Naima", "artist": map[string]any{"name": "John Coltrane"}},
			"not a track",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "local", src.Name())

	ctx := context.Background()
	found, err := src.Search(ctx, "miles", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, track.IDs(found))

	found, err = src.Search(ctx, "NAIMA", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, track.IDs(found))

	recs, err := src.Recommend(ctx, []track.Track{tr("3", "John Coltrane")}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, track.IDs(recs))

	recs, err = src.Recommend(ctx, []track.Track{tr("9", "John Coltrane")}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1"}, track.IDs(recs))
}

func TestCatalogSource_InvalidSettings(t *testing.T) {
	_, err := NewCatalogSource("", nil)
	assert.Error(t, err)

	_, err = NewCatalogSource("", map[string]any{"tracks": []any{"x", 3}})
	assert.Error(t, err)
}

type fakeSpotify struct {
	search    map[string][]track.Track
	recommend []track.Track
	recErr    error
	playlist  []track.Track
	seedIDs   []string
}

func (f *fakeSpotify) Search(_ context.Context, query string, _ int) ([]track.Track, error) {
	return f.search[query], nil
}

func (f *fakeSpotify) Recommend(_ context.Context, seedIDs []string, _ int) ([]track.Track, error) {
	f.seedIDs = seedIDs
	return f.recommend, f.recErr
}

func (f *fakeSpotify) GetPlaylistTracksRandom(context.Context, string, int) ([]track.Track, error) {
	return f.playlist, nil
}

func TestSpotifySource_Recommend(t *testing.T) {
	ctx := context.Background()
	seeds := []track.Track{tr("sp1", "x"), track.Sanitize(track.Track{Title: "local only"})}

	t.Run("uses spotify seeds", func(t *testing.T) {
		sp := &fakeSpotify{recommend: []track.Track{tr("r1", "y")}}
		src, err := NewSpotifySource("", sp, nil)
		require.NoError(t, err)

		got, err := src.Recommend(ctx, seeds, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"r1"}, track.IDs(got))
		assert.Equal(t, []string{"sp1"}, sp.seedIDs)
	})

	t.Run("falls back to playlist", func(t *testing.T) {
		sp := &fakeSpotify{recErr: errors.New("gone"), playlist: []track.Track{tr("p1", "z")}}
		src, err := NewSpotifySource("", sp, map[string]any{"playlist_url": "spotify:playlist:abc"})
		require.NoError(t, err)

		got, err := src.Recommend(ctx, seeds, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"p1"}, track.IDs(got))
	})

	t.Run("error without playlist", func(t *testing.T) {
		sp := &fakeSpotify{recErr: errors.New("gone")}
		src, err := NewSpotifySource("", sp, nil)
		require.NoError(t, err)

		_, err = src.Recommend(ctx, seeds, 5)
		assert.Error(t, err)
	})

	t.Run("requires client", func(t *testing.T) {
		_, err := NewSpotifySource("", nil, nil)
		assert.Error(t, err)
	})
}

type fakeLastFm struct {
	similar map[string][]lastfm.Track
	tags    map[string][]lastfm.Tag
	tagTop  map[string][]lastfm.Track
	chart   []lastfm.Track
	search  []lastfm.Track
}

func (f *fakeLastFm) SearchTracks(context.Context, string, int) ([]lastfm.Track, error) {
	return f.search, nil
}

func (f *fakeLastFm) GetSimilarTracks(_ context.Context, name, _ string, _ int) ([]lastfm.Track, error) {
	return f.similar[name], nil
}

func (f *fakeLastFm) GetTopTags(_ context.Context, name, _ string, _ int) ([]lastfm.Tag, error) {
	tags, ok := f.tags[name]
	if !ok {
		return nil, errors.New("no tags")
	}
	return tags, nil
}

func (f *fakeLastFm) GetTopTracks(_ context.Context, tag string, _ int) ([]lastfm.Track, error) {
	return f.tagTop[tag], nil
}

func (f *fakeLastFm) GetChartTopTracks(context.Context, int) ([]lastfm.Track, error) {
	return f.chart, nil
}

func lfm(name, artist string) lastfm.Track {
	return lastfm.Track{Name: name, Artist: artist}
}

func defaultLastFmConfig() LastFmSourceConfig {
	return LastFmSourceConfig{SeedTrackCount: 3, TagCount: 5, TagWeight: 0.4, SimilarWeight: 0.6}
}

func TestLastFmSource_Recommend(t *testing.T) {
	client := &fakeLastFm{
		similar: map[string][]lastfm.Track{"Seed": {lfm("Both", "A"), lfm("Similar", "B")}},
		tags:    map[string][]lastfm.Tag{"Seed": {{Name: "rock", Count: 10}}},
		tagTop:  map[string][]lastfm.Track{"rock": {lfm("Both", "A"), lfm("Tagged", "C")}},
	}
	src, err := newLastFmSource("", client, nil, defaultLastFmConfig())
	require.NoError(t, err)

	seed := track.Sanitize(track.Track{ID: "s", Title: "Seed", Artist: track.Artist{Name: "S"}})
	got, err := src.Recommend(context.Background(), []track.Track{seed}, 10)
	require.NoError(t, err)

	titles := make([]string, 0, len(got))
	for _, rec := range got {
		titles = append(titles, rec.Title)
		assert.True(t, track.IsFallbackID(rec.ID))
		assert.Equal(t, lastfm.SourceName, rec.Source)
	}
	assert.ElementsMatch(t, []string{"Both", "Similar", "Tagged"}, titles)

	scored := src.scoreAndMerge(
		[]track.Track{lfm("Both", "A").ToTrack(), lfm("Tagged", "C").ToTrack()},
		[]track.Track{lfm("Both", "A").ToTrack()},
	)
	require.Len(t, scored, 2)
	assert.InDelta(t, 1.0, scored[0].score, 1e-9)
	assert.InDelta(t, 0.4, scored[1].score, 1e-9)
}

func TestLastFmSource_ChartFallback(t *testing.T) {
	client := &fakeLastFm{chart: []lastfm.Track{lfm("One", "A"), lfm("Two", "B"), lfm("Three", "C")}}
	src, err := newLastFmSource("", client, nil, defaultLastFmConfig())
	require.NoError(t, err)

	got, err := src.Recommend(context.Background(), nil, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLastFmSource_Resolve(t *testing.T) {
	client := &fakeLastFm{search: []lastfm.Track{lfm("Found", "A"), lfm("Missing", "B")}}
	sp := &fakeSpotify{search: map[string][]track.Track{
		"track:Found artist:A": {tr("spotify-id", "A")},
	}}
	cfg := defaultLastFmConfig()
	cfg.Resolve = true
	src, err := newLastFmSource("", client, sp, cfg)
	require.NoError(t, err)

	got, err := src.Search(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"spotify-id"}, track.IDs(got))
	assert.Len(t, src.resolveCache, 2)
}

func TestLastFmSource_InvalidConfig(t *testing.T) {
	cfg := defaultLastFmConfig()
	cfg.TagWeight = 0.9
	_, err := newLastFmSource("", &fakeLastFm{}, nil, cfg)
	assert.Error(t, err)

	cfg = defaultLastFmConfig()
	cfg.Resolve = true
	_, err = newLastFmSource("", &fakeLastFm{}, nil, cfg)
	assert.Error(t, err)

	_, err = NewLastFmSource("", nil, map[string]any{})
	assert.Error(t, err, "api key is required")
}

func TestTopTags(t *testing.T) {
	got := topTags(map[string]int{"rock": 5, "pop": 9, "jazz": 5, "folk": 1}, 3)
	assert.Equal(t, []string{"pop", "jazz", "rock"}, got)
}

func TestNewSourcesFromConfig(t *testing.T) {
	sources, err := NewSourcesFromConfig([]config.SourceConfig{
		{Type: config.SourceCatalog, Name: "local", Settings: map[string]any{
			"tracks": []any{map[string]any{"id": "1", "title": "A"}},
		}},
		{Type: config.SourceLastFm, Settings: map[string]any{"api_key": "k"}},
		{Type: config.SourceSpotify},
	}, &fakeSpotify{})
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.Equal(t, "local", sources[0].Name())
	assert.Equal(t, "lastfm", sources[1].Name())
	assert.Equal(t, "spotify", sources[2].Name())

	_, err = NewSourcesFromConfig([]config.SourceConfig{{Type: "napster"}}, nil)
	assert.Error(t, err)

	_, err = NewSourcesFromConfig([]config.SourceConfig{{Type: config.SourceSpotify}}, nil)
	assert.Error(t, err)
}
