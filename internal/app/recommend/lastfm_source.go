package recommend

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunebox/internal/domain/track"
	"github.com/osa030/tunebox/internal/infra/lastfm"
)

// LastFmClient defines the Last.fm operations used by the source.
type LastFmClient interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]lastfm.Track, error)
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.Track, error)
	GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.Tag, error)
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.Track, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.Track, error)
}

// LastFmSourceConfig configures a Last.fm source.
type LastFmSourceConfig struct {
	APIKey            string  `mapstructure:"api_key" validate:"required"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" default:"5" validate:"gt=0"`
	SeedTrackCount    int     `mapstructure:"seed_track_count" default:"3" validate:"gte=1"`
	TagCount          int     `mapstructure:"tag_count" default:"5" validate:"gte=1"`
	TagWeight         float64 `mapstructure:"tag_weight" default:"0.4" validate:"gte=0,lte=1.0"`
	SimilarWeight     float64 `mapstructure:"similar_weight" default:"0.6" validate:"gte=0,lte=1.0"`
	// Resolve looks each Last.fm result up on Spotify to obtain playable
	// audio. Unresolved tracks are dropped. Requires a Spotify client.
	Resolve bool `mapstructure:"resolve"`
}

// LastFmSource recommends by combining similar-track and tag strategies
// with configurable weights.
type LastFmSource struct {
	name    string
	lastfm  LastFmClient
	spotify SpotifyClient
	config  LastFmSourceConfig

	resolveCache map[string]*track.Track
	cacheMu      sync.RWMutex
}

type scoredTrack struct {
	track track.Track
	score float64
}

// NewLastFmSource creates a Last.fm source. spotify may be nil when
// resolve is off.
func NewLastFmSource(name string, spotify SpotifyClient, settings map[string]any) (*LastFmSource, error) {
	var cfg LastFmSourceConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}

	client, err := lastfm.New(lastfm.Config{APIKey: cfg.APIKey, RequestsPerSecond: cfg.RequestsPerSecond})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	return newLastFmSource(name, client, spotify, cfg)
}

func newLastFmSource(name string, client LastFmClient, spotify SpotifyClient, cfg LastFmSourceConfig) (*LastFmSource, error) {
	if math.Abs(cfg.TagWeight+cfg.SimilarWeight-1.0) > 1e-9 {
		return nil, errors.New("tag weight and similar weight must sum to 1.0")
	}
	if cfg.Resolve && spotify == nil {
		return nil, errors.New("resolve requires a spotify client")
	}
	if name == "" {
		name = "lastfm"
	}
	return &LastFmSource{
		name:         name,
		lastfm:       client,
		spotify:      spotify,
		config:       cfg,
		resolveCache: make(map[string]*track.Track),
	}, nil
}

func (s *LastFmSource) Name() string { return s.name }

// Search runs a Last.fm track search.
func (s *LastFmSource) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	results, err := s.lastfm.SearchTracks(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return s.resolveAll(ctx, results), nil
}

// Recommend scores candidates from both strategies and returns a random
// selection from the best 2*limit. Without seeds the global chart is used.
func (s *LastFmSource) Recommend(ctx context.Context, seeds []track.Track, limit int) ([]track.Track, error) {
	if limit <= 0 {
		return []track.Track{}, nil
	}

	if len(seeds) > s.config.SeedTrackCount {
		seeds = seeds[:s.config.SeedTrackCount]
	}
	if len(seeds) == 0 {
		return s.chartCandidates(ctx, limit)
	}

	exclude := make(map[string]bool, len(seeds))
	for _, seed := range seeds {
		exclude[seed.ID] = true
	}

	var tagged, similar []track.Track
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tagged = s.tagCandidates(ctx, seeds, exclude)
	}()
	go func() {
		defer wg.Done()
		similar = s.similarCandidates(ctx, seeds, exclude)
	}()
	wg.Wait()

	scored := s.scoreAndMerge(tagged, similar)
	if len(scored) == 0 {
		return []track.Track{}, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	// Pick randomly among the best 2*limit to vary the result.
	pool := scored[:min(limit*2, len(scored))]
	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	out := make([]track.Track, 0, limit)
	for i := 0; i < limit && i < len(pool); i++ {
		out = append(out, pool[i].track)
	}
	return out, nil
}

// tagCandidates collects the seeds' most frequent tags and returns the
// top tracks of each.
func (s *LastFmSource) tagCandidates(ctx context.Context, seeds []track.Track, exclude map[string]bool) []track.Track {
	tagCounts := make(map[string]int)
	for _, seed := range seeds {
		tags, err := s.lastfm.GetTopTags(ctx, seed.Title, seed.Artist.Name, 10)
		if err != nil {
			continue
		}
		for _, tag := range tags {
			tagCounts[tag.Name] += tag.Count
		}
	}
	if len(tagCounts) == 0 {
		return nil
	}

	var candidates []track.Track
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, tag := range topTags(tagCounts, s.config.TagCount) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := s.lastfm.GetTopTracks(ctx, tag, 20)
			if err != nil {
				return
			}
			resolved := s.resolveAll(ctx, results)
			mu.Lock()
			defer mu.Unlock()
			for _, t := range resolved {
				if !exclude[t.ID] {
					candidates = append(candidates, t)
				}
			}
		}()
	}
	wg.Wait()

	return track.Dedupe(candidates)
}

func (s *LastFmSource) similarCandidates(ctx context.Context, seeds []track.Track, exclude map[string]bool) []track.Track {
	var candidates []track.Track
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, seed := range seeds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := s.lastfm.GetSimilarTracks(ctx, seed.Title, seed.Artist.Name, 10)
			if err != nil {
				return
			}
			resolved := s.resolveAll(ctx, results)
			mu.Lock()
			defer mu.Unlock()
			for _, t := range resolved {
				if !exclude[t.ID] {
					candidates = append(candidates, t)
				}
			}
		}()
	}
	wg.Wait()

	return track.Dedupe(candidates)
}

// scoreAndMerge gives every candidate the weight of each strategy that
// produced it.
func (s *LastFmSource) scoreAndMerge(tagged, similar []track.Track) []scoredTrack {
	index := make(map[string]int)
	var out []scoredTrack

	add := func(t track.Track, weight float64) {
		if i, ok := index[t.ID]; ok {
			out[i].score += weight
			return
		}
		index[t.ID] = len(out)
		out = append(out, scoredTrack{track: t, score: weight})
	}
	for _, t := range tagged {
		add(t, s.config.TagWeight)
	}
	for _, t := range similar {
		add(t, s.config.SimilarWeight)
	}
	return out
}

// topTags returns the n tag names with the highest counts.
func topTags(counts map[string]int, n int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

// chartCandidates samples the global chart.
func (s *LastFmSource) chartCandidates(ctx context.Context, limit int) ([]track.Track, error) {
	chart, err := s.lastfm.GetChartTopTracks(ctx, 50)
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(chart), func(i, j int) {
		chart[i], chart[j] = chart[j], chart[i]
	})

	var out []track.Track
	for _, c := range chart {
		if t, ok := s.resolve(ctx, c); ok {
			out = append(out, t)
		}
		if len(out) >= limit {
			break
		}
	}
	return track.Dedupe(out), nil
}

func (s *LastFmSource) resolveAll(ctx context.Context, results []lastfm.Track) []track.Track {
	out := make([]track.Track, 0, len(results))
	for _, r := range results {
		if t, ok := s.resolve(ctx, r); ok {
			out = append(out, t)
		}
	}
	return out
}

// resolve converts a Last.fm result. With resolving enabled the track is
// looked up on Spotify; misses are cached so they are not retried.
func (s *LastFmSource) resolve(ctx context.Context, r lastfm.Track) (track.Track, bool) {
	if !s.config.Resolve {
		return r.ToTrack(), true
	}

	key := fmt.Sprintf("%s:%s", r.Name, r.Artist)
	s.cacheMu.RLock()
	cached, ok := s.resolveCache[key]
	s.cacheMu.RUnlock()
	if ok {
		if cached == nil {
			return track.Track{}, false
		}
		return *cached, true
	}

	var found *track.Track
	query := fmt.Sprintf("track:%s artist:%s", r.Name, r.Artist)
	if results, err := s.spotify.Search(ctx, query, 1); err == nil && len(results) > 0 {
		found = &results[0]
	}

	s.cacheMu.Lock()
	s.resolveCache[key] = found
	s.cacheMu.Unlock()

	if found == nil {
		return track.Track{}, false
	}
	return *found, true
}
