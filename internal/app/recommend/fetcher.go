package recommend

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/domain/track"
)

// Fetcher fans requests out to every source concurrently.
type Fetcher struct {
	sources []Source
	limit   int
	timeout time.Duration
}

// NewFetcher creates a fetcher. limit caps the tracks requested per
// sub-request; timeout bounds a whole fan-out.
func NewFetcher(sources []Source, limit int, timeout time.Duration) *Fetcher {
	if limit <= 0 {
		limit = 20
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{sources: sources, limit: limit, timeout: timeout}
}

// Sources returns the configured sources.
func (f *Fetcher) Sources() []Source {
	return f.sources
}

// Fetch searches every source for every query. A failed sub-request
// contributes nothing; results are flattened in source and query order and
// deduplicated.
func (f *Fetcher) Fetch(ctx context.Context, queries []string) []track.Track {
	var tasks []func(context.Context) ([]track.Track, error)
	var labels []string
	for _, src := range f.sources {
		for _, q := range queries {
			tasks = append(tasks, func(ctx context.Context) ([]track.Track, error) {
				return src.Search(ctx, q, f.limit)
			})
			labels = append(labels, src.Name()+" search "+q)
		}
	}
	return f.fanOut(ctx, tasks, labels)
}

// Recommend asks every source for tracks related to seeds.
func (f *Fetcher) Recommend(ctx context.Context, seeds []track.Track) []track.Track {
	tasks := make([]func(context.Context) ([]track.Track, error), 0, len(f.sources))
	labels := make([]string, 0, len(f.sources))
	for _, src := range f.sources {
		tasks = append(tasks, func(ctx context.Context) ([]track.Track, error) {
			return src.Recommend(ctx, seeds, f.limit)
		})
		labels = append(labels, src.Name()+" recommend")
	}
	return f.fanOut(ctx, tasks, labels)
}

// FetchFunc adapts Recommend, falling back to queries when the sources
// recommend nothing, for use at startup.
func (f *Fetcher) FetchFunc(queries []string) func(ctx context.Context) ([]track.Track, error) {
	return func(ctx context.Context) ([]track.Track, error) {
		tracks := f.Recommend(ctx, nil)
		if len(tracks) == 0 && len(queries) > 0 {
			tracks = f.Fetch(ctx, queries)
		}
		return tracks, nil
	}
}

func (f *Fetcher) fanOut(ctx context.Context, tasks []func(context.Context) ([]track.Track, error), labels []string) []track.Track {
	if len(tasks) == 0 {
		return []track.Track{}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	results := make([][]track.Track, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task func(context.Context) ([]track.Track, error)) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					zlog.Error().Msgf("recommend: request panicked: request=%s panic=%v", labels[i], r)
				}
			}()

			tracks, err := task(ctx)
			if err != nil {
				zlog.Warn().Msgf("recommend: request failed: request=%s error=%v", labels[i], err)
				return
			}
			results[i] = tracks
		}(i, task)
	}
	wg.Wait()

	var all []track.Track
	for _, r := range results {
		all = append(all, r...)
	}
	out := track.Dedupe(all)
	zlog.Debug().Msgf("recommend: fan-out complete: requests=%d tracks=%d", len(tasks), len(out))
	return out
}
