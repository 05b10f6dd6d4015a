package recommend

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/osa030/tunebox/internal/app/timer"
	"github.com/osa030/tunebox/internal/domain/track"
)

// Results receives the outcome of one search.
type Results func(query string, tracks []track.Track)

// Searcher runs a search after the user stops typing. Only the last query in
// a burst runs, and results of a superseded search are discarded.
type Searcher struct {
	fetcher  *Fetcher
	deliver  Results
	debounce *timer.Debouncer

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewSearcher creates a searcher delivering to deliver.
func NewSearcher(f *Fetcher, delay time.Duration, deliver Results) *Searcher {
	return &Searcher{
		fetcher:  f,
		deliver:  deliver,
		debounce: timer.NewDebouncer(delay),
	}
}

// Query schedules a search for q, replacing any pending one. An empty query
// cancels the pending search and delivers an empty result.
func (s *Searcher) Query(q string) {
	q = strings.TrimSpace(q)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	if q == "" {
		s.debounce.Stop()
		s.deliver(q, []track.Track{})
		return
	}
	s.debounce.Call(func() { s.run(gen, q) })
}

func (s *Searcher) run(gen uint64, q string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	tracks := s.fetcher.Fetch(ctx, []string{q})

	s.mu.Lock()
	current := gen == s.gen
	s.mu.Unlock()
	if current {
		s.deliver(q, tracks)
	}
}

// Close drops any pending search.
func (s *Searcher) Close() {
	s.debounce.Stop()
	s.mu.Lock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}
