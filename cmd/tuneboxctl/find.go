package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	apiconnect "github.com/osa030/tunebox/internal/api/connect"
	"github.com/osa030/tunebox/internal/app/recommend"
	"github.com/osa030/tunebox/internal/domain/track"
)

// remoteSource searches through the daemon.
type remoteSource struct {
	client *apiconnect.RemoteClient
}

func (remoteSource) Name() string { return "remote" }

func (s remoteSource) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	found, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	tracks := make([]track.Track, 0, len(found))
	for _, f := range found {
		t, err := track.Decode(f.AsMap())
		if err != nil {
			continue
		}
		tracks = append(tracks, t)
	}
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

func (remoteSource) Recommend(context.Context, []track.Track, int) ([]track.Track, error) {
	return nil, nil
}

// finder keeps the latest search results so they can be queued by number.
type finder struct {
	client *apiconnect.RemoteClient
	out    io.Writer

	mu      sync.Mutex
	results []track.Track
}

func (f *finder) show(query string, tracks []track.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = tracks
	if query == "" {
		return
	}
	fmt.Fprintf(f.out, "Results for %q (%d):\n", query, len(tracks))
	for i, t := range tracks {
		fmt.Fprintf(f.out, "  %2d. %s - %s [%s]\n", i+1, t.Artist.Name, t.Title, formatDuration(t.Duration))
	}
}

func (f *finder) enqueue(ctx context.Context, index int) error {
	f.mu.Lock()
	if index < 1 || index > len(f.results) {
		f.mu.Unlock()
		return fmt.Errorf("no result #%d", index)
	}
	t := f.results[index-1]
	f.mu.Unlock()

	obj, err := structpb.NewStruct(map[string]any{
		"id":       t.ID,
		"title":    t.Title,
		"artist":   map[string]any{"name": t.Artist.Name},
		"album":    map[string]any{"title": t.Album.Title, "cover_xl": t.Album.CoverXL, "cover_big": t.Album.CoverBig, "cover_medium": t.Album.CoverMedium, "cover_small": t.Album.CoverSmall},
		"duration": t.Duration.Seconds(),
		"preview":  t.Preview,
		"source":   t.Source,
	})
	if err != nil {
		return err
	}
	added, err := f.client.Enqueue(ctx, obj)
	if err != nil {
		return err
	}
	if added == 0 {
		fmt.Fprintf(f.out, "Already in queue: %s\n", t.Title)
	} else {
		fmt.Fprintf(f.out, "Queued: %s\n", t.Title)
	}
	return nil
}

// find reads queries from in. A line of the form ":N" queues result N; an
// empty line clears the results. Queries typed in quick succession only run
// the last one.
func find(client *apiconnect.RemoteClient, debounce time.Duration, in io.Reader, out io.Writer) {
	f := &finder{client: client, out: out}
	fetcher := recommend.NewFetcher([]recommend.Source{remoteSource{client: client}}, 20, 10*time.Second)
	searcher := recommend.NewSearcher(fetcher, debounce, f.show)
	defer searcher.Close()

	fmt.Fprintln(out, "Type to search, :N to queue a result, Ctrl-D to quit")
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if n, ok := strings.CutPrefix(line, ":"); ok {
			index, err := strconv.Atoi(n)
			if err != nil {
				fmt.Fprintf(out, "Error: invalid result number %q\n", n)
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := f.enqueue(ctx, index); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
			cancel()
			continue
		}
		searcher.Query(line)
	}
}
