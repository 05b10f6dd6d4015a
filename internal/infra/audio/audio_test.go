package audio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunebox/internal/app/persistence"
	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

type blobMap map[string][]byte

func (b blobMap) GetTrackBlob(_ context.Context, id string) ([]byte, error) {
	if data, ok := b[id]; ok {
		return data, nil
	}
	return nil, persistence.ErrNotFound
}

type failingBlobs struct{}

func (failingBlobs) GetTrackBlob(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk error")
}

func TestLoader_Fetch(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/ok.mp3":
			_, _ = w.Write([]byte("remote audio"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name     string
		blobs    BlobReader
		track    track.Track
		maxSize  int64
		want     string
		wantErr  error
		anyErr   bool
		wantHits int32
		cached   bool
	}{
		{
			name:  "cached blob",
			blobs: blobMap{"1": []byte("local audio")},
			track: track.Track{ID: "1", Preview: srv.URL + "/ok.mp3"},
			want:  "local audio",
		},
		{
			name:     "download when not cached",
			blobs:    blobMap{},
			track:    track.Track{ID: "2", Preview: srv.URL + "/ok.mp3"},
			want:     "remote audio",
			wantHits: 1,
			cached:   true,
		},
		{
			name:     "download when cache fails",
			blobs:    failingBlobs{},
			track:    track.Track{ID: "3", Preview: srv.URL + "/ok.mp3"},
			want:     "remote audio",
			wantHits: 1,
			cached:   true,
		},
		{
			name:    "no stream url",
			blobs:   blobMap{},
			track:   track.Track{ID: "4"},
			wantErr: ErrNoStream,
		},
		{
			name:     "http error",
			track:    track.Track{ID: "5", Preview: srv.URL + "/missing.mp3"},
			anyErr:   true,
			wantHits: 1,
		},
		{
			name:     "too large",
			track:    track.Track{ID: "6", Preview: srv.URL + "/ok.mp3"},
			maxSize:  4,
			wantErr:  ErrStreamTooLarge,
			wantHits: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits.Store(0)
			var cached []string
			l := NewLoader(tt.blobs, func(_ context.Context, tr track.Track, data []byte) {
				cached = append(cached, tr.ID+":"+string(data))
			}, LoaderConfig{Timeout: time.Second, MaxSize: tt.maxSize})

			got, err := l.Fetch(context.Background(), tt.track)
			assert.Equal(t, tt.wantHits, hits.Load())

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, cached)
				return
			case tt.anyErr:
				assert.Error(t, err)
				assert.Empty(t, cached)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
			if tt.cached {
				assert.Equal(t, []string{tt.track.ID + ":" + tt.want}, cached)
			} else {
				assert.Empty(t, cached)
			}
		})
	}
}

func TestResampleQuality(t *testing.T) {
	tests := []struct {
		quality settings.AudioQuality
		want    int
	}{
		{settings.QualityMax, 6},
		{settings.QualityHigh, 4},
		{settings.QualityNormal, 3},
		{settings.QualityDataSave, 1},
		{"", 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.quality), func(t *testing.T) {
			assert.Equal(t, tt.want, resampleQuality(tt.quality))
		})
	}
}

// fakeClock is a manually advanced clock for the silent player.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestSilent_Clock(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	s := NewSilent()
	s.now = clock.now
	ctx := context.Background()

	assert.ErrorIs(t, s.Play(ctx), ErrNothingLoaded)

	require.NoError(t, s.Load(ctx, track.Track{ID: "1", Duration: time.Hour}))
	assert.Equal(t, time.Hour, s.Duration())
	assert.Zero(t, s.Position())

	require.NoError(t, s.Play(ctx))
	clock.advance(10 * time.Second)
	assert.Equal(t, 10*time.Second, s.Position())

	require.NoError(t, s.Pause())
	clock.advance(time.Minute)
	assert.Equal(t, 10*time.Second, s.Position())

	require.NoError(t, s.Seek(2*time.Hour))
	assert.Equal(t, time.Hour, s.Position())
	require.NoError(t, s.Seek(-time.Second))
	assert.Zero(t, s.Position())

	require.NoError(t, s.Stop())
	assert.Zero(t, s.Duration())
	assert.ErrorIs(t, s.Seek(0), ErrNothingLoaded)
}

func TestSilent_Ended(t *testing.T) {
	s := NewSilent()
	ctx := context.Background()

	ended := make(chan struct{}, 1)
	s.OnEnded(func() { ended <- struct{}{} })

	require.NoError(t, s.Load(ctx, track.Track{ID: "1", Duration: 20 * time.Millisecond}))
	require.NoError(t, s.Play(ctx))

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("ended callback was not called")
	}
	assert.Equal(t, 20*time.Millisecond, s.Position())
}

func TestSilent_LoopDoesNotEnd(t *testing.T) {
	s := NewSilent()
	ctx := context.Background()

	var ended atomic.Int32
	s.OnEnded(func() { ended.Add(1) })
	require.NoError(t, s.SetLoop(true))
	require.NoError(t, s.Load(ctx, track.Track{ID: "1", Duration: 10 * time.Millisecond}))
	require.NoError(t, s.Play(ctx))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, ended.Load())
	require.NoError(t, s.Stop())
}

func TestSilent_PauseCancelsEnd(t *testing.T) {
	s := NewSilent()
	ctx := context.Background()

	var ended atomic.Int32
	s.OnEnded(func() { ended.Add(1) })
	require.NoError(t, s.Load(ctx, track.Track{ID: "1", Duration: 30 * time.Millisecond}))
	require.NoError(t, s.Play(ctx))
	require.NoError(t, s.Pause())

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, ended.Load())
}
