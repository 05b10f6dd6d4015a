package persistence

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunebox/internal/app/state"
	"github.com/osa030/tunebox/internal/domain/playlist"
	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

// recordingStore wraps MemoryStore and counts calls per method.
type recordingStore struct {
	*MemoryStore
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemoryStore: NewMemoryStore(),
		calls:       make(map[string]int),
		fail:        make(map[string]error),
	}
}

func (r *recordingStore) record(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
	return r.fail[name]
}

func (r *recordingStore) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *recordingStore) StoreSetting(ctx context.Context, key, value string) error {
	if err := r.record("StoreSetting:" + key); err != nil {
		return err
	}
	return r.MemoryStore.StoreSetting(ctx, key, value)
}

func (r *recordingStore) GetSetting(ctx context.Context, key string) (string, error) {
	if err := r.record("GetSetting"); err != nil {
		return "", err
	}
	return r.MemoryStore.GetSetting(ctx, key)
}

func (r *recordingStore) StoreQueue(ctx context.Context, tracks []track.Track) error {
	if err := r.record("StoreQueue"); err != nil {
		return err
	}
	return r.MemoryStore.StoreQueue(ctx, tracks)
}

func (r *recordingStore) GetQueue(ctx context.Context) ([]track.Track, error) {
	if err := r.record("GetQueue"); err != nil {
		return nil, err
	}
	return r.MemoryStore.GetQueue(ctx)
}

func (r *recordingStore) ClearQueue(ctx context.Context) error {
	if err := r.record("ClearQueue"); err != nil {
		return err
	}
	return r.MemoryStore.ClearQueue(ctx)
}

func (r *recordingStore) GetRecommendedTracks(ctx context.Context) ([]track.Track, error) {
	if err := r.record("GetRecommendedTracks"); err != nil {
		return nil, err
	}
	return r.MemoryStore.GetRecommendedTracks(ctx)
}

func (r *recordingStore) StoreRecommendedTracks(ctx context.Context, tracks []track.Track) error {
	if err := r.record("StoreRecommendedTracks"); err != nil {
		return err
	}
	return r.MemoryStore.StoreRecommendedTracks(ctx, tracks)
}

func (r *recordingStore) GetAllPlaylists(ctx context.Context) ([]*playlist.Playlist, error) {
	if err := r.record("GetAllPlaylists"); err != nil {
		return nil, err
	}
	return r.MemoryStore.GetAllPlaylists(ctx)
}

func (r *recordingStore) StoreRecentlyPlayed(ctx context.Context, tracks []track.Track) error {
	if err := r.record("StoreRecentlyPlayed"); err != nil {
		return err
	}
	return r.MemoryStore.StoreRecentlyPlayed(ctx, tracks)
}

func (r *recordingStore) GetRecentlyPlayed(ctx context.Context) ([]track.Track, error) {
	if err := r.record("GetRecentlyPlayed"); err != nil {
		return nil, err
	}
	return r.MemoryStore.GetRecentlyPlayed(ctx)
}

func tr(id string) track.Track {
	return track.Sanitize(track.Track{ID: id, Title: "Track " + id})
}

func newTestSync(t *testing.T, store Store, debounce time.Duration) (*Synchronizer, *state.Store) {
	t.Helper()
	st := state.NewStore()
	s := NewSynchronizer(store, st, Config{Debounce: debounce})
	t.Cleanup(s.Close)
	return s, st
}

func setQueue(st *state.Store, ids ...string) {
	st.Apply("test", func(s state.Snapshot) state.Snapshot {
		s.Queue = []track.Track{}
		for _, id := range ids {
			s.Queue = append(s.Queue, tr(id))
		}
		return s
	})
}

func TestSynchronizer_Queue(t *testing.T) {
	store := newRecordingStore()
	s, st := newTestSync(t, store, time.Hour)
	ctx := context.Background()

	setQueue(st, "1")
	setQueue(st, "1", "2")
	setQueue(st, "1", "2", "3")
	s.Flush()

	assert.Equal(t, 1, store.count("StoreQueue"), "burst should collapse to one write")
	q, err := store.MemoryStore.GetQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, track.IDs(q))

	setQueue(st)
	s.Flush()

	assert.Equal(t, 1, store.count("ClearQueue"))
	q, err = store.MemoryStore.GetQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, q)
}

func TestSynchronizer_DebouncedWrite(t *testing.T) {
	store := newRecordingStore()
	_, st := newTestSync(t, store, 10*time.Millisecond)

	setQueue(st, "1")

	assert.Eventually(t, func() bool {
		return store.count("StoreQueue") == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSynchronizer_CurrentTrackAndHistory(t *testing.T) {
	store := newRecordingStore()
	s, st := newTestSync(t, store, time.Hour)
	ctx := context.Background()

	cur := tr("c")
	st.Apply("test", func(snap state.Snapshot) state.Snapshot {
		snap.Current = &cur
		snap.Previous = []track.Track{tr("p1"), tr("p2")}
		return snap
	})
	s.Flush()

	raw, err := store.MemoryStore.GetSetting(ctx, KeyCurrentTrack)
	require.NoError(t, err)
	assert.Contains(t, raw, `"id":"c"`)

	recent, err := store.MemoryStore.GetRecentlyPlayed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, track.IDs(recent))

	st.Apply("test", func(snap state.Snapshot) state.Snapshot {
		snap.Current = nil
		return snap
	})
	s.Flush()

	raw, err = store.MemoryStore.GetSetting(ctx, KeyCurrentTrack)
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestSynchronizer_EmptiedHistoryIsNotWritten(t *testing.T) {
	store := newRecordingStore()
	s, st := newTestSync(t, store, time.Hour)
	ctx := context.Background()

	st.Apply("test", func(snap state.Snapshot) state.Snapshot {
		snap.Previous = []track.Track{tr("a")}
		return snap
	})
	s.Flush()

	st.Apply("test", func(snap state.Snapshot) state.Snapshot {
		snap.Previous = []track.Track{}
		return snap
	})
	s.Flush()

	assert.Equal(t, 1, store.count("StoreRecentlyPlayed"))
	recent, err := store.MemoryStore.GetRecentlyPlayed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, track.IDs(recent))
}

func TestSynchronizer_Settings(t *testing.T) {
	store := newRecordingStore()
	s, st := newTestSync(t, store, time.Hour)
	ctx := context.Background()

	st.Apply("test", func(snap state.Snapshot) state.Snapshot {
		snap.Settings.Volume = 0.25
		snap.Settings.Repeat = settings.RepeatOne
		return snap
	})
	s.Flush()

	v, err := store.MemoryStore.GetSetting(ctx, KeyVolume)
	require.NoError(t, err)
	assert.Equal(t, "0.25", v)
	m, err := store.MemoryStore.GetSetting(ctx, KeyRepeatMode)
	require.NoError(t, err)
	assert.Equal(t, "one", m)

	assert.Zero(t, store.count("StoreSetting:"+KeyShuffle), "unchanged settings are not written")
	assert.Zero(t, store.count("StoreSetting:"+KeyAudioQuality))
}

func TestSynchronizer_WriteFailureIsLogged(t *testing.T) {
	store := newRecordingStore()
	store.fail["StoreQueue"] = errors.New("disk full")
	s, st := newTestSync(t, store, time.Hour)

	setQueue(st, "1")
	assert.NotPanics(t, s.Flush)
	assert.Equal(t, 1, store.count("StoreQueue"))
}

func TestSynchronizer_Close(t *testing.T) {
	store := newRecordingStore()
	st := state.NewStore()
	s := NewSynchronizer(store, st, Config{Debounce: time.Hour})

	setQueue(st, "1")
	s.Close()

	assert.Equal(t, 1, store.count("StoreQueue"), "close flushes pending writes")
	assert.Equal(t, 0, st.SubscriberCount())

	setQueue(st, "2")
	s.Flush()
	assert.Equal(t, 1, store.count("StoreQueue"))
	assert.NotPanics(t, s.Close)
}

func TestSynchronizer_CacheTrack(t *testing.T) {
	store := NewMemoryStore()
	st := state.NewStore()
	s := NewSynchronizer(store, st, Config{Debounce: 10 * time.Millisecond, MaxBlobSize: 8})
	t.Cleanup(s.Close)
	ctx := context.Background()

	require.NoError(t, s.CacheTrack(ctx, tr("a"), strings.NewReader("audio")))
	data, err := store.GetTrackBlob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), data)

	err = s.CacheTrack(ctx, tr("b"), strings.NewReader("much too long"))
	assert.True(t, errors.Is(err, ErrBlobTooLarge))
	_, err = store.GetTrackBlob(ctx, "b")
	assert.True(t, errors.Is(err, ErrNotFound))
}

// fakeTarget records restore calls in order.
type fakeTarget struct {
	calls    []string
	settings settings.Settings
	queue    []track.Track
	previous []track.Track
	current  *track.Track
	autoPlay bool
}

func (f *fakeTarget) ApplySettings(s settings.Settings) {
	f.calls = append(f.calls, "settings")
	f.settings = s
}

func (f *fakeTarget) Seed(queue, previous []track.Track) {
	f.calls = append(f.calls, "seed")
	f.queue = queue
	f.previous = previous
}

func (f *fakeTarget) PlayTrack(t track.Track, autoPlay bool) {
	f.calls = append(f.calls, "play")
	f.current = &t
	f.autoPlay = autoPlay
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	fetched := []track.Track{tr("f1"), tr("f2"), tr("f1")}
	fetch := func(context.Context) ([]track.Track, error) { return fetched, nil }

	tests := []struct {
		name       string
		setup      func(s *recordingStore)
		fetch      FetchFunc
		wantSource QueueSource
		wantQueue  []string
	}{
		{
			name: "persisted queue wins",
			setup: func(s *recordingStore) {
				_ = s.MemoryStore.StoreQueue(ctx, []track.Track{tr("q1")})
				_ = s.MemoryStore.StoreRecommendedTracks(ctx, []track.Track{tr("r1")})
			},
			fetch:      fetch,
			wantSource: QueueFromStore,
			wantQueue:  []string{"q1"},
		},
		{
			name: "recommended when no queue",
			setup: func(s *recordingStore) {
				_ = s.MemoryStore.StoreRecommendedTracks(ctx, []track.Track{tr("r1"), tr("r2")})
			},
			fetch:      fetch,
			wantSource: QueueFromRecommended,
			wantQueue:  []string{"r1", "r2"},
		},
		{
			name:       "fetch when nothing persisted",
			setup:      func(*recordingStore) {},
			fetch:      fetch,
			wantSource: QueueFromFetch,
			wantQueue:  []string{"f1", "f2"},
		},
		{
			name: "read failures count as empty",
			setup: func(s *recordingStore) {
				s.fail["GetQueue"] = errors.New("corrupt")
				s.fail["GetRecommendedTracks"] = errors.New("corrupt")
			},
			fetch:      fetch,
			wantSource: QueueFromFetch,
			wantQueue:  []string{"f1", "f2"},
		},
		{
			name:  "fetch failure leaves queue empty",
			setup: func(*recordingStore) {},
			fetch: func(context.Context) ([]track.Track, error) {
				return nil, errors.New("offline")
			},
			wantSource: QueueEmpty,
		},
		{
			name:       "no fetcher",
			setup:      func(*recordingStore) {},
			wantSource: QueueEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newRecordingStore()
			tt.setup(store)
			target := &fakeTarget{}

			got := Restore(ctx, store, target, RestoreOptions{Fetch: tt.fetch})

			assert.Equal(t, tt.wantSource, got.QueueSource)
			if tt.wantQueue == nil {
				assert.Empty(t, got.Queue)
			} else {
				assert.Equal(t, tt.wantQueue, track.IDs(got.Queue))
				assert.Equal(t, tt.wantQueue, track.IDs(target.queue))
			}
			assert.Equal(t, []string{"settings", "seed"}, target.calls)

			if tt.wantSource == QueueFromFetch {
				assert.Equal(t, 1, store.count("StoreRecommendedTracks"))
			} else {
				assert.Zero(t, store.count("StoreRecommendedTracks"))
			}
		})
	}
}

func TestRestore_FullState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.StoreSetting(ctx, KeyVolume, "0.4"))
	require.NoError(t, store.StoreSetting(ctx, KeyShuffle, "true"))
	require.NoError(t, store.StoreSetting(ctx, KeyAudioQuality, "DATA_SAVER"))
	require.NoError(t, store.StoreSetting(ctx, KeyRepeatMode, "all"))
	require.NoError(t, store.StoreSetting(ctx, KeyCurrentTrack, `{"id":"c","title":"Current"}`))
	require.NoError(t, store.StoreQueue(ctx, []track.Track{tr("q1")}))
	require.NoError(t, store.StoreRecentlyPlayed(ctx, []track.Track{tr("p1"), tr("p1"), tr("p2")}))
	pl, err := playlist.New("mix", []track.Track{tr("x")})
	require.NoError(t, err)
	require.NoError(t, store.StorePlaylist(ctx, pl))

	target := &fakeTarget{}
	got := Restore(ctx, store, target, RestoreOptions{AutoPlay: true})

	assert.Equal(t, []string{"settings", "seed", "play"}, target.calls)
	assert.Equal(t, settings.Settings{
		Volume:  0.4,
		Shuffle: true,
		Quality: settings.QualityDataSave,
		Repeat:  settings.RepeatAll,
	}, target.settings)
	assert.Equal(t, []string{"p1", "p2"}, track.IDs(target.previous))
	require.NotNil(t, target.current)
	assert.Equal(t, "c", target.current.ID)
	assert.Equal(t, track.DefaultArtistName, target.current.Artist.Name)
	assert.True(t, target.autoPlay)
	require.Len(t, got.Playlists, 1)
	assert.Equal(t, "mix", got.Playlists[0].Name)
}

func TestRestore_InvalidSettings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.StoreSetting(ctx, KeyVolume, "loud"))
	require.NoError(t, store.StoreSetting(ctx, KeyRepeatMode, "sometimes"))
	require.NoError(t, store.StoreSetting(ctx, KeyCurrentTrack, "{not json"))

	target := &fakeTarget{}
	got := Restore(ctx, store, target, RestoreOptions{})

	assert.Equal(t, settings.Default(), got.Settings)
	assert.Nil(t, got.Current)
	assert.NotContains(t, target.calls, "play")
}
