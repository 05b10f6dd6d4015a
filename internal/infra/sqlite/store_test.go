package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunebox/internal/app/persistence"
	"github.com/osa030/tunebox/internal/domain/playlist"
	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func tracks(ids ...string) []track.Track {
	out := make([]track.Track, 0, len(ids))
	for _, id := range ids {
		out = append(out, track.Sanitize(track.Track{ID: id, Title: "Song " + id, Duration: 3 * time.Minute}))
	}
	return out
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.NotEmpty(t, m.up, "version %d", m.version)
		assert.NotEmpty(t, m.down, "version %d", m.version)
		if i > 0 {
			assert.Greater(t, m.version, migrations[i-1].version)
		}
	}
}

func TestMigrateAndRollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Re-running is a no-op.
	require.NoError(t, migrate(ctx, s.db))

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)

	require.NoError(t, rollback(ctx, s.db))
	_, err := s.db.Exec("SELECT 1 FROM track_blobs LIMIT 1")
	assert.Error(t, err)
	_, err = s.db.Exec("SELECT 1 FROM settings LIMIT 1")
	assert.NoError(t, err)

	require.NoError(t, rollback(ctx, s.db))
	assert.Error(t, rollback(ctx, s.db))
}

func TestStore_Settings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetSetting(ctx, persistence.KeyVolume)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, s.StoreSetting(ctx, persistence.KeyVolume, "0.5"))
	require.NoError(t, s.StoreSetting(ctx, persistence.KeyVolume, "0.8"))

	v, err := s.GetSetting(ctx, persistence.KeyVolume)
	require.NoError(t, err)
	assert.Equal(t, "0.8", v)
}

func TestStore_TrackLists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		store func(context.Context, []track.Track) error
		get   func(context.Context) ([]track.Track, error)
	}{
		{"queue", s.StoreQueue, s.GetQueue},
		{"recommended", s.StoreRecommendedTracks, s.GetRecommendedTracks},
		{"recently played", s.StoreRecentlyPlayed, s.GetRecentlyPlayed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.get(ctx)
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)

			want := tracks("a", "b", "c")
			require.NoError(t, tt.store(ctx, want))
			got, err = tt.get(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			require.NoError(t, tt.store(ctx, tracks("c")))
			got, err = tt.get(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"c"}, track.IDs(got))
		})
	}

	// Lists are independent.
	require.NoError(t, s.ClearQueue(ctx))
	queue, err := s.GetQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)

	recent, err := s.GetRecentlyPlayed(ctx)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestStore_SanitizesStoredRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(`INSERT INTO track_lists (name, tracks) VALUES ('queue', ?)`,
		`[{"id":"1","title":""},{"id":"1","title":"dup"},"bogus",{"title":"No Id"}]`)
	require.NoError(t, err)

	got, err := s.GetQueue(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, track.DefaultTitle, got[0].Title)
	assert.Equal(t, track.DefaultAlbumTitle, got[0].Album.Title)
	assert.True(t, track.IsFallbackID(got[1].ID))
}

func TestStore_Playlists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	road, err := playlist.New("Road Trip", tracks("1", "2"))
	require.NoError(t, err)
	chill, err := playlist.New("Chill", tracks("3"))
	require.NoError(t, err)

	require.NoError(t, s.StorePlaylist(ctx, road))
	require.NoError(t, s.StorePlaylist(ctx, chill))

	road.Add(tracks("4")...)
	require.NoError(t, s.StorePlaylist(ctx, road))

	got, err := s.GetAllPlaylists(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Chill", got[0].Name)
	assert.Equal(t, "Road Trip", got[1].Name)
	assert.Equal(t, []string{"1", "2", "4"}, got[1].TrackIDs())
	assert.WithinDuration(t, road.CreatedAt, got[1].CreatedAt, time.Second)

	require.NoError(t, s.DeletePlaylistByName(ctx, "Chill"))
	assert.ErrorIs(t, s.DeletePlaylistByName(ctx, "Chill"), persistence.ErrNotFound)
	assert.ErrorIs(t, s.StorePlaylist(ctx, nil), playlist.ErrInvalidName)

	got, err = s.GetAllPlaylists(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_TrackBlobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetTrackBlob(ctx, "1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, s.StoreTrackBlob(ctx, "1", []byte("ID3 audio")))
	data, err := s.GetTrackBlob(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3 audio"), data)
}

func TestStore_FileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "tunebox.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.StoreQueue(ctx, tracks("x", "y")))
	require.NoError(t, s.StoreSetting(ctx, persistence.KeyRepeatMode, "all"))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	queue, err := s.GetQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, track.IDs(queue))

	mode, err := s.GetSetting(ctx, persistence.KeyRepeatMode)
	require.NoError(t, err)
	assert.Equal(t, "all", mode)
}

func TestStore_RestoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.StoreQueue(ctx, tracks("q1", "q2")))
	require.NoError(t, s.StoreRecentlyPlayed(ctx, tracks("h1")))

	target := &seedRecorder{}
	restored := persistence.Restore(ctx, s, target, persistence.RestoreOptions{})
	assert.Equal(t, persistence.QueueFromStore, restored.QueueSource)
	assert.Equal(t, []string{"q1", "q2"}, track.IDs(target.queue))
	assert.Equal(t, []string{"h1"}, track.IDs(target.previous))
}

type seedRecorder struct {
	queue, previous []track.Track
}

func (r *seedRecorder) ApplySettings(settings.Settings) {}

func (r *seedRecorder) Seed(queue, previous []track.Track) {
	r.queue, r.previous = queue, previous
}

func (r *seedRecorder) PlayTrack(track.Track, bool) {}
