// Package sqlite provides the durable store backed by an SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/app/persistence"
	"github.com/osa030/tunebox/internal/domain/playlist"
	"github.com/osa030/tunebox/internal/domain/track"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Track list names.
const (
	listQueue       = "queue"
	listRecommended = "recommended"
	listRecent      = "recently_played"
)

// Store is a persistence.Store over SQLite. Track lists and playlists are
// stored as JSON documents.
type Store struct {
	db *sql.DB
}

var _ persistence.Store = (*Store)(nil)

// Open opens the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	zlog.Info().Msgf("sqlite: database opened: path=%s", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) StoreSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to store setting %s", key)
	}
	return nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", persistence.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to get setting %s", key)
	}
	return value, nil
}

func (s *Store) StoreQueue(ctx context.Context, tracks []track.Track) error {
	return s.storeList(ctx, listQueue, tracks)
}

func (s *Store) GetQueue(ctx context.Context) ([]track.Track, error) {
	return s.getList(ctx, listQueue)
}

func (s *Store) ClearQueue(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM track_lists WHERE name = ?", listQueue); err != nil {
		return errors.Wrap(err, "failed to clear queue")
	}
	return nil
}

func (s *Store) StoreRecommendedTracks(ctx context.Context, tracks []track.Track) error {
	return s.storeList(ctx, listRecommended, tracks)
}

func (s *Store) GetRecommendedTracks(ctx context.Context) ([]track.Track, error) {
	return s.getList(ctx, listRecommended)
}

func (s *Store) StoreRecentlyPlayed(ctx context.Context, tracks []track.Track) error {
	return s.storeList(ctx, listRecent, tracks)
}

func (s *Store) GetRecentlyPlayed(ctx context.Context) ([]track.Track, error) {
	return s.getList(ctx, listRecent)
}

func (s *Store) storeList(ctx context.Context, name string, tracks []track.Track) error {
	if tracks == nil {
		tracks = []track.Track{}
	}
	data, err := json.Marshal(tracks)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", name)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO track_lists (name, tracks, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET tracks = excluded.tracks, updated_at = excluded.updated_at`,
		name, string(data), time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to store %s", name)
	}
	return nil
}

// getList returns an empty list when nothing is stored under name.
func (s *Store) getList(ctx context.Context, name string) ([]track.Track, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT tracks FROM track_lists WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []track.Track{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s", name)
	}
	return decodeTracks(name, data)
}

func (s *Store) StorePlaylist(ctx context.Context, p *playlist.Playlist) error {
	if p == nil || p.Name == "" {
		return playlist.ErrInvalidName
	}
	tracks := p.Tracks
	if tracks == nil {
		tracks = []track.Track{}
	}
	data, err := json.Marshal(tracks)
	if err != nil {
		return errors.Wrapf(err, "failed to encode playlist %s", p.Name)
	}

	created, updated := p.CreatedAt, p.UpdatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if updated.IsZero() {
		updated = created
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO playlists (name, tracks, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET tracks = excluded.tracks, updated_at = excluded.updated_at`,
		p.Name, string(data), created.UTC(), updated.UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to store playlist %s", p.Name)
	}
	return nil
}

func (s *Store) GetAllPlaylists(ctx context.Context) ([]*playlist.Playlist, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, tracks, created_at, updated_at FROM playlists ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query playlists")
	}
	defer rows.Close()

	out := []*playlist.Playlist{}
	for rows.Next() {
		var (
			p    playlist.Playlist
			data string
		)
		if err := rows.Scan(&p.Name, &data, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan playlist")
		}
		p.Tracks, err = decodeTracks("playlist "+p.Name, data)
		if err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read playlists")
	}
	return out, nil
}

func (s *Store) DeletePlaylistByName(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM playlists WHERE name = ?", name)
	if err != nil {
		return errors.Wrapf(err, "failed to delete playlist %s", name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *Store) StoreTrackBlob(ctx context.Context, trackID string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO track_blobs (track_id, data, size, cached_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET data = excluded.data, size = excluded.size, cached_at = excluded.cached_at`,
		trackID, data, len(data), time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to store audio for track %s", trackID)
	}
	return nil
}

func (s *Store) GetTrackBlob(ctx context.Context, trackID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM track_blobs WHERE track_id = ?", trackID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get audio for track %s", trackID)
	}
	return data, nil
}

// decodeTracks parses a stored JSON list. Entries are sanitized so rows
// written by older releases still satisfy the track invariants.
func decodeTracks(name, data string) ([]track.Track, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", name)
	}

	tracks := make([]track.Track, 0, len(raw))
	for i, r := range raw {
		var t track.Track
		if err := json.Unmarshal(r, &t); err != nil {
			zlog.Warn().Msgf("sqlite: skipping malformed track: list=%s index=%d error=%v", name, i, err)
			continue
		}
		tracks = append(tracks, t)
	}
	return track.Dedupe(tracks), nil
}
