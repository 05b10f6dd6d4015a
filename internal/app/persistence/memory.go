package persistence

import (
	"context"
	"slices"
	"sync"

	"github.com/osa030/tunebox/internal/domain/playlist"
	"github.com/osa030/tunebox/internal/domain/track"
)

// MemoryStore is a Store held in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	settings    map[string]string
	queue       []track.Track
	playlists   map[string]*playlist.Playlist
	recommended []track.Track
	recent      []track.Track
	blobs       map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings:  make(map[string]string),
		playlists: make(map[string]*playlist.Playlist),
		blobs:     make(map[string][]byte),
	}
}

func (m *MemoryStore) StoreSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *MemoryStore) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) StoreQueue(_ context.Context, tracks []track.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = track.Clone(tracks)
	return nil
}

func (m *MemoryStore) GetQueue(context.Context) ([]track.Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return track.Clone(m.queue), nil
}

func (m *MemoryStore) ClearQueue(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = nil
	return nil
}

func (m *MemoryStore) StorePlaylist(_ context.Context, p *playlist.Playlist) error {
	if p == nil {
		return playlist.ErrInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.Tracks = track.Clone(p.Tracks)
	m.playlists[p.Name] = &cp
	return nil
}

func (m *MemoryStore) GetAllPlaylists(context.Context) ([]*playlist.Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.playlists))
	for name := range m.playlists {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]*playlist.Playlist, 0, len(names))
	for _, name := range names {
		cp := *m.playlists[name]
		cp.Tracks = track.Clone(cp.Tracks)
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) DeletePlaylistByName(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.playlists[name]; !ok {
		return ErrNotFound
	}
	delete(m.playlists, name)
	return nil
}

func (m *MemoryStore) StoreRecommendedTracks(_ context.Context, tracks []track.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recommended = track.Clone(tracks)
	return nil
}

func (m *MemoryStore) GetRecommendedTracks(context.Context) ([]track.Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return track.Clone(m.recommended), nil
}

func (m *MemoryStore) StoreRecentlyPlayed(_ context.Context, tracks []track.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = track.Clone(tracks)
	return nil
}

func (m *MemoryStore) GetRecentlyPlayed(context.Context) ([]track.Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return track.Clone(m.recent), nil
}

func (m *MemoryStore) StoreTrackBlob(_ context.Context, trackID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[trackID] = slices.Clone(data)
	return nil
}

func (m *MemoryStore) GetTrackBlob(_ context.Context, trackID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[trackID]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}
