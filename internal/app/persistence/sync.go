package persistence

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/app/state"
	"github.com/osa030/tunebox/internal/app/timer"
	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

// Config holds synchronizer configuration.
type Config struct {
	Debounce     time.Duration // Quiet period before a key is written
	WriteTimeout time.Duration // Upper bound for a single write
	MaxBlobSize  int64         // Largest audio blob accepted by CacheTrack, 0 for no limit
}

// DefaultConfig returns the default synchronizer configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:     300 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		MaxBlobSize:  64 << 20,
	}
}

// ErrBlobTooLarge is returned by CacheTrack when the audio exceeds MaxBlobSize.
var ErrBlobTooLarge = errors.New("audio blob too large")

const (
	keyQueue    = "queue"
	keyPrevious = "recently_played"
)

// Synchronizer writes state changes to the store. Each key has its own
// debouncer so a burst of changes results in one write per key.
type Synchronizer struct {
	store  Store
	state  *state.Store
	config Config
	subID  string

	mu         sync.Mutex
	debouncers map[string]*timer.Debouncer
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSynchronizer subscribes to st and starts mirroring it into store.
func NewSynchronizer(store Store, st *state.Store, config Config) *Synchronizer {
	def := DefaultConfig()
	if config.Debounce <= 0 {
		config.Debounce = def.Debounce
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		store:      store,
		state:      st,
		config:     config,
		debouncers: make(map[string]*timer.Debouncer),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.subID = st.Subscribe(s.onChange)
	return s
}

func (s *Synchronizer) onChange(c state.Change) {
	if c.QueueChanged() {
		queue := track.Clone(c.Next.Queue)
		s.schedule(keyQueue, func(ctx context.Context) error {
			if len(queue) == 0 {
				return s.store.ClearQueue(ctx)
			}
			return s.store.StoreQueue(ctx, queue)
		})
	}

	// An emptied history keeps the last persisted list.
	if c.PreviousChanged() && len(c.Next.Previous) > 0 {
		previous := track.Clone(c.Next.Previous)
		s.schedule(keyPrevious, func(ctx context.Context) error {
			return s.store.StoreRecentlyPlayed(ctx, previous)
		})
	}

	if c.CurrentChanged() {
		value := ""
		if c.Next.Current != nil {
			data, err := json.Marshal(c.Next.Current)
			if err != nil {
				zlog.Error().Msgf("persistence: failed to encode current track: %v", err)
				return
			}
			value = string(data)
		}
		s.scheduleSetting(KeyCurrentTrack, value)
	}

	if c.SettingsChanged() {
		prev, next := c.Prev.Settings, c.Next.Settings
		if prev.Volume != next.Volume {
			s.scheduleSetting(KeyVolume, strconv.FormatFloat(next.Volume, 'f', -1, 64))
		}
		if prev.Shuffle != next.Shuffle {
			s.scheduleSetting(KeyShuffle, strconv.FormatBool(next.Shuffle))
		}
		if prev.Quality != next.Quality {
			s.scheduleSetting(KeyAudioQuality, string(next.Quality))
		}
		if prev.Repeat != next.Repeat {
			s.scheduleSetting(KeyRepeatMode, next.Repeat.String())
		}
	}
}

func (s *Synchronizer) scheduleSetting(key, value string) {
	s.schedule(key, func(ctx context.Context) error {
		return s.store.StoreSetting(ctx, key, value)
	})
}

// schedule replaces the pending write for key.
func (s *Synchronizer) schedule(key string, write func(ctx context.Context) error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	d, ok := s.debouncers[key]
	if !ok {
		d = timer.NewDebouncer(s.config.Debounce)
		s.debouncers[key] = d
	}
	s.mu.Unlock()

	d.Call(func() { s.write(key, write) })
}

func (s *Synchronizer) write(key string, write func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.WriteTimeout)
	defer cancel()

	if err := write(ctx); err != nil {
		zlog.Error().Msgf("persistence: failed to write key: key=%s error=%v", key, err)
		return
	}
	zlog.Debug().Msgf("persistence: key written: key=%s", key)
}

// Flush writes every pending key now.
func (s *Synchronizer) Flush() {
	s.mu.Lock()
	pending := make([]*timer.Debouncer, 0, len(s.debouncers))
	for _, d := range s.debouncers {
		pending = append(pending, d)
	}
	s.mu.Unlock()

	for _, d := range pending {
		d.Flush()
	}
}

// Close unsubscribes, flushes pending writes and stops the synchronizer.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.state.Unsubscribe(s.subID)
	s.Flush()

	s.mu.Lock()
	s.closed = true
	for _, d := range s.debouncers {
		d.Stop()
	}
	s.mu.Unlock()
	s.cancel()
}

// CacheTrack stores the audio of t for offline playback.
func (s *Synchronizer) CacheTrack(ctx context.Context, t track.Track, r io.Reader) error {
	t = track.Sanitize(t)
	if s.config.MaxBlobSize > 0 {
		r = io.LimitReader(r, s.config.MaxBlobSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "failed to read audio for track %s", t.ID)
	}
	if s.config.MaxBlobSize > 0 && int64(len(data)) > s.config.MaxBlobSize {
		return errors.Wrapf(ErrBlobTooLarge, "track %s", t.ID)
	}
	if err := s.store.StoreTrackBlob(ctx, t.ID, data); err != nil {
		return errors.Wrapf(err, "failed to cache audio for track %s", t.ID)
	}
	zlog.Info().Msgf("persistence: cached audio: id=%s bytes=%d", t.ID, len(data))
	return nil
}

// decodeSettings reads each persisted setting, keeping defaults for keys
// that are missing or unreadable.
func decodeSettings(ctx context.Context, store Store) settings.Settings {
	s := settings.Default()

	if v, ok := readSetting(ctx, store, KeyVolume); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.Volume = settings.ClampVolume(f)
		} else {
			zlog.Warn().Msgf("persistence: invalid volume setting: value=%q", v)
		}
	}
	if v, ok := readSetting(ctx, store, KeyShuffle); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Shuffle = b
		} else {
			zlog.Warn().Msgf("persistence: invalid shuffle setting: value=%q", v)
		}
	}
	if v, ok := readSetting(ctx, store, KeyAudioQuality); ok {
		q, err := settings.ParseAudioQuality(v)
		if err != nil {
			zlog.Warn().Msgf("persistence: invalid audio quality setting: value=%q", v)
		}
		s.Quality = q
	}
	if v, ok := readSetting(ctx, store, KeyRepeatMode); ok {
		if m, err := settings.ParseRepeatMode(v); err == nil {
			s.Repeat = m
		} else {
			zlog.Warn().Msgf("persistence: invalid repeat mode setting: value=%q", v)
		}
	}
	return s
}

func readSetting(ctx context.Context, store Store, key string) (string, bool) {
	v, err := store.GetSetting(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			zlog.Error().Msgf("persistence: failed to read setting: key=%s error=%v", key, err)
		}
		return "", false
	}
	if v == "" {
		return "", false
	}
	return v, true
}
