package playback

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/app/state"
	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

// Config holds engine configuration.
type Config struct {
	HistoryLimit    int           // Maximum play-history length, 0 for unbounded
	RepeatAllReseed bool          // Loop back through history when the queue runs out under repeat-all
	PollInterval    time.Duration // Position sampling interval while playing
	LoadTimeout     time.Duration // Upper bound for a single load-and-play request
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:    200,
		RepeatAllReseed: true,
		PollInterval:    500 * time.Millisecond,
		LoadTimeout:     30 * time.Second,
	}
}

// Engine owns the queue, the play history and the current track, and decides
// what happens when a track starts, ends, is skipped or replayed. Every
// operation is a single mutation of the state store; player side effects run
// afterwards and report back through further mutations.
type Engine struct {
	mu sync.Mutex

	store  *state.Store
	player Player
	config Config

	// loadGen identifies the most recent load; callbacks from older loads are ignored.
	loadGen    uint64
	pollCancel func()

	// playMu serializes deferred Play requests against pause and stop.
	// playGen is bumped by pause so a queued Play from an older intent drops.
	playMu  sync.Mutex
	playGen uint64

	// async runs fire-and-forget player requests.
	async func(func())

	eventCh chan Event
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
}

// NewEngine creates an engine over store. The player may be attached later
// with SetPlayer; until then operations that need it are no-ops with a warning.
func NewEngine(store *state.Store, player Player, config Config) *Engine {
	def := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = def.LoadTimeout
	}
	if config.HistoryLimit < 0 {
		config.HistoryLimit = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:   store,
		config:  config,
		eventCh: make(chan Event, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
	e.async = func(fn func()) { go fn() }
	if player != nil {
		e.SetPlayer(player)
	}
	return e
}

// Events returns the event channel.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// Store returns the state store the engine writes to.
func (e *Engine) Store() *state.Store {
	return e.store
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() state.Snapshot {
	return e.store.Get()
}

// SetPlayer attaches the playback primitive and pushes the current settings
// to it. Passing nil detaches it.
func (e *Engine) SetPlayer(p Player) {
	e.mu.Lock()
	e.player = p
	e.loadGen++
	e.mu.Unlock()

	if p == nil {
		e.stopPolling()
		return
	}

	s := e.store.Get().Settings
	if err := p.SetVolume(s.Volume); err != nil {
		zlog.Warn().Msgf("playback: failed to apply volume: %v", err)
	}
	if err := p.SetAudioQuality(s.Quality); err != nil {
		zlog.Warn().Msgf("playback: failed to apply audio quality: %v", err)
	}
	if err := p.SetLoop(s.Repeat == settings.RepeatOne); err != nil {
		zlog.Warn().Msgf("playback: failed to apply loop flag: %v", err)
	}
}

// gateway returns the attached player or nil.
func (e *Engine) gateway() Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	return e.player
}

// Close stops playback, polling and event delivery.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	p := e.player
	e.loadGen++
	e.mu.Unlock()

	e.stopPolling()
	if p != nil {
		if err := p.Stop(); err != nil {
			zlog.Warn().Msgf("playback: failed to stop player on close: %v", err)
		}
	}
	e.cancel()

	// Wait for senders holding the lock to finish before closing.
	e.mu.Lock()
	close(e.eventCh)
	e.mu.Unlock()
}

// effect collects the side effects decided by a mutation.
type effect struct {
	warning  string
	notice   string
	load     *track.Track
	autoPlay bool
	stop     bool
	events   []Event
}

func (f *effect) emit(t EventType, tr *track.Track, status state.Status) {
	f.events = append(f.events, Event{Type: t, Track: tr, Status: status})
}

// run performs the side effects of a mutation, in order: events, player stop,
// player load.
func (e *Engine) run(f effect) {
	if f.warning != "" {
		e.warn(f.warning)
	}
	if f.notice != "" {
		e.notify(f.notice)
	}
	for _, ev := range f.events {
		e.sendEvent(ev)
	}
	if f.stop {
		e.stopPlayer()
	}
	if f.load != nil {
		e.load(*f.load, f.autoPlay)
	}
}

func (e *Engine) warn(msg string) {
	zlog.Warn().Msgf("playback: %s", msg)
	e.sendEvent(Event{Type: EventWarning, Message: msg, Status: e.store.Get().Status})
}

func (e *Engine) notify(msg string) {
	zlog.Info().Msgf("playback: %s", msg)
	e.sendEvent(Event{Type: EventNotice, Message: msg, Status: e.store.Get().Status})
}

// sendEvent sends an event without blocking.
func (e *Engine) sendEvent(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.eventCh <- ev:
	case <-e.ctx.Done():
	default:
		zlog.Debug().Msgf("playback: event channel full, dropping event: type=%s", ev.Type)
	}
}

// load binds t to the player. The request runs asynchronously; a refused play
// leaves the track Paused.
func (e *Engine) load(t track.Track, autoPlay bool) {
	e.mu.Lock()
	p := e.player
	e.loadGen++
	gen, play := e.loadGen, e.playGen
	e.mu.Unlock()

	if p == nil {
		return
	}
	e.stopPolling()
	p.OnEnded(func() { e.handleEnded(gen) })
	if autoPlay {
		e.startPolling()
	}

	e.async(func() {
		defer e.recoverTask("load")

		ctx, cancel := context.WithTimeout(e.ctx, e.config.LoadTimeout)
		defer cancel()

		if err := p.Load(ctx, t); err != nil {
			zlog.Error().Msgf("playback: failed to load track: id=%s title=%s error=%v", t.ID, t.Title, err)
			e.settle(gen, state.StatusPaused)
			e.warn("Cannot play track: " + t.Title)
			return
		}
		if !autoPlay {
			return
		}
		played, err := e.playIfCurrent(ctx, p, gen, play)
		if err != nil {
			zlog.Warn().Msgf("playback: play request rejected: id=%s error=%v", t.ID, err)
			e.settle(gen, state.StatusPaused)
			return
		}
		if !played {
			zlog.Debug().Msgf("playback: load superseded before play: id=%s", t.ID)
			return
		}
		zlog.Debug().Msgf("playback: track playing: id=%s title=%s", t.ID, t.Title)
	})
}

// playIfCurrent starts the player only if no load, stop or pause has happened
// since the request identified by gen and play was made, and the store still
// says Playing.
func (e *Engine) playIfCurrent(ctx context.Context, p Player, gen, play uint64) (bool, error) {
	e.playMu.Lock()
	defer e.playMu.Unlock()

	e.mu.Lock()
	stale := e.closed || gen != e.loadGen || play != e.playGen
	e.mu.Unlock()
	if stale || !e.store.Get().IsPlaying() {
		return false, nil
	}
	return true, p.Play(ctx)
}

// intent returns the current load and play generations.
func (e *Engine) intent() (uint64, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadGen, e.playGen
}

// resume asks the player to continue the loaded track.
func (e *Engine) resume(p Player) {
	gen, play := e.intent()

	e.startPolling()
	e.async(func() {
		defer e.recoverTask("resume")

		ctx, cancel := context.WithTimeout(e.ctx, e.config.LoadTimeout)
		defer cancel()

		if _, err := e.playIfCurrent(ctx, p, gen, play); err != nil {
			zlog.Warn().Msgf("playback: resume rejected: error=%v", err)
			e.settle(gen, state.StatusPaused)
		}
	})
}

// settle records the outcome of an asynchronous player request, unless a
// newer load has superseded it.
func (e *Engine) settle(gen uint64, status state.Status) {
	e.mu.Lock()
	stale := gen != e.loadGen
	e.mu.Unlock()
	if stale {
		return
	}

	if status != state.StatusPlaying {
		e.stopPolling()
	}
	next := e.store.Apply("settle", func(s state.Snapshot) state.Snapshot {
		if s.Current != nil {
			s.Status = status
		}
		return s
	})
	e.sendEvent(Event{Type: EventStateChanged, Track: next.Current, Status: next.Status})
}

func (e *Engine) stopPlayer() {
	e.playMu.Lock()
	defer e.playMu.Unlock()

	e.mu.Lock()
	p := e.player
	e.loadGen++
	e.mu.Unlock()

	e.stopPolling()
	if p == nil {
		return
	}
	if err := p.Stop(); err != nil {
		zlog.Warn().Msgf("playback: failed to stop player: %v", err)
	}
}

func (e *Engine) recoverTask(name string) {
	if r := recover(); r != nil {
		zlog.Error().Msgf("playback: %s task panicked: %v", name, r)
	}
}

// pushHistory puts t at the front of the history, deduped and capped.
func (e *Engine) pushHistory(history []track.Track, t track.Track) []track.Track {
	out := track.Prepend(history, t)
	if e.config.HistoryLimit > 0 && len(out) > e.config.HistoryLimit {
		out = out[:e.config.HistoryLimit]
	}
	return out
}

// capHistory trims history to the configured limit.
func (e *Engine) capHistory(history []track.Track) []track.Track {
	if e.config.HistoryLimit > 0 && len(history) > e.config.HistoryLimit {
		return history[:e.config.HistoryLimit]
	}
	return history
}
