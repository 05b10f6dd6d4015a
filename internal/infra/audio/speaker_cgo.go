//go:build (linux && cgo) || windows || darwin

package audio

import (
	"bytes"
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/app/playback"
	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

// Available reports whether this build can drive a sound device.
const Available = true

// Speaker plays MP3 streams on the default sound device.
type Speaker struct {
	mu sync.Mutex

	loader     *Loader
	sampleRate beep.SampleRate
	ready      bool

	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	vol      *effects.Volume

	volume   float64
	quality  settings.AudioQuality
	loop     atomic.Bool
	onEnded  func()
	playback uint64 // Incremented per load; guards the end callback
}

var _ playback.Player = (*Speaker)(nil)

// NewSpeaker creates a speaker player. The device is opened on first load.
func NewSpeaker(loader *Loader, sampleRate int) (*Speaker, error) {
	if loader == nil {
		return nil, errors.New("loader is required")
	}
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &Speaker{
		loader:     loader,
		sampleRate: beep.SampleRate(sampleRate),
		volume:     1,
		quality:    settings.QualityHigh,
	}, nil
}

func (p *Speaker) initSpeaker() error {
	if p.ready {
		return nil
	}
	if err := speaker.Init(p.sampleRate, p.sampleRate.N(time.Second/10)); err != nil {
		return errors.Wrap(err, "failed to initialize speaker")
	}
	p.ready = true
	zlog.Info().Msgf("audio: speaker initialized: sample_rate=%d", p.sampleRate)
	return nil
}

// Load decodes t and queues it on the speaker, paused at offset 0.
func (p *Speaker) Load(ctx context.Context, t track.Track) error {
	data, err := p.loader.Fetch(ctx, t)
	if err != nil {
		return err
	}
	streamer, format, err := mp3.Decode(nopCloser{bytes.NewReader(data)})
	if err != nil {
		return errors.Wrapf(err, "failed to decode stream for %s", t.ID)
	}
	if err := ctx.Err(); err != nil {
		streamer.Close()
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.initSpeaker(); err != nil {
		streamer.Close()
		return err
	}
	p.stopLocked()

	p.playback++
	id := p.playback
	p.streamer = streamer
	p.format = format

	var s beep.Streamer = &looper{s: streamer, loop: &p.loop}
	s = beep.Resample(resampleQuality(p.quality), format.SampleRate, p.sampleRate, s)
	p.vol = &effects.Volume{Streamer: s, Base: 2}
	applyVolume(p.vol, p.volume)
	p.ctrl = &beep.Ctrl{Streamer: p.vol, Paused: true}

	speaker.Play(beep.Seq(p.ctrl, beep.Callback(func() {
		// Runs on the speaker goroutine with the speaker locked.
		go p.finished(id)
	})))

	zlog.Debug().Msgf("audio: loaded: id=%s sample_rate=%d duration=%v bitrate=%d",
		t.ID, format.SampleRate, format.SampleRate.D(streamer.Len()), p.quality.Bitrate())
	return nil
}

func (p *Speaker) finished(id uint64) {
	p.mu.Lock()
	if id != p.playback {
		p.mu.Unlock()
		return
	}
	fn := p.onEnded
	p.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (p *Speaker) Play(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return ErrNothingLoaded
	}
	speaker.Lock()
	p.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

func (p *Speaker) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl != nil {
		speaker.Lock()
		p.ctrl.Paused = true
		speaker.Unlock()
	}
	return nil
}

func (p *Speaker) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Speaker) stopLocked() {
	p.playback++
	if p.ready {
		speaker.Clear()
	}
	if p.streamer != nil {
		if err := p.streamer.Close(); err != nil {
			zlog.Warn().Msgf("audio: failed to close stream: %v", err)
		}
	}
	p.streamer = nil
	p.ctrl = nil
	p.vol = nil
}

func (p *Speaker) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return 0
	}
	speaker.Lock()
	pos := p.streamer.Position()
	speaker.Unlock()
	return p.format.SampleRate.D(pos)
}

func (p *Speaker) Seek(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return ErrNothingLoaded
	}

	speaker.Lock()
	defer speaker.Unlock()
	n := p.format.SampleRate.N(d)
	if n < 0 {
		n = 0
	}
	if length := p.streamer.Len(); n > length {
		n = length
	}
	if err := p.streamer.Seek(n); err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	return nil
}

func (p *Speaker) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return 0
	}
	return p.format.SampleRate.D(p.streamer.Len())
}

func (p *Speaker) SetVolume(v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = settings.ClampVolume(v)
	if p.vol != nil {
		speaker.Lock()
		applyVolume(p.vol, p.volume)
		speaker.Unlock()
	}
	return nil
}

// SetAudioQuality selects the resampling quality of subsequent loads.
func (p *Speaker) SetAudioQuality(q settings.AudioQuality) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quality = q
	return nil
}

func (p *Speaker) SetLoop(loop bool) error {
	p.loop.Store(loop)
	return nil
}

func (p *Speaker) OnEnded(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEnded = fn
}

// applyVolume maps a linear volume in [0, 1] onto the exponential scale of
// effects.Volume.
func applyVolume(vol *effects.Volume, v float64) {
	if v <= 0 {
		vol.Silent = true
		vol.Volume = 0
		return
	}
	vol.Silent = false
	vol.Volume = math.Log2(v)
}

// looper rewinds its source at the end while loop is set.
type looper struct {
	s    beep.StreamSeeker
	loop *atomic.Bool
}

func (l *looper) Stream(samples [][2]float64) (int, bool) {
	n, ok := l.s.Stream(samples)
	for n < len(samples) && l.loop.Load() && l.s.Len() > 0 {
		if err := l.s.Seek(0); err != nil {
			break
		}
		m, _ := l.s.Stream(samples[n:])
		if m == 0 {
			break
		}
		n += m
	}
	return n, ok || n > 0
}

func (l *looper) Err() error { return l.s.Err() }

// nopCloser wraps a bytes.Reader to implement io.ReadCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
