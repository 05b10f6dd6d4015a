// Package playback provides the queue and history manager together with the
// track-transition state machine that drives a Player.
package playback

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

// Errors
var (
	ErrPlayerUnavailable = errors.New("player unavailable")
	ErrNoTrack           = errors.New("no track playing")
	ErrNoNextTrack       = errors.New("no next track available")
	ErrNoPreviousTrack   = errors.New("no previous track available")
	ErrIndexOutOfRange   = errors.New("queue index out of range")
)

// Player is the playback primitive. Only the Engine calls its mutating
// methods.
type Player interface {
	// Load binds t as the current source, positioned at offset 0.
	Load(ctx context.Context, t track.Track) error
	// Play starts or resumes the loaded source. It may be refused.
	Play(ctx context.Context) error
	Pause() error
	// Stop halts playback and releases the loaded source.
	Stop() error
	Position() time.Duration
	Seek(d time.Duration) error
	// Duration returns the length of the loaded source, or 0 when unknown.
	Duration() time.Duration
	SetVolume(v float64) error
	SetAudioQuality(q settings.AudioQuality) error
	// SetLoop makes the source restart natively instead of ending.
	SetLoop(loop bool) error
	// OnEnded registers the single callback run when the source ends.
	// Registering again replaces the previous callback.
	OnEnded(fn func())
}
