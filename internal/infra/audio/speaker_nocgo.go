//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"context"
	"time"

	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

// Available reports whether this build can drive a sound device.
// Audio output requires cgo on this platform.
const Available = false

// Speaker is unavailable without cgo; NewSpeaker always fails.
type Speaker struct{}

// NewSpeaker returns ErrAudioDisabled.
func NewSpeaker(*Loader, int) (*Speaker, error) {
	return nil, ErrAudioDisabled
}

func (*Speaker) Load(context.Context, track.Track) error { return ErrAudioDisabled }
func (*Speaker) Play(context.Context) error { return ErrAudioDisabled }
func (*Speaker) Pause() error { return nil }
func (*Speaker) Stop() error { return nil }
func (*Speaker) Position() time.Duration { return 0 }
func (*Speaker) Seek(time.Duration) error { return ErrAudioDisabled }
func (*Speaker) Duration() time.Duration { return 0 }
func (*Speaker) SetVolume(float64) error { return nil }
func (*Speaker) SetAudioQuality(settings.AudioQuality) error { return nil }
func (*Speaker) SetLoop(bool) error { return nil }
func (*Speaker) OnEnded(func()) {}
