// Package gesture maps single and double taps on the transport buttons to
// playback actions.
package gesture

import (
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/app/timer"
)

// Controls is the subset of the playback engine driven by the buttons.
type Controls interface {
	Restart()
	PreviousTrack()
	SeekToEnd()
	SkipTrack()
}

// Buttons turns raw taps into actions. A single tap on previous restarts the
// current track and a double tap goes back one track. A single tap on next
// jumps to the end of the track so the repeat policy applies; a double tap
// skips outright.
type Buttons struct {
	controls Controls
	prev     *timer.TapDetector
	next     *timer.TapDetector
}

// New creates buttons over c. A non-positive window uses
// timer.DefaultTapWindow.
func New(c Controls, window time.Duration) *Buttons {
	return &Buttons{
		controls: c,
		prev:     timer.NewTapDetector(window),
		next:     timer.NewTapDetector(window),
	}
}

// TapPrevious registers a tap on the previous button.
func (b *Buttons) TapPrevious() {
	b.prev.Tap(
		func() {
			zlog.Debug().Msg("gesture: previous single tap")
			b.controls.Restart()
		},
		func() {
			zlog.Debug().Msg("gesture: previous double tap")
			b.controls.PreviousTrack()
		},
	)
}

// TapNext registers a tap on the next button.
func (b *Buttons) TapNext() {
	b.next.Tap(
		func() {
			zlog.Debug().Msg("gesture: next single tap")
			b.controls.SeekToEnd()
		},
		func() {
			zlog.Debug().Msg("gesture: next double tap")
			b.controls.SkipTrack()
		},
	)
}

// Close drops any tap still waiting for its window to close.
func (b *Buttons) Close() {
	b.prev.Reset()
	b.next.Reset()
}
