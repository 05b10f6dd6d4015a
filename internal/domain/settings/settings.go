// Package settings provides the playback settings model.
package settings

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"
)

// RepeatMode governs what happens when a track ends.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota // Stop at the end of the queue
	RepeatAll                   // Continue through the queue, looping back when exhausted
	RepeatOne                   // Replay the current track
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// Next returns the following mode of the off -> all -> one -> off cycle.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// ParseRepeatMode parses the output of RepeatMode.String.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return RepeatOff, nil
	case "all":
		return RepeatAll, nil
	case "one":
		return RepeatOne, nil
	default:
		return RepeatOff, errors.Newf("unknown repeat mode: %q", s)
	}
}

// AudioQuality selects the stream variant requested from the playback primitive.
type AudioQuality string

const (
	QualityMax      AudioQuality = "MAX"
	QualityHigh     AudioQuality = "HIGH"
	QualityNormal   AudioQuality = "NORMAL"
	QualityDataSave AudioQuality = "DATA_SAVER"
)

// ParseAudioQuality parses a quality name case-insensitively.
func ParseAudioQuality(s string) (AudioQuality, error) {
	q := AudioQuality(strings.ToUpper(strings.TrimSpace(s)))
	switch q {
	case QualityMax, QualityHigh, QualityNormal, QualityDataSave:
		return q, nil
	default:
		return QualityHigh, errors.Newf("unknown audio quality: %q", s)
	}
}

// Bitrate returns the nominal bitrate in kbit/s for q.
func (q AudioQuality) Bitrate() int {
	switch q {
	case QualityMax:
		return 320
	case QualityNormal:
		return 128
	case QualityDataSave:
		return 64
	default:
		return 256
	}
}

// Settings holds the persisted playback preferences.
type Settings struct {
	Volume  float64      `json:"volume"`
	Shuffle bool         `json:"shuffle"`
	Quality AudioQuality `json:"audio_quality"`
	Repeat  RepeatMode   `json:"repeat_mode"`
}

// Default returns the settings used before anything is restored.
func Default() Settings {
	return Settings{
		Volume:  1.0,
		Quality: QualityHigh,
		Repeat:  RepeatOff,
	}
}

// ClampVolume limits v to [0, 1]. NaN maps to the default volume.
func ClampVolume(v float64) float64 {
	if math.IsNaN(v) {
		return Default().Volume
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
