// Package state provides the canonical player state and its store.
package state

import (
	"slices"
	"time"

	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

// Status represents the playback status.
type Status int

const (
	StatusIdle    Status = iota // Nothing playing; a current track may still be set
	StatusPlaying               // Current track is playing
	StatusPaused                // Current track is paused
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the player state. Mutations receive a
// private copy and return the replacement.
type Snapshot struct {
	Queue    []track.Track // Upcoming tracks; position 0 plays next
	Previous []track.Track // Play history, most recent first
	Current  *track.Track
	Status   Status
	Position time.Duration // Last sampled playback offset
	Settings settings.Settings
	Version  uint64 // Incremented by every applied mutation
}

// IsPlaying reports whether the current track is playing.
func (s Snapshot) IsPlaying() bool {
	return s.Current != nil && s.Status == StatusPlaying
}

// HasCurrent reports whether a track is bound to the player.
func (s Snapshot) HasCurrent() bool {
	return s.Current != nil
}

// CurrentID returns the id of the current track or "".
func (s Snapshot) CurrentID() string {
	if s.Current == nil {
		return ""
	}
	return s.Current.ID
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Queue = track.Clone(s.Queue)
	out.Previous = track.Clone(s.Previous)
	if s.Current != nil {
		c := *s.Current
		out.Current = &c
	}
	return out
}

// Change describes one applied mutation.
type Change struct {
	Reason string
	Prev   Snapshot
	Next   Snapshot
}

// QueueChanged reports whether the queue differs.
func (c Change) QueueChanged() bool {
	return !slices.Equal(c.Prev.Queue, c.Next.Queue)
}

// PreviousChanged reports whether the play history differs.
func (c Change) PreviousChanged() bool {
	return !slices.Equal(c.Prev.Previous, c.Next.Previous)
}

// CurrentChanged reports whether the current track differs.
func (c Change) CurrentChanged() bool {
	switch {
	case c.Prev.Current == nil && c.Next.Current == nil:
		return false
	case c.Prev.Current == nil || c.Next.Current == nil:
		return true
	default:
		return *c.Prev.Current != *c.Next.Current
	}
}

// StatusChanged reports whether the playback status differs.
func (c Change) StatusChanged() bool {
	return c.Prev.Status != c.Next.Status
}

// SettingsChanged reports whether any playback setting differs.
func (c Change) SettingsChanged() bool {
	return c.Prev.Settings != c.Next.Settings
}
