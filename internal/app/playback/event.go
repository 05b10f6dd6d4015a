package playback

import (
	"github.com/osa030/tunebox/internal/app/state"
	"github.com/osa030/tunebox/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted EventType = iota // A track became current
	EventTrackEnded                    // Current track finished playing
	EventTrackSkipped                  // Current track was skipped
	EventStateChanged                  // Playback state changed (pause/resume/stop)
	EventQueueEmpty                    // Queue ran out
	EventWarning                       // User-visible warning
	EventNotice                        // User-visible success notice
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackSkipped:
		return "track_skipped"
	case EventStateChanged:
		return "state_changed"
	case EventQueueEmpty:
		return "queue_empty"
	case EventWarning:
		return "warning"
	case EventNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type    EventType
	Track   *track.Track // Track concerned (nil for some events)
	Status  state.Status // Playback status after the event
	Message string       // Set for EventWarning and EventNotice
}
