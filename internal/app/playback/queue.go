package playback

import (
	"fmt"
	"math/rand/v2"

	"github.com/osa030/tunebox/internal/app/state"
	"github.com/osa030/tunebox/internal/domain/track"
)

// PlayTrack makes t the current track. The previous current track moves to
// the front of the history. With autoPlay the player starts from offset 0.
func (e *Engine) PlayTrack(t track.Track, autoPlay bool) {
	if e.gateway() == nil {
		e.warn("Cannot play track: player unavailable")
		return
	}
	t = track.Sanitize(t)

	var f effect
	e.store.Apply("play_track", func(s state.Snapshot) state.Snapshot {
		if s.Current != nil && s.Current.ID != t.ID {
			s.Previous = e.pushHistory(s.Previous, *s.Current)
		}
		s.Queue = track.Without(track.Dedupe(s.Queue), t.ID)
		s.Current = &t
		s.Position = 0
		if autoPlay {
			s.Status = state.StatusPlaying
		} else {
			s.Status = state.StatusPaused
		}

		f.load = &t
		f.autoPlay = autoPlay
		f.emit(EventTrackStarted, &t, s.Status)
		return s
	})
	e.run(f)
}

// SkipTrack advances to the next queued track. When nothing is queued the
// current track is retired and playback stops.
func (e *Engine) SkipTrack() {
	if e.gateway() == nil {
		e.warn("Cannot skip track: player unavailable")
		return
	}

	var f effect
	e.store.Apply("skip_track", func(s state.Snapshot) state.Snapshot {
		return e.skipLocked(s, &f)
	})
	e.run(f)
}

// skipLocked is the skip transition shared by SkipTrack and the track-ended
// policies.
func (e *Engine) skipLocked(s state.Snapshot, f *effect) state.Snapshot {
	if s.Current == nil {
		f.warning = "Cannot skip track: nothing is playing"
		return s
	}

	skipped := *s.Current
	f.emit(EventTrackSkipped, &skipped, s.Status)
	s.Previous = e.pushHistory(s.Previous, skipped)
	queue := track.Without(track.Dedupe(s.Queue), skipped.ID)

	if len(queue) == 0 {
		s.Queue = queue
		s.Current = nil
		s.Status = state.StatusIdle
		s.Position = 0
		f.stop = true
		f.notice = "Reached the end of the queue"
		f.emit(EventQueueEmpty, nil, s.Status)
		return s
	}

	next := queue[0]
	s.Queue = queue[1:]
	s.Current = &next
	s.Status = state.StatusPlaying
	s.Position = 0
	f.load = &next
	f.autoPlay = true
	f.emit(EventTrackStarted, &next, s.Status)
	return s
}

// PreviousTrack returns to the most recent history entry. The track that was
// current goes back to the front of the queue.
func (e *Engine) PreviousTrack() {
	if e.gateway() == nil {
		e.warn("Cannot go back: player unavailable")
		return
	}

	var f effect
	e.store.Apply("previous_track", func(s state.Snapshot) state.Snapshot {
		if len(s.Previous) == 0 {
			f.warning = "Cannot go back: no previous track available"
			return s
		}

		prev := track.Sanitize(s.Previous[0])
		s.Previous = track.Clone(s.Previous[1:])
		queue := track.Without(track.Dedupe(s.Queue), prev.ID)
		if s.Current != nil && s.Current.ID != prev.ID {
			queue = track.Prepend(queue, *s.Current)
		}
		s.Queue = queue
		s.Current = &prev
		s.Status = state.StatusPlaying
		s.Position = 0

		f.load = &prev
		f.autoPlay = true
		f.emit(EventTrackStarted, &prev, s.Status)
		return s
	})
	e.run(f)
}

// AddToQueue appends tracks after the existing queue. Tracks already queued
// or currently playing are not added again.
func (e *Engine) AddToQueue(tracks ...track.Track) int {
	if len(tracks) == 0 {
		return 0
	}

	var f effect
	added := 0
	e.store.Apply("add_to_queue", func(s state.Snapshot) state.Snapshot {
		before := len(s.Queue)
		queue := track.Dedupe(append(track.Clone(s.Queue), tracks...))
		if s.Current != nil {
			queue = track.Without(queue, s.Current.ID)
		}
		s.Queue = queue
		added = len(queue) - before
		if added < 0 {
			added = 0
		}
		return s
	})

	switch added {
	case 0:
		f.notice = "Already in queue"
	case 1:
		f.notice = "Added 1 track to queue"
	default:
		f.notice = fmt.Sprintf("Added %d tracks to queue", added)
	}
	e.run(f)
	return added
}

// RemoveFromQueue drops the queue element at index.
func (e *Engine) RemoveFromQueue(index int) error {
	var f effect
	var err error
	e.store.Apply("remove_from_queue", func(s state.Snapshot) state.Snapshot {
		queue, ok := track.RemoveAt(track.Dedupe(s.Queue), index)
		if !ok {
			err = ErrIndexOutOfRange
			f.warning = fmt.Sprintf("Cannot remove track: no queue entry at position %d", index)
			return s
		}
		s.Queue = track.Dedupe(queue)
		return s
	})
	e.run(f)
	return err
}

// MoveQueueItem reorders the queue by moving the element at from to to.
func (e *Engine) MoveQueueItem(from, to int) error {
	var err error
	e.store.Apply("move_queue_item", func(s state.Snapshot) state.Snapshot {
		queue, ok := track.Move(track.Dedupe(s.Queue), from, to)
		if !ok {
			err = ErrIndexOutOfRange
			return s
		}
		s.Queue = queue
		return s
	})
	if err != nil {
		e.warn(fmt.Sprintf("Cannot move track: position %d or %d is out of range", from, to))
	}
	return err
}

// ClearQueue empties the queue; the current track keeps playing.
func (e *Engine) ClearQueue() {
	e.store.Apply("clear_queue", func(s state.Snapshot) state.Snapshot {
		s.Queue = []track.Track{}
		return s
	})
}

// OnQueueItemClick jumps to a clicked track. A negative index marks a click in
// the history list, encoded as -(position+1); that entry is removed and the
// track that was current returns to the front of the queue. A non-negative
// index is a queue position; that entry is removed and the track that was
// current moves to the history.
func (e *Engine) OnQueueItemClick(t track.Track, index int) {
	if e.gateway() == nil {
		e.warn("Cannot play track: player unavailable")
		return
	}
	t = track.Sanitize(t)

	var f effect
	e.store.Apply("queue_item_click", func(s state.Snapshot) state.Snapshot {
		queue := track.Dedupe(s.Queue)
		previous := track.Clone(s.Previous)
		current := s.Current

		if index < 0 {
			pos := -index - 1
			if pos < len(previous) && previous[pos].ID == t.ID {
				previous, _ = track.RemoveAt(previous, pos)
			} else {
				previous = track.Without(previous, t.ID)
			}
			if current != nil && current.ID != t.ID {
				queue = track.Prepend(queue, *current)
			}
		} else {
			if index < len(queue) && queue[index].ID == t.ID {
				queue, _ = track.RemoveAt(queue, index)
			}
			if current != nil && current.ID != t.ID {
				previous = e.pushHistory(previous, *current)
			}
		}

		s.Queue = track.Without(queue, t.ID)
		s.Previous = e.capHistory(previous)
		s.Current = &t
		s.Status = state.StatusPlaying
		s.Position = 0

		f.load = &t
		f.autoPlay = true
		f.emit(EventTrackStarted, &t, s.Status)
		return s
	})
	e.run(f)
}

// ShuffleQueue randomly permutes the queue and toggles the shuffle flag.
// History and the current track are untouched.
func (e *Engine) ShuffleQueue() bool {
	var on bool
	e.store.Apply("shuffle_queue", func(s state.Snapshot) state.Snapshot {
		queue := track.Dedupe(s.Queue)
		rand.Shuffle(len(queue), func(i, j int) {
			queue[i], queue[j] = queue[j], queue[i]
		})
		s.Queue = track.Dedupe(queue)
		s.Settings.Shuffle = !s.Settings.Shuffle
		on = s.Settings.Shuffle
		return s
	})
	return on
}

// Seed replaces the queue and history wholesale, as done when restoring
// persisted state or merging fetched recommendations. The current track is
// kept and removed from the new queue.
func (e *Engine) Seed(queue, previous []track.Track) {
	e.store.Apply("seed", func(s state.Snapshot) state.Snapshot {
		q := track.Dedupe(queue)
		if s.Current != nil {
			q = track.Without(q, s.Current.ID)
		}
		s.Queue = q
		if previous != nil {
			s.Previous = e.capHistory(track.Dedupe(previous))
		}
		return s
	})
}
