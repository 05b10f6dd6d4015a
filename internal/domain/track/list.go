package track

import "github.com/samber/lo"

// Dedupe sanitizes every element and keeps the first occurrence of each id,
// preserving input order. Dedupe(Dedupe(x)) equals Dedupe(x).
func Dedupe(tracks []Track) []Track {
	sanitized := lo.Map(tracks, func(t Track, _ int) Track {
		return Sanitize(t)
	})
	return lo.UniqBy(sanitized, func(t Track) string {
		return t.ID
	})
}

// IndexOf returns the position of the track with id, or -1.
func IndexOf(tracks []Track, id string) int {
	_, idx, ok := lo.FindIndexOf(tracks, func(t Track) bool {
		return t.ID == id
	})
	if !ok {
		return -1
	}
	return idx
}

// Contains reports whether a track with id is present.
func Contains(tracks []Track, id string) bool {
	return IndexOf(tracks, id) >= 0
}

// Without returns a copy of tracks with every element carrying id removed.
func Without(tracks []Track, id string) []Track {
	return lo.Reject(tracks, func(t Track, _ int) bool {
		return t.ID == id
	})
}

// Prepend puts t in front of tracks, dropping any other occurrence of it.
func Prepend(tracks []Track, t Track) []Track {
	t = Sanitize(t)
	out := make([]Track, 0, len(tracks)+1)
	out = append(out, t)
	out = append(out, Without(tracks, t.ID)...)
	return Dedupe(out)
}

// RemoveAt returns a copy of tracks without the element at index.
// An out-of-range index returns an unchanged copy and false.
func RemoveAt(tracks []Track, index int) ([]Track, bool) {
	if index < 0 || index >= len(tracks) {
		return Clone(tracks), false
	}
	out := make([]Track, 0, len(tracks)-1)
	out = append(out, tracks[:index]...)
	out = append(out, tracks[index+1:]...)
	return out, true
}

// Move returns a copy of tracks with the element at from placed at to.
func Move(tracks []Track, from, to int) ([]Track, bool) {
	if from < 0 || from >= len(tracks) || to < 0 || to >= len(tracks) {
		return Clone(tracks), false
	}
	item := tracks[from]
	out, _ := RemoveAt(tracks, from)
	out = append(out[:to], append([]Track{item}, out[to:]...)...)
	return out, true
}

// IDs returns the ids of tracks in order.
func IDs(tracks []Track) []string {
	return lo.Map(tracks, func(t Track, _ int) string {
		return t.ID
	})
}

// Clone returns a shallow copy of tracks. Track has no reference fields, so
// the copy is independent.
func Clone(tracks []Track) []Track {
	if tracks == nil {
		return nil
	}
	out := make([]Track, len(tracks))
	copy(out, tracks)
	return out
}
