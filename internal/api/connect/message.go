package connect

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/tunebox/internal/app/state"
	"github.com/osa030/tunebox/internal/domain/track"
)

// nowPlaying renders the playback state as a Struct:
//
//	{"status", "playing", "position_ms", "queue_length", "history_length",
//	 "repeat", "shuffle", "volume", "quality", "track"}
//
// "track" is null when nothing is current.
func nowPlaying(snap state.Snapshot, pos time.Duration) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"status":         structpb.NewStringValue(snap.Status.String()),
		"playing":        structpb.NewBoolValue(snap.IsPlaying()),
		"position_ms":    structpb.NewNumberValue(float64(pos.Milliseconds())),
		"queue_length":   structpb.NewNumberValue(float64(len(snap.Queue))),
		"history_length": structpb.NewNumberValue(float64(len(snap.Previous))),
		"repeat":         structpb.NewStringValue(snap.Settings.Repeat.String()),
		"shuffle":        structpb.NewBoolValue(snap.Settings.Shuffle),
		"volume":         structpb.NewNumberValue(snap.Settings.Volume),
		"quality":        structpb.NewStringValue(string(snap.Settings.Quality)),
		"track":          structpb.NewNullValue(),
	}
	if snap.Current != nil {
		fields["track"] = structpb.NewStructValue(trackStruct(*snap.Current))
	}
	return &structpb.Struct{Fields: fields}
}

// trackStruct renders t in the shape accepted by track.Decode, plus
// "duration_ms" and "cover" for display.
func trackStruct(t track.Track) *structpb.Struct {
	str := structpb.NewStringValue
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":    str(t.ID),
		"title": str(t.Title),
		"artist": structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"name": str(t.Artist.Name),
		}}),
		"album": structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"title":        str(t.Album.Title),
			"cover_small":  str(t.Album.CoverSmall),
			"cover_medium": str(t.Album.CoverMedium),
			"cover_big":    str(t.Album.CoverBig),
			"cover_xl":     str(t.Album.CoverXL),
		}}),
		"duration":    structpb.NewNumberValue(t.Duration.Seconds()),
		"duration_ms": structpb.NewNumberValue(float64(t.Duration.Milliseconds())),
		"cover":       str(t.Cover()),
		"preview":     str(t.Preview),
		"source":      str(t.Source),
	}}
}

// decodeTrack parses a track rendered by trackStruct or supplied by a client.
func decodeTrack(s *structpb.Struct) (track.Track, error) {
	return track.Decode(s.AsMap())
}
