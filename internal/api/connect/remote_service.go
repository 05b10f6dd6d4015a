package connect

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/tunebox/internal/app/mediacontrol"
	"github.com/osa030/tunebox/internal/app/notification"
	"github.com/osa030/tunebox/internal/app/state"
	"github.com/osa030/tunebox/internal/domain/settings"
	"github.com/osa030/tunebox/internal/domain/track"
)

// RemoteServiceName is the fully-qualified name of the remote control service.
const RemoteServiceName = "tunebox.v1.RemoteService"

// Procedure paths.
const (
	RemoteServicePlayProcedure            = "/" + RemoteServiceName + "/Play"
	RemoteServicePauseProcedure           = "/" + RemoteServiceName + "/Pause"
	RemoteServiceTogglePlayProcedure      = "/" + RemoteServiceName + "/TogglePlay"
	RemoteServiceNextProcedure            = "/" + RemoteServiceName + "/Next"
	RemoteServicePreviousProcedure        = "/" + RemoteServiceName + "/Previous"
	RemoteServiceSeekProcedure            = "/" + RemoteServiceName + "/Seek"
	RemoteServiceSetVolumeProcedure       = "/" + RemoteServiceName + "/SetVolume"
	RemoteServiceCycleRepeatProcedure     = "/" + RemoteServiceName + "/CycleRepeat"
	RemoteServiceShuffleProcedure         = "/" + RemoteServiceName + "/Shuffle"
	RemoteServiceQueueProcedure           = "/" + RemoteServiceName + "/Queue"
	RemoteServiceEnqueueProcedure         = "/" + RemoteServiceName + "/Enqueue"
	RemoteServiceSearchProcedure          = "/" + RemoteServiceName + "/Search"
	RemoteServiceNowPlayingProcedure      = "/" + RemoteServiceName + "/NowPlaying"
	RemoteServiceWatchNowPlayingProcedure = "/" + RemoteServiceName + "/WatchNowPlaying"
)

// ErrNothingPlaying is returned for transport commands without a current track.
var ErrNothingPlaying = errors.New("nothing is playing")

// Engine is the engine surface the remote service reads and adjusts.
type Engine interface {
	Snapshot() state.Snapshot
	Position() time.Duration
	SetVolume(v float64)
	CycleRepeatMode() settings.RepeatMode
	ShuffleQueue() bool
	AddToQueue(tracks ...track.Track) int
}

// Finder searches the recommendation sources.
type Finder interface {
	Fetch(ctx context.Context, queries []string) []track.Track
}

// RemoteService implements tunebox.v1.RemoteService. It is also a media
// surface: transport commands run the handlers installed by the media bridge,
// and every surface update is broadcast to WatchNowPlaying subscribers.
type RemoteService struct {
	engine   Engine
	finder   Finder
	notifier *notification.Manager

	mu       sync.Mutex
	handlers mediacontrol.Handlers

	updates chan *structpb.Struct
	done    chan struct{}
	closed  sync.Once
}

var _ mediacontrol.Surface = (*RemoteService)(nil)

// NewRemoteService creates the service and starts its broadcast loop. finder
// may be nil, in which case Search fails with CodeUnimplemented.
func NewRemoteService(engine Engine, finder Finder, notifier *notification.Manager) *RemoteService {
	if notifier == nil {
		notifier = notification.NewManager()
	}
	s := &RemoteService{
		engine:   engine,
		finder:   finder,
		notifier: notifier,
		updates:  make(chan *structpb.Struct, 16),
		done:     make(chan struct{}),
	}
	go s.broadcastLoop()
	return s
}

// Handler returns the HTTP path and handler serving the service.
func (s *RemoteService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(RemoteServicePlayProcedure, connect.NewUnaryHandler(RemoteServicePlayProcedure, s.Play, opts...))
	mux.Handle(RemoteServicePauseProcedure, connect.NewUnaryHandler(RemoteServicePauseProcedure, s.Pause, opts...))
	mux.Handle(RemoteServiceTogglePlayProcedure, connect.NewUnaryHandler(RemoteServiceTogglePlayProcedure, s.TogglePlay, opts...))
	mux.Handle(RemoteServiceNextProcedure, connect.NewUnaryHandler(RemoteServiceNextProcedure, s.Next, opts...))
	mux.Handle(RemoteServicePreviousProcedure, connect.NewUnaryHandler(RemoteServicePreviousProcedure, s.Previous, opts...))
	mux.Handle(RemoteServiceSeekProcedure, connect.NewUnaryHandler(RemoteServiceSeekProcedure, s.Seek, opts...))
	mux.Handle(RemoteServiceSetVolumeProcedure, connect.NewUnaryHandler(RemoteServiceSetVolumeProcedure, s.SetVolume, opts...))
	mux.Handle(RemoteServiceCycleRepeatProcedure, connect.NewUnaryHandler(RemoteServiceCycleRepeatProcedure, s.CycleRepeat, opts...))
	mux.Handle(RemoteServiceShuffleProcedure, connect.NewUnaryHandler(RemoteServiceShuffleProcedure, s.Shuffle, opts...))
	mux.Handle(RemoteServiceQueueProcedure, connect.NewUnaryHandler(RemoteServiceQueueProcedure, s.Queue, opts...))
	mux.Handle(RemoteServiceEnqueueProcedure, connect.NewUnaryHandler(RemoteServiceEnqueueProcedure, s.Enqueue, opts...))
	mux.Handle(RemoteServiceSearchProcedure, connect.NewUnaryHandler(RemoteServiceSearchProcedure, s.Search, opts...))
	mux.Handle(RemoteServiceNowPlayingProcedure, connect.NewUnaryHandler(RemoteServiceNowPlayingProcedure, s.NowPlaying, opts...))
	mux.Handle(RemoteServiceWatchNowPlayingProcedure, connect.NewServerStreamHandler(RemoteServiceWatchNowPlayingProcedure, s.WatchNowPlaying, opts...))
	return "/" + RemoteServiceName + "/", mux
}

// Name identifies the surface in logs.
func (s *RemoteService) Name() string { return "remote" }

// Update queues a now-playing broadcast.
func (s *RemoteService) Update(st mediacontrol.Status) error {
	var pos time.Duration
	if st.Position != nil {
		pos = st.Position()
	}
	snap := s.engine.Snapshot()
	snap.Current = &st.Track
	if st.Playing {
		snap.Status = state.StatusPlaying
	} else if snap.Status == state.StatusPlaying {
		snap.Status = state.StatusPaused
	}
	s.enqueue(nowPlaying(snap, pos))
	return nil
}

// SetHandlers installs the transport actions.
func (s *RemoteService) SetHandlers(h mediacontrol.Handlers) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = h
	return nil
}

// Clear broadcasts that nothing is playing.
func (s *RemoteService) Clear() error {
	snap := s.engine.Snapshot()
	snap.Current = nil
	snap.Status = state.StatusIdle
	s.enqueue(nowPlaying(snap, 0))
	return nil
}

// Close stops the broadcast loop and drops all subscribers.
func (s *RemoteService) Close() {
	s.closed.Do(func() {
		close(s.done)
		s.notifier.Close()
	})
}

func (s *RemoteService) enqueue(msg *structpb.Struct) {
	select {
	case <-s.done:
	case s.updates <- msg:
	default:
		zlog.Debug().Msg("remote: update channel full, dropping now-playing update")
	}
}

func (s *RemoteService) broadcastLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.updates:
			s.notifier.Broadcast(msg)
		}
	}
}

// transport runs one of the bridge handlers.
func (s *RemoteService) transport(pick func(mediacontrol.Handlers) func()) (*connect.Response[emptypb.Empty], error) {
	s.mu.Lock()
	fn := pick(s.handlers)
	s.mu.Unlock()
	if fn == nil || !s.engine.Snapshot().HasCurrent() {
		return nil, connect.NewError(connect.CodeFailedPrecondition, ErrNothingPlaying)
	}
	fn()
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Play resumes playback.
func (s *RemoteService) Play(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return s.transport(func(h mediacontrol.Handlers) func() { return h.Play })
}

// Pause pauses playback.
func (s *RemoteService) Pause(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return s.transport(func(h mediacontrol.Handlers) func() { return h.Pause })
}

// TogglePlay toggles between playing and paused.
func (s *RemoteService) TogglePlay(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return s.transport(func(h mediacontrol.Handlers) func() { return h.Toggle })
}

// Next skips to the next track.
func (s *RemoteService) Next(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return s.transport(func(h mediacontrol.Handlers) func() { return h.Next })
}

// Previous returns to the previous track.
func (s *RemoteService) Previous(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
	return s.transport(func(h mediacontrol.Handlers) func() { return h.Previous })
}

// Seek moves to an absolute position in the current track.
func (s *RemoteService) Seek(_ context.Context, req *connect.Request[durationpb.Duration]) (*connect.Response[emptypb.Empty], error) {
	if err := req.Msg.CheckValid(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	d := req.Msg.AsDuration()
	if d < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("position must not be negative"))
	}
	return s.transport(func(h mediacontrol.Handlers) func() {
		if h.Seek == nil {
			return nil
		}
		return func() { h.Seek(d) }
	})
}

// SetVolume sets the output volume in [0, 1].
func (s *RemoteService) SetVolume(_ context.Context, req *connect.Request[wrapperspb.DoubleValue]) (*connect.Response[wrapperspb.DoubleValue], error) {
	v := req.Msg.GetValue()
	if v < 0 || v > 1 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.Newf("volume out of range: %v", v))
	}
	s.engine.SetVolume(v)
	return connect.NewResponse(wrapperspb.Double(s.engine.Snapshot().Settings.Volume)), nil
}

// CycleRepeat advances the repeat mode and returns the new one.
func (s *RemoteService) CycleRepeat(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[wrapperspb.StringValue], error) {
	return connect.NewResponse(wrapperspb.String(s.engine.CycleRepeatMode().String())), nil
}

// Shuffle permutes the queue and returns the new shuffle flag.
func (s *RemoteService) Shuffle(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[wrapperspb.BoolValue], error) {
	return connect.NewResponse(wrapperspb.Bool(s.engine.ShuffleQueue())), nil
}

// Queue lists the upcoming tracks.
func (s *RemoteService) Queue(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.ListValue], error) {
	snap := s.engine.Snapshot()
	values := make([]*structpb.Value, 0, len(snap.Queue))
	for _, t := range snap.Queue {
		values = append(values, structpb.NewStructValue(trackStruct(t)))
	}
	return connect.NewResponse(&structpb.ListValue{Values: values}), nil
}

// Enqueue appends the tracks of a list to the queue and returns how many
// were added. Each element uses the track object shape.
func (s *RemoteService) Enqueue(_ context.Context, req *connect.Request[structpb.ListValue]) (*connect.Response[wrapperspb.Int64Value], error) {
	tracks := make([]track.Track, 0, len(req.Msg.GetValues()))
	for i, v := range req.Msg.GetValues() {
		obj := v.GetStructValue()
		if obj == nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.Newf("element %d is not a track object", i))
		}
		t, err := decodeTrack(obj)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.Wrapf(err, "element %d", i))
		}
		tracks = append(tracks, t)
	}
	added := s.engine.AddToQueue(tracks...)
	return connect.NewResponse(wrapperspb.Int64(int64(added))), nil
}

// Search queries every recommendation source.
func (s *RemoteService) Search(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.ListValue], error) {
	if s.finder == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("no recommendation sources configured"))
	}
	q := strings.TrimSpace(req.Msg.GetValue())
	if q == "" {
		return connect.NewResponse(&structpb.ListValue{}), nil
	}
	found := s.finder.Fetch(ctx, []string{q})
	values := make([]*structpb.Value, 0, len(found))
	for _, t := range found {
		values = append(values, structpb.NewStructValue(trackStruct(t)))
	}
	return connect.NewResponse(&structpb.ListValue{Values: values}), nil
}

// NowPlaying returns the current track and playback state.
func (s *RemoteService) NowPlaying(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return connect.NewResponse(nowPlaying(s.engine.Snapshot(), s.engine.Position())), nil
}

// WatchNowPlaying streams the current state followed by every change until
// the client disconnects.
func (s *RemoteService) WatchNowPlaying(ctx context.Context, _ *connect.Request[emptypb.Empty], stream *connect.ServerStream[structpb.Struct]) error {
	ls := &lockedStream{stream: stream}
	id := s.notifier.Subscribe(ls)
	defer s.notifier.Unsubscribe(id)
	zlog.Info().Msgf("remote: watcher connected: subscription=%s", id)

	initial := nowPlaying(s.engine.Snapshot(), s.engine.Position())
	initial.Fields[notification.SequenceField] = structpb.NewNumberValue(float64(s.notifier.NextSequenceNo()))
	if err := ls.Send(initial); err != nil {
		return connect.NewError(connect.CodeUnavailable, err)
	}

	select {
	case <-ctx.Done():
	case <-s.done:
	}
	zlog.Info().Msgf("remote: watcher disconnected: subscription=%s", id)
	return nil
}

// lockedStream serializes sends from the broadcaster and the handler.
type lockedStream struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
}

func (l *lockedStream) Send(msg *structpb.Struct) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stream.Send(msg)
}
