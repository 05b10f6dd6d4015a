package connect

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RemoteClient calls tunebox.v1.RemoteService.
type RemoteClient struct {
	play            *connect.Client[emptypb.Empty, emptypb.Empty]
	pause           *connect.Client[emptypb.Empty, emptypb.Empty]
	togglePlay      *connect.Client[emptypb.Empty, emptypb.Empty]
	next            *connect.Client[emptypb.Empty, emptypb.Empty]
	previous        *connect.Client[emptypb.Empty, emptypb.Empty]
	seek            *connect.Client[durationpb.Duration, emptypb.Empty]
	setVolume       *connect.Client[wrapperspb.DoubleValue, wrapperspb.DoubleValue]
	cycleRepeat     *connect.Client[emptypb.Empty, wrapperspb.StringValue]
	shuffle         *connect.Client[emptypb.Empty, wrapperspb.BoolValue]
	queue           *connect.Client[emptypb.Empty, structpb.ListValue]
	enqueue         *connect.Client[structpb.ListValue, wrapperspb.Int64Value]
	search          *connect.Client[wrapperspb.StringValue, structpb.ListValue]
	nowPlaying      *connect.Client[emptypb.Empty, structpb.Struct]
	watchNowPlaying *connect.Client[emptypb.Empty, structpb.Struct]
}

// NewRemoteClient creates a client for the server at baseURL. A non-empty
// token is sent with every request.
func NewRemoteClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *RemoteClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithInterceptors(tokenInterceptor{token: token})}, opts...)
	return &RemoteClient{
		play:            connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+RemoteServicePlayProcedure, opts...),
		pause:           connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+RemoteServicePauseProcedure, opts...),
		togglePlay:      connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+RemoteServiceTogglePlayProcedure, opts...),
		next:            connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+RemoteServiceNextProcedure, opts...),
		previous:        connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+RemoteServicePreviousProcedure, opts...),
		seek:            connect.NewClient[durationpb.Duration, emptypb.Empty](httpClient, baseURL+RemoteServiceSeekProcedure, opts...),
		setVolume:       connect.NewClient[wrapperspb.DoubleValue, wrapperspb.DoubleValue](httpClient, baseURL+RemoteServiceSetVolumeProcedure, opts...),
		cycleRepeat:     connect.NewClient[emptypb.Empty, wrapperspb.StringValue](httpClient, baseURL+RemoteServiceCycleRepeatProcedure, opts...),
		shuffle:         connect.NewClient[emptypb.Empty, wrapperspb.BoolValue](httpClient, baseURL+RemoteServiceShuffleProcedure, opts...),
		queue:           connect.NewClient[emptypb.Empty, structpb.ListValue](httpClient, baseURL+RemoteServiceQueueProcedure, opts...),
		enqueue:         connect.NewClient[structpb.ListValue, wrapperspb.Int64Value](httpClient, baseURL+RemoteServiceEnqueueProcedure, opts...),
		search:          connect.NewClient[wrapperspb.StringValue, structpb.ListValue](httpClient, baseURL+RemoteServiceSearchProcedure, opts...),
		nowPlaying:      connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+RemoteServiceNowPlayingProcedure, opts...),
		watchNowPlaying: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+RemoteServiceWatchNowPlayingProcedure, opts...),
	}
}

func empty() *connect.Request[emptypb.Empty] {
	return connect.NewRequest(&emptypb.Empty{})
}

func (c *RemoteClient) Play(ctx context.Context) error {
	_, err := c.play.CallUnary(ctx, empty())
	return err
}

func (c *RemoteClient) Pause(ctx context.Context) error {
	_, err := c.pause.CallUnary(ctx, empty())
	return err
}

func (c *RemoteClient) TogglePlay(ctx context.Context) error {
	_, err := c.togglePlay.CallUnary(ctx, empty())
	return err
}

func (c *RemoteClient) Next(ctx context.Context) error {
	_, err := c.next.CallUnary(ctx, empty())
	return err
}

func (c *RemoteClient) Previous(ctx context.Context) error {
	_, err := c.previous.CallUnary(ctx, empty())
	return err
}

func (c *RemoteClient) Seek(ctx context.Context, d time.Duration) error {
	_, err := c.seek.CallUnary(ctx, connect.NewRequest(durationpb.New(d)))
	return err
}

// SetVolume returns the volume in effect afterwards.
func (c *RemoteClient) SetVolume(ctx context.Context, v float64) (float64, error) {
	resp, err := c.setVolume.CallUnary(ctx, connect.NewRequest(wrapperspb.Double(v)))
	if err != nil {
		return 0, err
	}
	return resp.Msg.GetValue(), nil
}

// CycleRepeat returns the new repeat mode.
func (c *RemoteClient) CycleRepeat(ctx context.Context) (string, error) {
	resp, err := c.cycleRepeat.CallUnary(ctx, empty())
	if err != nil {
		return "", err
	}
	return resp.Msg.GetValue(), nil
}

// Shuffle returns the new shuffle flag.
func (c *RemoteClient) Shuffle(ctx context.Context) (bool, error) {
	resp, err := c.shuffle.CallUnary(ctx, empty())
	if err != nil {
		return false, err
	}
	return resp.Msg.GetValue(), nil
}

func (c *RemoteClient) Queue(ctx context.Context) ([]*structpb.Struct, error) {
	resp, err := c.queue.CallUnary(ctx, empty())
	if err != nil {
		return nil, err
	}
	return structs(resp.Msg), nil
}

// Enqueue adds tracks to the queue and returns how many were new.
func (c *RemoteClient) Enqueue(ctx context.Context, tracks ...*structpb.Struct) (int, error) {
	values := make([]*structpb.Value, 0, len(tracks))
	for _, t := range tracks {
		values = append(values, structpb.NewStructValue(t))
	}
	resp, err := c.enqueue.CallUnary(ctx, connect.NewRequest(&structpb.ListValue{Values: values}))
	if err != nil {
		return 0, err
	}
	return int(resp.Msg.GetValue()), nil
}

// Search returns matching tracks from the server's sources.
func (c *RemoteClient) Search(ctx context.Context, query string) ([]*structpb.Struct, error) {
	resp, err := c.search.CallUnary(ctx, connect.NewRequest(wrapperspb.String(query)))
	if err != nil {
		return nil, err
	}
	return structs(resp.Msg), nil
}

func structs(l *structpb.ListValue) []*structpb.Struct {
	out := make([]*structpb.Struct, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		if s := v.GetStructValue(); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (c *RemoteClient) NowPlaying(ctx context.Context) (*structpb.Struct, error) {
	resp, err := c.nowPlaying.CallUnary(ctx, empty())
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// WatchNowPlaying calls fn for every update until ctx is cancelled or the
// stream ends.
func (c *RemoteClient) WatchNowPlaying(ctx context.Context, fn func(*structpb.Struct)) error {
	stream, err := c.watchNowPlaying.CallServerStream(ctx, empty())
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		fn(stream.Msg())
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
