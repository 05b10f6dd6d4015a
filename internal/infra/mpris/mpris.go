// Package mpris publishes the player on the D-Bus session bus as an MPRIS2
// media player, so desktop media keys and widgets can control it.
package mpris

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunebox/internal/app/mediacontrol"
	"github.com/osa030/tunebox/internal/domain/track"
)

// D-Bus names.
const (
	busPrefix       = "org.mpris.MediaPlayer2."
	objectPath      = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	rootInterface   = "org.mpris.MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
	trackPathPrefix = "/org/mpris/MediaPlayer2/track/"
	noTrack         = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")
)

// Playback status values.
const (
	statusPlaying = "Playing"
	statusPaused  = "Paused"
	statusStopped = "Stopped"
)

// ErrNameTaken is returned when another process owns the bus name.
var ErrNameTaken = errors.New("mpris bus name already taken")

// Server is an MPRIS media session. It implements mediacontrol.Surface.
type Server struct {
	conn   *dbus.Conn
	props  *prop.Properties
	name   string
	player *player
}

var _ mediacontrol.Surface = (*Server)(nil)

// New connects to the session bus and claims org.mpris.MediaPlayer2.<name>.
func New(name, identity string) (*Server, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to session bus")
	}

	s, err := newServer(conn, name, identity)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func newServer(conn *dbus.Conn, name, identity string) (*Server, error) {
	p := &player{}
	if err := conn.Export(root{}, objectPath, rootInterface); err != nil {
		return nil, errors.Wrap(err, "failed to export root object")
	}
	if err := conn.Export(p, objectPath, playerInterface); err != nil {
		return nil, errors.Wrap(err, "failed to export player object")
	}

	props, err := prop.Export(conn, objectPath, propertySpec(identity, p))
	if err != nil {
		return nil, errors.Wrap(err, "failed to export properties")
	}
	p.props = props
	p.conn = conn

	node := &introspect.Node{
		Name: string(objectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{Name: rootInterface, Methods: introspect.Methods(root{}), Properties: props.Introspection(rootInterface)},
			{Name: playerInterface, Methods: introspect.Methods(p), Properties: props.Introspection(playerInterface)},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), objectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, errors.Wrap(err, "failed to export introspection")
	}

	busName := busPrefix + name
	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to request bus name %s", busName)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, errors.Wrapf(ErrNameTaken, "name=%s", busName)
	}

	zlog.Info().Msgf("mpris: session published: name=%s", busName)
	return &Server{conn: conn, props: props, name: busName, player: p}, nil
}

// Name identifies the surface in logs.
func (s *Server) Name() string { return "mpris" }

// Update publishes the track metadata and playback status.
func (s *Server) Update(st mediacontrol.Status) error {
	s.player.setPosition(st.Position)

	var pos time.Duration
	if st.Position != nil {
		pos = st.Position()
	}
	status := statusPaused
	if st.Playing {
		status = statusPlaying
	}

	if err := s.props.Set(playerInterface, "Metadata", dbus.MakeVariant(metadata(st.Track))); err != nil {
		return errors.Wrap(err, "failed to set metadata")
	}
	if err := s.props.Set(playerInterface, "PlaybackStatus", dbus.MakeVariant(status)); err != nil {
		return errors.Wrap(err, "failed to set playback status")
	}
	s.props.SetMust(playerInterface, "Position", micros(pos))
	return nil
}

// SetHandlers routes MPRIS method calls to h.
func (s *Server) SetHandlers(h mediacontrol.Handlers) error {
	s.player.setHandlers(h)
	return nil
}

// Clear resets the session to the stopped state without metadata.
func (s *Server) Clear() error {
	s.player.setPosition(nil)
	if err := s.props.Set(playerInterface, "Metadata", dbus.MakeVariant(map[string]dbus.Variant{"mpris:trackid": dbus.MakeVariant(noTrack)})); err != nil {
		return errors.Wrap(err, "failed to clear metadata")
	}
	if err := s.props.Set(playerInterface, "PlaybackStatus", dbus.MakeVariant(statusStopped)); err != nil {
		return errors.Wrap(err, "failed to clear playback status")
	}
	s.props.SetMust(playerInterface, "Position", int64(0))
	return nil
}

// Close releases the bus name and the connection.
func (s *Server) Close() error {
	if _, err := s.conn.ReleaseName(s.name); err != nil {
		zlog.Warn().Msgf("mpris: failed to release name: %v", err)
	}
	return s.conn.Close()
}

func propertySpec(identity string, p *player) map[string]map[string]*prop.Prop {
	if identity == "" {
		identity = "tunebox"
	}
	ro := func(v any) *prop.Prop {
		return &prop.Prop{Value: v, Writable: false, Emit: prop.EmitTrue}
	}
	return map[string]map[string]*prop.Prop{
		rootInterface: {
			"CanQuit":             ro(false),
			"CanRaise":            ro(false),
			"HasTrackList":        ro(false),
			"Identity":            ro(identity),
			"SupportedUriSchemes": ro([]string{}),
			"SupportedMimeTypes":  ro([]string{"audio/mpeg"}),
		},
		playerInterface: {
			"PlaybackStatus": ro(statusStopped),
			"LoopStatus":     ro("None"),
			"Rate":           ro(1.0),
			"Shuffle":        ro(false),
			"Metadata":       ro(map[string]dbus.Variant{"mpris:trackid": dbus.MakeVariant(noTrack)}),
			"Volume":         ro(1.0),
			"Position":       {Value: int64(0), Writable: false, Emit: prop.EmitFalse},
			"MinimumRate":    ro(1.0),
			"MaximumRate":    ro(1.0),
			"CanGoNext":      ro(true),
			"CanGoPrevious":  ro(true),
			"CanPlay":        ro(true),
			"CanPause":       ro(true),
			"CanSeek":        ro(true),
			"CanControl":     ro(true),
		},
	}
}

// metadata builds the xesam/mpris metadata map for t.
func metadata(t track.Track) map[string]dbus.Variant {
	m := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackPath(t.ID)),
		"xesam:title":   dbus.MakeVariant(t.Title),
		"xesam:artist":  dbus.MakeVariant(splitArtists(t.Artist.Name)),
		"xesam:album":   dbus.MakeVariant(t.Album.Title),
	}
	if t.Duration > 0 {
		m["mpris:length"] = dbus.MakeVariant(micros(t.Duration))
	}
	if cover := t.Cover(); cover != "" && cover != track.PlaceholderCover {
		m["mpris:artUrl"] = dbus.MakeVariant(cover)
	}
	if t.Preview != "" {
		m["xesam:url"] = dbus.MakeVariant(t.Preview)
	}
	return m
}

// trackPath encodes id as an object path element. D-Bus paths only allow
// [A-Za-z0-9_].
func trackPath(id string) dbus.ObjectPath {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "_%x", r)
		}
	}
	if b.Len() == 0 {
		return noTrack
	}
	return dbus.ObjectPath(trackPathPrefix + b.String())
}

func splitArtists(name string) []string {
	parts := strings.Split(name, ", ")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func micros(d time.Duration) int64 {
	return d.Microseconds()
}

// root implements org.mpris.MediaPlayer2.
type root struct{}

func (root) Raise() *dbus.Error { return nil }
func (root) Quit() *dbus.Error  { return nil }

// player implements org.mpris.MediaPlayer2.Player.
type player struct {
	mu       sync.Mutex
	handlers mediacontrol.Handlers
	position func() time.Duration

	conn  *dbus.Conn
	props *prop.Properties
}

func (p *player) setHandlers(h mediacontrol.Handlers) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = h
}

func (p *player) setPosition(fn func() time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = fn
}

func (p *player) current() (mediacontrol.Handlers, func() time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlers, p.position
}

func call(fn func()) *dbus.Error {
	if fn != nil {
		fn()
	}
	return nil
}

func (p *player) Next() *dbus.Error {
	h, _ := p.current()
	return call(h.Next)
}

func (p *player) Previous() *dbus.Error {
	h, _ := p.current()
	return call(h.Previous)
}

func (p *player) Pause() *dbus.Error {
	h, _ := p.current()
	return call(h.Pause)
}

func (p *player) Play() *dbus.Error {
	h, _ := p.current()
	return call(h.Play)
}

func (p *player) PlayPause() *dbus.Error {
	h, _ := p.current()
	return call(h.Toggle)
}

func (p *player) Stop() *dbus.Error {
	h, _ := p.current()
	return call(h.Pause)
}

// Seek moves by offset microseconds relative to the current position.
func (p *player) Seek(offset int64) *dbus.Error {
	_, pos := p.current()
	var at time.Duration
	if pos != nil {
		at = pos()
	}
	target := at + time.Duration(offset)*time.Microsecond
	if target < 0 {
		target = 0
	}
	return p.seekTo(target)
}

// SetPosition moves to an absolute position in microseconds.
func (p *player) SetPosition(_ dbus.ObjectPath, position int64) *dbus.Error {
	if position < 0 {
		return nil
	}
	return p.seekTo(time.Duration(position) * time.Microsecond)
}

func (p *player) OpenUri(string) *dbus.Error {
	return dbus.MakeFailedError(errors.New("opening uris is not supported"))
}

func (p *player) seekTo(d time.Duration) *dbus.Error {
	h, _ := p.current()
	if h.Seek == nil {
		return nil
	}
	h.Seek(d)
	if p.props != nil {
		p.props.SetMust(playerInterface, "Position", micros(d))
	}
	if p.conn != nil {
		if err := p.conn.Emit(objectPath, playerInterface+".Seeked", micros(d)); err != nil {
			zlog.Debug().Msgf("mpris: failed to emit seeked: %v", err)
		}
	}
	return nil
}
