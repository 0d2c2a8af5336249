package broadcast

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp"
	"github.com/bluenviron/rtmpcast/internal/stream"
)

// Role is the role of a connection.
type Role int

// roles.
const (
	RoleUndecided Role = iota
	RolePublisher
	RoleWatcher
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleWatcher:
		return "watcher"
	}
	return "undecided"
}

// Endpoint is the engine side of a logical stream.
// Frames published by the peer are emitted to the attached sinks;
// frames received as a Sink are sent to the peer.
type Endpoint interface {
	stream.Sink
	Attach(stream.Sink) stream.Handle
	Detach(stream.Handle)
	Reset()
}

type streamControl interface {
	stream.Control
	terminate()
}

// NetConnection is a connection of the session.
type NetConnection struct {
	ID         uuid.UUID
	RemoteAddr net.Addr
	// tcUrl of the connection.
	URL     string
	Created time.Time

	closer  func()
	session *Session
	role    Role

	mutex    sync.Mutex
	closed   bool
	controls []streamControl
}

// Role returns the role of the connection.
func (c *NetConnection) Role() Role {
	c.session.mutex.Lock()
	defer c.session.mutex.Unlock()
	return c.role
}

// IP returns the IP of the remote address.
func (c *NetConnection) IP() string {
	switch addr := c.RemoteAddr.(type) {
	case *net.TCPAddr:
		return addr.IP.String()
	case nil:
		return ""
	}

	host, _, err := net.SplitHostPort(c.RemoteAddr.String())
	if err != nil {
		return c.RemoteAddr.String()
	}
	return host
}

// CreateStream returns the control of a logical stream of the connection.
func (c *NetConnection) CreateStream(ep Endpoint) stream.Control {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return stream.Unsupported{}
	}

	ctl := &roleControl{
		conn: c,
		ep:   ep,
	}
	c.controls = append(c.controls, ctl)
	return ctl
}

// Close stops every stream of the connection and removes it from the session.
// It does not call the closer.
func (c *NetConnection) Close() {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.closed = true
	controls := c.controls
	c.controls = nil
	c.mutex.Unlock()

	for _, ctl := range controls {
		ctl.terminate()
	}

	c.session.removeConn(c)
}

// disconnect closes the transport of the connection.
func (c *NetConnection) disconnect() {
	if c.closer != nil {
		c.closer()
	}
}

// roleControl dispatches a stream to a publisher or a watcher control,
// depending on the first publish or play.
type roleControl struct {
	stream.Unsupported

	conn *NetConnection
	ep   Endpoint

	mutex sync.Mutex
	cur   streamControl
}

func (r *roleControl) current() streamControl {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.cur
}

// Publish implements stream.Control.
func (r *roleControl) Publish(name string) error {
	err := r.conn.session.setRole(r.conn, RolePublisher)
	if err != nil {
		return statusError(rtmp.CodePublishRejected, err)
	}

	r.mutex.Lock()
	if r.cur == nil {
		r.cur = &publisherControl{conn: r.conn, ep: r.ep}
	}
	cur := r.cur
	r.mutex.Unlock()

	return cur.Publish(name)
}

// Play implements stream.Control.
func (r *roleControl) Play(name string) error {
	err := r.conn.session.setRole(r.conn, RoleWatcher)
	if err != nil {
		return statusError(rtmp.CodePlayFailed, err)
	}

	r.mutex.Lock()
	if r.cur == nil {
		r.cur = &watcherControl{conn: r.conn, ep: r.ep}
	}
	cur := r.cur
	r.mutex.Unlock()

	return cur.Play(name)
}

// Pause implements stream.Control.
func (r *roleControl) Pause(pause bool, position uint32) error {
	if cur := r.current(); cur != nil {
		return cur.Pause(pause, position)
	}
	return stream.ErrUnsupported
}

// Seek implements stream.Control.
func (r *roleControl) Seek(position uint32) error {
	if cur := r.current(); cur != nil {
		return cur.Seek(position)
	}
	return stream.ErrUnsupported
}

// Close implements stream.Control.
func (r *roleControl) Close() error {
	if cur := r.current(); cur != nil {
		return cur.Close()
	}
	return nil
}

func (r *roleControl) terminate() {
	if cur := r.current(); cur != nil {
		cur.terminate()
	}
}
