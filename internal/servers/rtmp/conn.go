package rtmp

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/rtmpcast/internal/auth"
	"github.com/bluenviron/rtmpcast/internal/broadcast"
	"github.com/bluenviron/rtmpcast/internal/defs"
	"github.com/bluenviron/rtmpcast/internal/hooks"
	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/media"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp"
	"github.com/bluenviron/rtmpcast/internal/stream"
)

type connState int

const (
	connStateIdle connState = iota
	connStateRead
	connStatePublish
)

// mergeQueries returns the parameters of b, completed by the ones of a.
func mergeQueries(a url.Values, b url.Values) url.Values {
	ret := url.Values{}
	for k, v := range a {
		ret[k] = v
	}
	for k, v := range b {
		ret[k] = v
	}
	return ret
}

type conn struct {
	parentCtx context.Context
	wg        *sync.WaitGroup
	nconn     net.Conn
	parent    *Server

	ctx       context.Context
	ctxCancel func()
	uuid      uuid.UUID
	created   time.Time
	rconn     *rtmp.Conn
	peer      *peer

	mutex      sync.RWMutex
	appQuery   url.Values
	nc         *broadcast.NetConnection
	state      connState
	streamName string
	query      string
}

func (c *conn) initialize() error {
	c.ctx, c.ctxCancel = context.WithCancel(c.parentCtx)

	c.uuid = uuid.New()
	c.created = time.Now()
	c.appQuery = url.Values{}

	c.rconn = &rtmp.Conn{
		Role:              rtmp.RoleServer,
		Handler:           c,
		ChunkSize:         c.parent.ChunkSize,
		WindowAckSize:     c.parent.WindowAckSize,
		PeerBandwidth:     c.parent.PeerBandwidth,
		WaitIntra:         c.parent.WaitIntra,
		RewriteTimestamps: c.parent.RewriteTimestamps,
		Registry:          c.parent.Session.Registry,
		Parent:            c,
	}

	c.peer = &peer{
		nconn:        c.nconn,
		readTimeout:  time.Duration(c.parent.ReadTimeout),
		writeTimeout: time.Duration(c.parent.WriteTimeout),
		pingPeriod:   time.Duration(c.parent.PingPeriod),
		rconn:        c.rconn,
		parent:       c,
	}

	err := c.peer.initialize(c.parent.WriteQueueSize)
	if err != nil {
		c.ctxCancel()
		return err
	}

	err = c.rconn.Initialize()
	if err != nil {
		c.ctxCancel()
		return err
	}

	c.Log(logger.Info, "opened")

	c.wg.Add(1)
	go c.run()

	return nil
}

// Close closes the connection.
func (c *conn) Close() {
	c.ctxCancel()
}

// Log implements logger.Writer.
func (c *conn) Log(level logger.Level, format string, args ...interface{}) {
	c.parent.Log(level, "[conn %v] "+format, append([]interface{}{c.nconn.RemoteAddr()}, args...)...)
}

func (c *conn) run() {
	defer c.wg.Done()

	err := c.peer.run(c.ctx)

	c.ctxCancel()

	c.mutex.Lock()
	nc := c.nc
	c.mutex.Unlock()

	if nc != nil {
		nc.Close()
	}

	c.rconn.Close(err)

	c.parent.closeConn(c)

	c.Log(logger.Info, "closed: %v", err)
}

// authenticate checks a request and delays failures of requests that carry credentials.
func (c *conn) authenticate(req *auth.Request) error {
	err := c.parent.AuthManager.Authenticate(req)
	if err == nil {
		return nil
	}

	c.Log(logger.Info, "%s: %v", req.Action, err)

	if req.Query.Has("user") || req.Query.Has("jwt") {
		select {
		case <-time.After(auth.PauseAfterError):
		case <-c.ctx.Done():
		}
	}

	return err
}

// evict is called by the session when the stream that is played is unpublished.
func (c *conn) evict() {
	if !c.peer.closeAfterFlush(errEvicted) {
		c.ctxCancel()
	}
}

// OnConnect implements rtmp.ServerHandler.
func (c *conn) OnConnect(req *rtmp.ConnectRequest) {
	query := req.Query()

	err := c.authenticate(&auth.Request{
		Action: auth.ActionConnect,
		Query:  query,
	})
	if err != nil {
		req.Reject("invalid credentials") //nolint:errcheck
		return
	}

	nc := c.parent.Session.ConnectWithID(c.uuid, c.nconn.RemoteAddr(), req.TCURL, c.evict)

	c.mutex.Lock()
	c.nc = nc
	c.appQuery = query
	c.mutex.Unlock()

	err = req.Accept()
	if err != nil {
		c.Log(logger.Warn, "%v", err)
		return
	}

	c.Log(logger.Debug, "connected to application '%s'", rtmp.PathOf(req.App))
}

// OnNetStreamCreated implements rtmp.ServerHandler.
func (c *conn) OnNetStreamCreated(ns *rtmp.NetStream) {
	c.mutex.RLock()
	nc := c.nc
	c.mutex.RUnlock()

	if nc == nil {
		return
	}

	ns.Control = &streamControl{
		conn:  c,
		inner: nc.CreateStream(ns),
	}
}

// OnNetStreamStatus implements rtmp.ServerHandler.
func (c *conn) OnNetStreamStatus(ns *rtmp.NetStream, code string) {
	c.Log(logger.Debug, "stream %d: %s", ns.ID, code)
}

// OnNetStreamDestroyed implements rtmp.ServerHandler.
func (c *conn) OnNetStreamDestroyed(ns *rtmp.NetStream) {
	c.Log(logger.Debug, "stream %d destroyed", ns.ID)
}

// OnCommand implements rtmp.ServerHandler.
func (c *conn) OnCommand(_ *rtmp.NetStream, cmd *media.Command) {
	c.Log(logger.Debug, "received command '%s'", cmd.Name)
}

func (c *conn) setState(state connState, streamName string, query string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.state = state
	c.streamName = streamName
	c.query = query
}

func (c *conn) apiItem() *defs.APIRTMPConn {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var framesDropped uint64
	for _, ns := range c.rconn.NetStreams() {
		framesDropped += ns.DroppedFrames()
	}

	return &defs.APIRTMPConn{
		ID:         c.uuid,
		Created:    c.created,
		RemoteAddr: c.nconn.RemoteAddr().String(),
		State: func() defs.APIRTMPConnState {
			switch c.state {
			case connStateRead:
				return defs.APIRTMPConnStateRead

			case connStatePublish:
				return defs.APIRTMPConnStatePublish
			}
			return defs.APIRTMPConnStateIdle
		}(),
		Stream:        c.streamName,
		Query:         c.query,
		RTT:           c.rconn.RTT().Seconds(),
		BytesReceived: c.peer.bytesReceived(),
		BytesSent:     c.peer.bytesSent(),
		FramesDropped: framesDropped + c.peer.writer.Dropped(),
	}
}

// streamControl checks credentials and runs hooks around the session control of a NetStream.
type streamControl struct {
	conn  *conn
	inner stream.Control

	mutex     sync.Mutex
	onUnhook  func()
	streaming bool
}

func (s *streamControl) query(name string) url.Values {
	s.conn.mutex.RLock()
	defer s.conn.mutex.RUnlock()
	return mergeQueries(s.conn.appQuery, rtmp.QueryOf(name))
}

// Publish implements stream.Control.
func (s *streamControl) Publish(name string) error {
	c := s.conn
	query := s.query(name)
	streamName := rtmp.PathOf(name)

	err := c.authenticate(&auth.Request{
		Action: auth.ActionPublish,
		Stream: streamName,
		Query:  query,
	})
	if err != nil {
		return &rtmp.StatusError{
			Code:        rtmp.CodePublishBadName,
			Description: "authentication failed",
		}
	}

	err = s.inner.Publish(streamName)
	if err != nil {
		return err
	}

	c.setState(connStatePublish, streamName, query.Encode())
	c.Log(logger.Info, "is publishing to stream '%s'", streamName)

	s.mutex.Lock()
	s.streaming = true
	s.onUnhook = hooks.OnPublish(hooks.OnPublishParams{
		Logger:              c,
		ExternalCmdPool:     c.parent.ExternalCmdPool,
		RunOnPublish:        c.parent.RunOnPublish,
		RunOnPublishRestart: c.parent.RunOnPublishRestart,
		RTMPAddress:         c.parent.Address,
		Stream:              streamName,
		ConnID:              c.uuid.String(),
	})
	s.mutex.Unlock()

	return nil
}

// Play implements stream.Control.
func (s *streamControl) Play(name string) error {
	c := s.conn
	query := s.query(name)
	streamName := rtmp.PathOf(name)

	err := c.authenticate(&auth.Request{
		Action: auth.ActionRead,
		Stream: streamName,
		Query:  query,
	})
	if err != nil {
		return &rtmp.StatusError{
			Code:        rtmp.CodePlayFailed,
			Description: "authentication failed",
		}
	}

	err = s.inner.Play(streamName)
	if err != nil {
		return err
	}

	// watchers only send acknowledgements
	c.peer.disableReadTimeout()

	c.setState(connStateRead, streamName, query.Encode())
	c.Log(logger.Info, "is reading from stream '%s'", streamName)

	s.mutex.Lock()
	s.streaming = true
	s.onUnhook = hooks.OnRead(hooks.OnReadParams{
		Logger:          c,
		ExternalCmdPool: c.parent.ExternalCmdPool,
		RunOnRead:       c.parent.RunOnRead,
		RTMPAddress:     c.parent.Address,
		Stream:          streamName,
		ConnID:          c.uuid.String(),
	})
	s.mutex.Unlock()

	return nil
}

// Pause implements stream.Control.
func (s *streamControl) Pause(pause bool, position uint32) error {
	return s.inner.Pause(pause, position)
}

// Seek implements stream.Control.
func (s *streamControl) Seek(position uint32) error {
	return s.inner.Seek(position)
}

// Close implements stream.Control.
func (s *streamControl) Close() error {
	err := s.inner.Close()

	s.mutex.Lock()
	wasStreaming := s.streaming
	onUnhook := s.onUnhook
	s.streaming = false
	s.onUnhook = nil
	s.mutex.Unlock()

	if onUnhook != nil {
		onUnhook()
	}

	if wasStreaming {
		s.conn.setState(connStateIdle, "", "")
	}

	if err != nil {
		return fmt.Errorf("unable to close stream: %w", err)
	}
	return nil
}
