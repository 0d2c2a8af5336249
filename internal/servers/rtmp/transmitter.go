package rtmp

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/rtmpcast/internal/broadcast"
	"github.com/bluenviron/rtmpcast/internal/conf"
	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/media"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp"
	"github.com/bluenviron/rtmpcast/internal/stream"
)

const (
	defaultRetryPause = 5 * time.Second
	defaultRTMPPort   = "1935"
)

// transmitter states.
const (
	transmitterStateConnecting = "connecting"
	transmitterStatePublishing = "publishing"
	transmitterStateWaiting    = "waiting"
)

// transmitter re-publishes a stream to another server.
type transmitter struct {
	BaseURL        string
	Name           string
	Source         stream.Source
	ReadTimeout    conf.Duration
	WriteTimeout   conf.Duration
	WriteQueueSize int
	ChunkSize      uint32
	RetryPause     time.Duration
	Registry       *stream.Registry
	Parent         logger.Writer

	id        uuid.UUID
	url       string
	ctx       context.Context
	ctxCancel func()
	done      chan struct{}

	mutex sync.Mutex
	state string
}

func (t *transmitter) initialize() {
	if t.RetryPause == 0 {
		t.RetryPause = defaultRetryPause
	}

	t.id = uuid.New()
	t.url = strings.TrimRight(t.BaseURL, "/") + "/" + t.Name
	t.ctx, t.ctxCancel = context.WithCancel(context.Background())
	t.done = make(chan struct{})
	t.state = transmitterStateConnecting

	t.Log(logger.Info, "started")

	go t.run()
}

// Close implements broadcast.Transmitter.
func (t *transmitter) Close() {
	t.ctxCancel()
	<-t.done
	t.Log(logger.Info, "stopped")
}

// Info implements broadcast.Transmitter.
func (t *transmitter) Info() broadcast.TransmitterInfo {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return broadcast.TransmitterInfo{
		ID:    t.id,
		URL:   t.url,
		State: t.state,
	}
}

// Log implements logger.Writer.
func (t *transmitter) Log(level logger.Level, format string, args ...interface{}) {
	t.Parent.Log(level, "[transmitter %s] "+format, append([]interface{}{t.url}, args...)...)
}

func (t *transmitter) setState(state string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.state = state
}

func (t *transmitter) run() {
	defer close(t.done)

	for {
		t.setState(transmitterStateConnecting)

		err := t.runInner()
		if t.ctx.Err() != nil {
			return
		}

		t.Log(logger.Warn, "%v", err)
		t.setState(transmitterStateWaiting)

		select {
		case <-time.After(t.RetryPause):
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *transmitter) runInner() error {
	u, err := url.Parse(t.BaseURL)
	if err != nil {
		return err
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), defaultRTMPPort)
	}

	dialer := &net.Dialer{Timeout: time.Duration(t.ReadTimeout)}
	nconn, err := dialer.DialContext(t.ctx, "tcp", host)
	if err != nil {
		return err
	}

	h := &transmitterHandler{
		t:      t,
		failed: make(chan error, 1),
	}

	rconn := &rtmp.Conn{
		Role:          rtmp.RoleClient,
		ClientHandler: h,
		App:           strings.Trim(u.Path, "/"),
		TCURL:         strings.TrimRight(t.BaseURL, "/"),
		ChunkSize:     t.ChunkSize,
		Registry:      t.Registry,
		Parent:        t,
	}
	h.rconn = rconn

	p := &peer{
		nconn:        nconn,
		readTimeout:  time.Duration(t.ReadTimeout),
		writeTimeout: time.Duration(t.WriteTimeout),
		rconn:        rconn,
		parent:       t,
	}
	h.peer = p

	err = p.initialize(t.WriteQueueSize)
	if err != nil {
		nconn.Close()
		return err
	}

	err = rconn.Initialize()
	if err != nil {
		nconn.Close()
		return err
	}

	ctx, ctxCancel := context.WithCancel(t.ctx)
	defer ctxCancel()

	peerErr := make(chan error)
	go func() {
		peerErr <- p.run(ctx)
	}()

	select {
	case err = <-peerErr:
	case err = <-h.failed:
		ctxCancel()
		<-peerErr
	}

	h.detach()
	rconn.Close(err)

	return err
}

type transmitterHandler struct {
	t      *transmitter
	rconn  *rtmp.Conn
	peer   *peer
	failed chan error

	mutex  sync.Mutex
	ns     *rtmp.NetStream
	handle stream.Handle
}

func (h *transmitterHandler) fail(err error) {
	select {
	case h.failed <- err:
	default:
	}
}

func (h *transmitterHandler) attach(ns *rtmp.NetStream) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.handle != 0 {
		return
	}
	h.ns = ns
	h.handle = h.t.Source.Attach(ns)
}

func (h *transmitterHandler) detach() {
	h.mutex.Lock()
	handle := h.handle
	h.handle = 0
	h.mutex.Unlock()

	if handle != 0 {
		h.t.Source.Detach(handle)
	}
}

// OnConnected implements rtmp.ClientHandler.
func (h *transmitterHandler) OnConnected() {
	err := h.rconn.CreateStream()
	if err != nil {
		h.fail(err)
	}
}

// OnNetStreamCreated implements rtmp.ClientHandler.
func (h *transmitterHandler) OnNetStreamCreated(ns *rtmp.NetStream) {
	err := ns.SendPublish(h.t.Name)
	if err != nil {
		h.fail(err)
	}
}

// OnCommandResponse implements rtmp.ClientHandler.
func (h *transmitterHandler) OnCommandResponse(ns *rtmp.NetStream, cmd *media.Command) {
	code, ok := rtmp.StatusCode(cmd.Arguments)
	if !ok || ns == nil {
		return
	}

	switch code {
	case rtmp.CodePublishStart:
		// the remote server only sends acknowledgements
		h.peer.disableReadTimeout()
		h.attach(ns)
		h.t.setState(transmitterStatePublishing)
		h.t.Log(logger.Info, "publishing")

	case rtmp.CodePublishBadName, rtmp.CodePublishRejected, rtmp.CodePublishFailed:
		h.fail(fmt.Errorf("publish refused: %s", code))
	}
}

// OnDisconnected implements rtmp.ClientHandler.
func (h *transmitterHandler) OnDisconnected(_ error) {
}
