// Package broadcast contains the broadcast session, that routes the streams
// of publishers to watchers.
package broadcast

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp"
	"github.com/bluenviron/rtmpcast/internal/stream"
)

var (
	// ErrStreamNotFound is returned when playing a name that has no publisher.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrStreamAlreadyPublished is returned when publishing a name that has a publisher.
	ErrStreamAlreadyPublished = errors.New("stream is already published")

	// ErrAdmission is returned when the session limits are reached.
	ErrAdmission = errors.New("session limits reached")

	// ErrWrongRole is returned when a connection performs an operation of another role.
	ErrWrongRole = errors.New("operation not allowed for the connection role")
)

const eventQueueSize = 64

// EventType is the type of an event.
type EventType string

// event types.
const (
	EventPublish   EventType = "publish"
	EventUnpublish EventType = "unpublish"
)

// Event is emitted when a stream is published or unpublished.
type Event struct {
	Type   EventType `json:"type"`
	Name   string    `json:"name"`
	ConnID uuid.UUID `json:"connId"`
	Time   time.Time `json:"time"`
}

// Transmitter re-publishes a stream of the session somewhere else.
type Transmitter interface {
	Info() TransmitterInfo
	Close()
}

// TransmitterInfo describes a transmitter.
type TransmitterInfo struct {
	ID    uuid.UUID `json:"id"`
	URL   string    `json:"url"`
	State string    `json:"state"`
}

// PublishedStream is a snapshot of a published stream.
type PublishedStream struct {
	Name          string            `json:"name"`
	URL           string            `json:"url"`
	PublisherID   uuid.UUID         `json:"publisherId"`
	PublisherIP   string            `json:"publisherIp"`
	Created       time.Time         `json:"created"`
	Tracks        []string          `json:"tracks"`
	Watchers      int               `json:"watchers"`
	BytesReceived uint64            `json:"bytesReceived"`
	Transmitters  []TransmitterInfo `json:"transmitters"`
}

type publishedEntry struct {
	name        string
	url         string
	publisher   *NetConnection
	created     time.Time
	piped       *stream.Piped
	stats       *statsSink
	statsHandle stream.Handle
	nWatchers   *atomic.Int64

	// fields below are protected by the session mutex
	closed   bool
	watchers map[*watcherControl]struct{}
	transmit []Transmitter
}

// Session routes the streams of publishers to watchers.
// Each published name is a Piped that publishers feed and watchers listen to.
type Session struct {
	// max number of published streams plus watchers. Zero means unlimited.
	MaxConcurrent int
	// max relayed bytes per second. Zero means unlimited.
	MaxTransfer uint64
	GOPCache    bool
	Registry    *stream.Registry
	// optional, called after a name is published.
	Transmit func(name string, src stream.Source) []Transmitter
	Now      func() time.Time
	Parent   logger.Writer

	mutex       sync.Mutex
	streams     map[string]*publishedEntry
	publishers  map[*NetConnection]struct{}
	watchers    map[*NetConnection]struct{}
	others      map[*NetConnection]struct{}
	playing     int
	subscribers map[chan Event]struct{}
	meter       *transferMeter
}

// Initialize initializes Session.
func (s *Session) Initialize() {
	if s.Registry == nil {
		s.Registry = stream.NewRegistry()
	}
	if s.Now == nil {
		s.Now = time.Now
	}

	s.streams = make(map[string]*publishedEntry)
	s.publishers = make(map[*NetConnection]struct{})
	s.watchers = make(map[*NetConnection]struct{})
	s.others = make(map[*NetConnection]struct{})
	s.subscribers = make(map[chan Event]struct{})
	s.meter = &transferMeter{}
}

// Log implements logger.Writer.
func (s *Session) Log(level logger.Level, format string, args ...interface{}) {
	if s.Parent != nil {
		s.Parent.Log(level, "[session] "+format, args...)
	}
}

// Close unpublishes every stream and closes every connection.
func (s *Session) Close() {
	s.mutex.Lock()
	var conns []*NetConnection
	for _, set := range []map[*NetConnection]struct{}{s.publishers, s.watchers, s.others} {
		for c := range set {
			conns = append(conns, c)
		}
	}
	s.mutex.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// ConnectPublisher adds a connection that can only publish.
func (s *Session) ConnectPublisher(remoteAddr net.Addr, url string, closer func()) *NetConnection {
	return s.connect(uuid.New(), RolePublisher, remoteAddr, url, closer)
}

// ConnectWatcher adds a connection that can only play.
func (s *Session) ConnectWatcher(remoteAddr net.Addr, url string, closer func()) *NetConnection {
	return s.connect(uuid.New(), RoleWatcher, remoteAddr, url, closer)
}

// Connect adds a connection whose role is decided by its first publish or play.
func (s *Session) Connect(remoteAddr net.Addr, url string, closer func()) *NetConnection {
	return s.connect(uuid.New(), RoleUndecided, remoteAddr, url, closer)
}

// ConnectWithID is Connect with a connection ID chosen by the caller.
func (s *Session) ConnectWithID(id uuid.UUID, remoteAddr net.Addr, url string, closer func()) *NetConnection {
	return s.connect(id, RoleUndecided, remoteAddr, url, closer)
}

func (s *Session) connect(id uuid.UUID, role Role, remoteAddr net.Addr, url string, closer func()) *NetConnection {
	c := &NetConnection{
		ID:         id,
		RemoteAddr: remoteAddr,
		URL:        url,
		Created:    s.Now(),
		closer:     closer,
		session:    s,
		role:       role,
	}

	s.mutex.Lock()
	s.roleSet(role)[c] = struct{}{}
	s.mutex.Unlock()

	return c
}

func (s *Session) roleSet(role Role) map[*NetConnection]struct{} {
	switch role {
	case RolePublisher:
		return s.publishers
	case RoleWatcher:
		return s.watchers
	}
	return s.others
}

// setRole moves an undecided connection into the set of role.
func (s *Session) setRole(c *NetConnection, role Role) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if c.role == role {
		return nil
	}
	if c.role != RoleUndecided {
		return ErrWrongRole
	}

	delete(s.others, c)
	c.role = role
	s.roleSet(role)[c] = struct{}{}
	return nil
}

func (s *Session) removeConn(c *NetConnection) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.roleSet(c.role), c)
}

// ConnCounts returns the number of publisher, watcher and undecided connections.
func (s *Session) ConnCounts() (int, int, int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.publishers), len(s.watchers), len(s.others)
}

// admit checks the session limits. It must be called with the mutex held.
func (s *Session) admit() error {
	if s.MaxConcurrent > 0 && (len(s.streams)+s.playing) >= s.MaxConcurrent {
		return fmt.Errorf("%w: max concurrent streams (%d)", ErrAdmission, s.MaxConcurrent)
	}

	if s.MaxTransfer > 0 {
		if rate := s.meter.rate(s.Now()); rate >= s.MaxTransfer {
			return fmt.Errorf("%w: max transfer (%d bytes/s)", ErrAdmission, s.MaxTransfer)
		}
	}

	return nil
}

// Transfer returns the relayed bytes per second.
func (s *Session) Transfer() uint64 {
	return s.meter.rate(s.Now())
}

func (s *Session) addTransfer(n uint64) {
	s.meter.add(s.Now(), n)
}

// publish creates the named entry.
func (s *Session) publish(c *NetConnection, name string) (*publishedEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.streams[name]; ok {
		return nil, ErrStreamAlreadyPublished
	}

	err := s.admit()
	if err != nil {
		return nil, err
	}

	p := &stream.Piped{
		Registry: s.Registry,
		GOPCache: s.GOPCache,
	}
	p.Initialize()

	e := &publishedEntry{
		name:      name,
		url:       joinURL(c.URL, name),
		publisher: c,
		created:   s.Now(),
		piped:     p,
		nWatchers: atomic.NewInt64(0),
		watchers:  make(map[*watcherControl]struct{}),
	}
	e.stats = &statsSink{session: s, entry: e}
	e.statsHandle = p.Attach(e.stats)

	s.streams[name] = e
	return e, nil
}

// unpublish removes the named entry and returns its watchers.
func (s *Session) unpublish(e *publishedEntry) []*watcherControl {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if cur, ok := s.streams[e.name]; ok && cur == e {
		delete(s.streams, e.name)
	}

	ws := make([]*watcherControl, 0, len(e.watchers))
	for w := range e.watchers {
		ws = append(ws, w)
	}
	e.watchers = nil
	e.nWatchers.Store(0)
	s.playing -= len(ws)
	return ws
}

// takeTransmitters detaches the transmitters from the entry.
func (s *Session) takeTransmitters(e *publishedEntry) []Transmitter {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ts := e.transmit
	e.transmit = nil
	return ts
}

// setTransmitters stores the transmitters of the entry.
// It returns false if the entry was closed meanwhile.
func (s *Session) setTransmitters(e *publishedEntry, ts []Transmitter) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if e.closed {
		return false
	}
	e.transmit = ts
	return true
}

func (s *Session) isClosed(e *publishedEntry) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return e.closed
}

// addWatcher looks up the named entry and reserves a place for w.
func (s *Session) addWatcher(name string, w *watcherControl, checkAdmission bool) (*publishedEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.streams[name]
	if !ok {
		return nil, ErrStreamNotFound
	}

	if checkAdmission {
		err := s.admit()
		if err != nil {
			return nil, err
		}
	}

	e.watchers[w] = struct{}{}
	e.nWatchers.Inc()
	s.playing++
	return e, nil
}

// removeWatcher releases the place of w. It returns false if the entry was closed meanwhile.
func (s *Session) removeWatcher(e *publishedEntry, w *watcherControl) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if e.closed {
		return false
	}

	if _, ok := e.watchers[w]; ok {
		delete(e.watchers, w)
		e.nWatchers.Dec()
		s.playing--
	}
	return true
}

// Subscribe returns a channel that receives events.
// The returned function unsubscribes. Events are dropped when the channel is full.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventQueueSize)

	s.mutex.Lock()
	s.subscribers[ch] = struct{}{}
	s.mutex.Unlock()

	return ch, func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}

func (s *Session) emit(typ EventType, name string, connID uuid.UUID) {
	ev := Event{
		Type:   typ,
		Name:   name,
		ConnID: connID,
		Time:   s.Now(),
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// PublishedStreams returns a snapshot of the published streams, sorted by name.
func (s *Session) PublishedStreams() []PublishedStream {
	s.mutex.Lock()
	entries := make([]*publishedEntry, 0, len(s.streams))
	watchers := make([]int, 0, len(s.streams))
	transmit := make([][]Transmitter, 0, len(s.streams))
	for _, e := range s.streams {
		entries = append(entries, e)
		watchers = append(watchers, len(e.watchers))
		transmit = append(transmit, e.transmit)
	}
	s.mutex.Unlock()

	out := make([]PublishedStream, len(entries))

	for i, e := range entries {
		ps := PublishedStream{
			Name:          e.name,
			URL:           e.url,
			PublisherID:   e.publisher.ID,
			PublisherIP:   e.publisher.IP(),
			Created:       e.created,
			Tracks:        e.stats.tracks(),
			Watchers:      watchers[i],
			BytesReceived: e.stats.bytesReceived.Load(),
			Transmitters:  []TransmitterInfo{},
		}

		for _, t := range transmit[i] {
			ps.Transmitters = append(ps.Transmitters, t.Info())
		}

		out[i] = ps
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})

	return out
}

// Transmitters returns the transmitters of every published stream.
func (s *Session) Transmitters() []TransmitterInfo {
	out := []TransmitterInfo{}
	for _, ps := range s.PublishedStreams() {
		out = append(out, ps.Transmitters...)
	}
	return out
}

func joinURL(base string, name string) string {
	if base == "" {
		return name
	}
	if base[len(base)-1] == '/' {
		return base + name
	}
	return base + "/" + name
}

func statusError(code string, err error) error {
	return &rtmp.StatusError{Code: code, Err: err}
}
