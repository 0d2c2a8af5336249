package broadcast

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtmpcast/internal/media"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp"
	"github.com/bluenviron/rtmpcast/internal/stream"
)

var testAddr = &net.TCPAddr{IP: net.ParseIP("1.2.3.4"), Port: 5678}

func testFrame(t *testing.T, kind media.Kind, ts uint32, body []byte) *media.Frame {
	var f media.Frame
	err := f.Unmarshal(kind, ts, body)
	require.NoError(t, err)
	return &f
}

func aacConfig(t *testing.T, ts uint32) *media.Frame {
	return testFrame(t, media.KindAudio, ts, []byte{0xaf, 0x00, 0x12, 0x10})
}

func avcConfig(t *testing.T, ts uint32) *media.Frame {
	return testFrame(t, media.KindVideo, ts, []byte{0x17, 0x00, 0, 0, 0, 1, 2, 3})
}

func keyFrame(t *testing.T, ts uint32) *media.Frame {
	return testFrame(t, media.KindVideo, ts, []byte{0x17, 0x01, 0, 0, 0, 0xaa, 0xbb})
}

type testWatcher struct {
	ep     *stream.Piped
	frames []*media.Frame
	ended  int
}

func newTestWatcher() *testWatcher {
	w := &testWatcher{
		ep: &stream.Piped{},
	}
	w.ep.Initialize()
	w.ep.Attach(&stream.SinkFuncs{
		MediaFrame: func(f *media.Frame) error {
			w.frames = append(w.frames, f.Clone())
			return nil
		},
		StreamEnd: func() {
			w.ended++
		},
	})
	return w
}

func newTestEndpoint() *stream.Piped {
	p := &stream.Piped{}
	p.Initialize()
	return p
}

func requireStatus(t *testing.T, err error, code string, target error) {
	var se *rtmp.StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, code, se.Code)
	require.ErrorIs(t, err, target)
}

type testTransmitter struct {
	id     uuid.UUID
	closed bool
}

func (t *testTransmitter) Info() TransmitterInfo {
	return TransmitterInfo{ID: t.id, URL: "rtmp://other/live", State: "ready"}
}

func (t *testTransmitter) Close() {
	t.closed = true
}

func TestSessionPublishPlay(t *testing.T) {
	var transmitters []*testTransmitter
	now := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

	s := &Session{
		Now: func() time.Time { return now },
		Transmit: func(_ string, _ stream.Source) []Transmitter {
			tr := &testTransmitter{id: uuid.New()}
			transmitters = append(transmitters, tr)
			return []Transmitter{tr}
		},
	}
	s.Initialize()

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	pubConn := s.Connect(testAddr, "rtmp://myhost/live", nil)
	pub := newTestEndpoint()
	pubCtl := pubConn.CreateStream(pub)

	err := pubCtl.Publish("cam")
	require.NoError(t, err)
	require.Equal(t, RolePublisher, pubConn.Role())

	ev := <-events
	require.Equal(t, EventPublish, ev.Type)
	require.Equal(t, "cam", ev.Name)
	require.Equal(t, pubConn.ID, ev.ConnID)

	watConn := s.Connect(&net.TCPAddr{IP: net.ParseIP("5.6.7.8"), Port: 1000}, "rtmp://myhost/live", nil)
	w := newTestWatcher()
	watCtl := watConn.CreateStream(w.ep)

	err = watCtl.Play("cam")
	require.NoError(t, err)
	require.Equal(t, RoleWatcher, watConn.Role())

	require.NoError(t, pub.OnMediaFrame(aacConfig(t, 0)))
	require.NoError(t, pub.OnMediaFrame(avcConfig(t, 0)))
	require.NoError(t, pub.OnMediaFrame(keyFrame(t, 40)))

	require.Len(t, w.frames, 3)
	require.True(t, w.frames[0].IsAACConfig())
	require.True(t, w.frames[1].IsVideoConfig())
	require.Equal(t, uint32(40), w.frames[2].Timestamp)

	streams := s.PublishedStreams()
	require.Len(t, streams, 1)
	require.Equal(t, "cam", streams[0].Name)
	require.Equal(t, "rtmp://myhost/live/cam", streams[0].URL)
	require.Equal(t, pubConn.ID, streams[0].PublisherID)
	require.Equal(t, "1.2.3.4", streams[0].PublisherIP)
	require.Equal(t, 1, streams[0].Watchers)
	require.Equal(t, uint64(2+3+2), streams[0].BytesReceived)
	require.Contains(t, streams[0].Tracks, "MPEG-4 Audio 44100Hz")
	require.Contains(t, streams[0].Tracks, "H264")
	require.Equal(t, []TransmitterInfo{transmitters[0].Info()}, streams[0].Transmitters)
	require.Equal(t, []TransmitterInfo{transmitters[0].Info()}, s.Transmitters())

	require.Equal(t, uint64(2*7), s.Transfer())

	p, wa, o := s.ConnCounts()
	require.Equal(t, []int{1, 1, 0}, []int{p, wa, o})

	err = watCtl.Seek(100)
	require.ErrorIs(t, err, stream.ErrUnsupported)
}

func TestSessionPublishExclusive(t *testing.T) {
	s := &Session{}
	s.Initialize()

	conn1 := s.ConnectPublisher(testAddr, "rtmp://myhost/live", nil)
	err := conn1.CreateStream(newTestEndpoint()).Publish("cam")
	require.NoError(t, err)

	conn2 := s.ConnectPublisher(testAddr, "rtmp://myhost/live", nil)
	err = conn2.CreateStream(newTestEndpoint()).Publish("cam")
	requireStatus(t, err, rtmp.CodePublishBadName, ErrStreamAlreadyPublished)

	streams := s.PublishedStreams()
	require.Len(t, streams, 1)
	require.Equal(t, conn1.ID, streams[0].PublisherID)
}

func TestSessionPlayNotFound(t *testing.T) {
	s := &Session{}
	s.Initialize()

	conn := s.ConnectWatcher(testAddr, "rtmp://myhost/live", nil)
	w := newTestWatcher()
	ctl := conn.CreateStream(w.ep)

	err := ctl.Play("cam")
	requireStatus(t, err, rtmp.CodePlayStreamNotFound, ErrStreamNotFound)

	pubConn := s.ConnectPublisher(testAddr, "rtmp://myhost/live", nil)
	pub := newTestEndpoint()
	require.NoError(t, pubConn.CreateStream(pub).Publish("cam"))
	require.NoError(t, pub.OnMediaFrame(keyFrame(t, 0)))

	require.Empty(t, w.frames)
	require.Equal(t, 0, s.PublishedStreams()[0].Watchers)
}

func TestSessionUnpublish(t *testing.T) {
	s := &Session{}
	s.Initialize()

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	pubConn := s.ConnectPublisher(testAddr, "rtmp://myhost/live", nil)
	pub := newTestEndpoint()
	pubCtl := pubConn.CreateStream(pub)
	require.NoError(t, pubCtl.Publish("cam"))

	disconnected := 0
	watConn := s.ConnectWatcher(testAddr, "rtmp://myhost/live", func() {
		disconnected++
	})
	w := newTestWatcher()
	require.NoError(t, watConn.CreateStream(w.ep).Play("cam"))

	require.NoError(t, pub.OnMediaFrame(keyFrame(t, 0)))
	require.Len(t, w.frames, 1)

	require.NoError(t, pubCtl.Close())

	require.Equal(t, 1, w.ended)
	require.Equal(t, 1, disconnected)
	require.Empty(t, s.PublishedStreams())
	require.Equal(t, 0, pub.ListenerCount())

	require.Equal(t, EventPublish, (<-events).Type)
	require.Equal(t, EventUnpublish, (<-events).Type)

	require.NoError(t, pub.OnMediaFrame(keyFrame(t, 40)))
	require.Len(t, w.frames, 1)

	err := s.ConnectWatcher(testAddr, "", nil).CreateStream(newTestWatcher().ep).Play("cam")
	requireStatus(t, err, rtmp.CodePlayStreamNotFound, ErrStreamNotFound)

	require.NoError(t, pubCtl.Publish("cam"))
	require.Len(t, s.PublishedStreams(), 1)
}

func TestSessionPlayAgain(t *testing.T) {
	s := &Session{}
	s.Initialize()

	pubA := newTestEndpoint()
	require.NoError(t, s.Connect(testAddr, "", nil).CreateStream(pubA).Publish("a"))
	require.NoError(t, pubA.OnMediaFrame(keyFrame(t, 5000)))

	pubB := newTestEndpoint()
	require.NoError(t, s.Connect(testAddr, "", nil).CreateStream(pubB).Publish("b"))
	require.NoError(t, pubB.OnMediaFrame(keyFrame(t, 0)))

	w := newTestWatcher()
	ctl := s.Connect(testAddr, "", nil).CreateStream(w.ep)

	require.NoError(t, ctl.Play("a"))
	require.NoError(t, pubA.OnMediaFrame(keyFrame(t, 5040)))
	require.Len(t, w.frames, 1)

	require.NoError(t, ctl.Close())
	require.False(t, w.ep.Started())

	require.NoError(t, ctl.Play("b"))
	require.NoError(t, pubB.OnMediaFrame(keyFrame(t, 40)))

	require.Len(t, w.frames, 2)
	require.Equal(t, uint32(40), w.frames[1].Timestamp)
}

func TestSessionPublishAgain(t *testing.T) {
	s := &Session{}
	s.Initialize()

	pub := newTestEndpoint()
	pubCtl := s.Connect(testAddr, "", nil).CreateStream(pub)

	require.NoError(t, pubCtl.Publish("cam"))
	require.NoError(t, pub.OnMediaFrame(keyFrame(t, 5000)))
	require.NoError(t, pubCtl.Close())
	require.False(t, pub.Started())

	require.NoError(t, pubCtl.Publish("cam"))

	w := newTestWatcher()
	require.NoError(t, s.Connect(testAddr, "", nil).CreateStream(w.ep).Play("cam"))

	require.NoError(t, pub.OnMediaFrame(keyFrame(t, 0)))
	require.Len(t, w.frames, 1)
	require.Equal(t, uint32(0), w.frames[0].Timestamp)
}

func TestSessionConnClose(t *testing.T) {
	s := &Session{}
	s.Initialize()

	pubConn := s.Connect(testAddr, "rtmp://myhost/live", nil)
	require.NoError(t, pubConn.CreateStream(newTestEndpoint()).Publish("cam"))

	disconnected := false
	watConn := s.Connect(testAddr, "rtmp://myhost/live", func() {
		disconnected = true
	})
	w := newTestWatcher()
	require.NoError(t, watConn.CreateStream(w.ep).Play("cam"))

	pubConn.Close()

	require.True(t, disconnected)
	require.Equal(t, 1, w.ended)
	require.Empty(t, s.PublishedStreams())

	watConn.Close()

	p, wa, o := s.ConnCounts()
	require.Equal(t, []int{0, 0, 0}, []int{p, wa, o})

	err := watConn.CreateStream(newTestEndpoint()).Play("cam")
	require.ErrorIs(t, err, stream.ErrUnsupported)
}

func TestSessionPause(t *testing.T) {
	s := &Session{}
	s.Initialize()

	pub := newTestEndpoint()
	require.NoError(t, s.Connect(testAddr, "", nil).CreateStream(pub).Publish("cam"))

	w := newTestWatcher()
	ctl := s.Connect(testAddr, "", nil).CreateStream(w.ep)

	err := ctl.Pause(true, 0)
	require.ErrorIs(t, err, stream.ErrUnsupported)

	require.NoError(t, ctl.Play("cam"))

	require.NoError(t, pub.OnMediaFrame(aacConfig(t, 0)))
	require.NoError(t, pub.OnMediaFrame(avcConfig(t, 0)))
	require.NoError(t, pub.OnMediaFrame(keyFrame(t, 40)))
	require.Len(t, w.frames, 3)

	require.NoError(t, ctl.Pause(true, 40))
	require.NoError(t, pub.OnMediaFrame(keyFrame(t, 80)))
	require.Len(t, w.frames, 3)

	require.NoError(t, ctl.Pause(false, 40))
	require.NoError(t, pub.OnMediaFrame(keyFrame(t, 120)))

	require.Len(t, w.frames, 6)
	require.True(t, w.frames[3].IsAACConfig())
	require.True(t, w.frames[4].IsVideoConfig())
	require.Equal(t, uint32(120), w.frames[5].Timestamp)
}

func TestSessionRoles(t *testing.T) {
	s := &Session{}
	s.Initialize()

	watConn := s.ConnectWatcher(testAddr, "", nil)
	err := watConn.CreateStream(newTestEndpoint()).Publish("cam")
	requireStatus(t, err, rtmp.CodePublishRejected, ErrWrongRole)

	pubConn := s.Connect(testAddr, "", nil)
	require.NoError(t, pubConn.CreateStream(newTestEndpoint()).Publish("cam"))

	err = pubConn.CreateStream(newTestEndpoint()).Play("cam")
	requireStatus(t, err, rtmp.CodePlayFailed, ErrWrongRole)
}

func TestSessionAdmission(t *testing.T) {
	t.Run("max concurrent", func(t *testing.T) {
		s := &Session{MaxConcurrent: 2}
		s.Initialize()

		require.NoError(t, s.Connect(testAddr, "", nil).CreateStream(newTestEndpoint()).Publish("cam1"))

		watCtl := s.Connect(testAddr, "", nil).CreateStream(newTestWatcher().ep)
		require.NoError(t, watCtl.Play("cam1"))

		err := s.Connect(testAddr, "", nil).CreateStream(newTestWatcher().ep).Play("cam1")
		requireStatus(t, err, rtmp.CodePlayFailed, ErrAdmission)

		err = s.Connect(testAddr, "", nil).CreateStream(newTestEndpoint()).Publish("cam2")
		requireStatus(t, err, rtmp.CodePublishRejected, ErrAdmission)

		require.NoError(t, watCtl.Close())

		require.NoError(t, s.Connect(testAddr, "", nil).CreateStream(newTestEndpoint()).Publish("cam2"))
	})

	t.Run("max transfer", func(t *testing.T) {
		now := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

		s := &Session{
			MaxTransfer: 10,
			Now:         func() time.Time { return now },
		}
		s.Initialize()

		pub := newTestEndpoint()
		require.NoError(t, s.Connect(testAddr, "", nil).CreateStream(pub).Publish("cam"))

		require.NoError(t, pub.OnMediaFrame(testFrame(t, media.KindVideo, 0,
			append([]byte{0x17, 0x01, 0, 0, 0}, make([]byte, 20)...))))

		watCtl := s.Connect(testAddr, "", nil).CreateStream(newTestWatcher().ep)
		err := watCtl.Play("cam")
		requireStatus(t, err, rtmp.CodePlayFailed, ErrAdmission)

		now = now.Add(2 * time.Second)

		require.NoError(t, watCtl.Play("cam"))
	})
}

func TestSessionClose(t *testing.T) {
	s := &Session{}
	s.Initialize()

	transmitter := &testTransmitter{}
	s.Transmit = func(string, stream.Source) []Transmitter {
		return []Transmitter{transmitter}
	}

	require.NoError(t, s.Connect(testAddr, "", nil).CreateStream(newTestEndpoint()).Publish("cam"))
	require.NoError(t, s.Connect(testAddr, "", nil).CreateStream(newTestWatcher().ep).Play("cam"))

	s.Close()

	require.True(t, transmitter.closed)
	require.Empty(t, s.PublishedStreams())

	p, wa, o := s.ConnCounts()
	require.Equal(t, []int{0, 0, 0}, []int{p, wa, o})
}
