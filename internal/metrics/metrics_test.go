package metrics

import (
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtmpcast/internal/broadcast"
	"github.com/bluenviron/rtmpcast/internal/conf"
	"github.com/bluenviron/rtmpcast/internal/defs"
	"github.com/bluenviron/rtmpcast/internal/stream"
	"github.com/bluenviron/rtmpcast/internal/test"
)

type testRTMPServer struct{}

func (testRTMPServer) APIConnsList() (*defs.APIRTMPConnList, error) {
	return &defs.APIRTMPConnList{
		Items: []*defs.APIRTMPConn{
			{
				State:         defs.APIRTMPConnStatePublish,
				BytesReceived: 1000,
				BytesSent:     10,
			},
			{
				State:         defs.APIRTMPConnStateRead,
				BytesReceived: 20,
				BytesSent:     900,
				FramesDropped: 3,
			},
		},
	}, nil
}

func (testRTMPServer) APIConnsGet(uuid.UUID) (*defs.APIRTMPConn, error) {
	panic("unused")
}

func (testRTMPServer) APIConnsKick(uuid.UUID) error {
	panic("unused")
}

func newMetrics(t *testing.T, session defs.APISession, rtmpServer defs.APIRTMPServer) *Metrics {
	m := &Metrics{
		Address:      "localhost:0",
		ReadTimeout:  conf.Duration(10 * time.Second),
		WriteTimeout: conf.Duration(10 * time.Second),
		RTMPServer:   rtmpServer,
		Session:      session,
		Parent:       test.NilLogger,
	}
	err := m.Initialize()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func get(t *testing.T, m *Metrics) string {
	res, err := http.Get("http://" + m.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	byts, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(byts)
}

func TestMetricsEmpty(t *testing.T) {
	session := &broadcast.Session{Parent: test.NilLogger}
	session.Initialize()
	defer session.Close()

	m := newMetrics(t, session, nil)

	require.Equal(t, "streams 0\n"+
		"transfer_bytes_per_second 0\n", get(t, m))
}

func TestMetrics(t *testing.T) {
	session := &broadcast.Session{Parent: test.NilLogger}
	session.Initialize()
	defer session.Close()

	ep := &stream.Piped{}
	ep.Initialize()

	nc := session.ConnectPublisher(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234}, "rtmp://localhost/live", nil)
	err := nc.CreateStream(ep).Publish("mystream")
	require.NoError(t, err)

	m := newMetrics(t, session, testRTMPServer{})

	require.Equal(t, "streams{name=\"mystream\"} 1\n"+
		"streams_watchers{name=\"mystream\"} 0\n"+
		"streams_bytes_received{name=\"mystream\"} 0\n"+
		"streams_transmitters{name=\"mystream\"} 0\n"+
		"transfer_bytes_per_second 0\n"+
		"rtmp_conns{state=\"idle\"} 0\n"+
		"rtmp_conns{state=\"read\"} 1\n"+
		"rtmp_conns{state=\"publish\"} 1\n"+
		"rtmp_conns_bytes_received 1020\n"+
		"rtmp_conns_bytes_sent 910\n"+
		"rtmp_conns_frames_dropped 3\n", get(t, m))
}

func TestEscapeLabel(t *testing.T) {
	require.Equal(t, `a\"b\\c\n`, escapeLabel("a\"b\\c\n"))
}
