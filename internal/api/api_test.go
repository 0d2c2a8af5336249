package api //nolint:revive

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtmpcast/internal/broadcast"
	"github.com/bluenviron/rtmpcast/internal/conf"
	"github.com/bluenviron/rtmpcast/internal/defs"
	"github.com/bluenviron/rtmpcast/internal/stream"
	"github.com/bluenviron/rtmpcast/internal/test"
)

func httpRequest(t *testing.T, hc *http.Client, method string, ur string, in interface{}, out interface{}) {
	buf := func() io.Reader {
		if in == nil {
			return nil
		}

		byts, err := json.Marshal(in)
		require.NoError(t, err)

		return bytes.NewBuffer(byts)
	}()

	req, err := http.NewRequest(method, ur, buf)
	require.NoError(t, err)

	res, err := hc.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Errorf("bad status code: %d", res.StatusCode)
	}

	if out == nil {
		return
	}

	err = json.NewDecoder(res.Body).Decode(out)
	require.NoError(t, err)
}

func newTestSession(t *testing.T) *broadcast.Session {
	s := &broadcast.Session{
		Parent: test.NilLogger,
	}
	s.Initialize()
	t.Cleanup(s.Close)
	return s
}

func publishTestStream(t *testing.T, s *broadcast.Session, name string) *broadcast.NetConnection {
	ep := &stream.Piped{}
	ep.Initialize()

	nc := s.ConnectPublisher(&net.TCPAddr{IP: net.ParseIP("192.168.1.1"), Port: 5000}, "rtmp://localhost/live", nil)
	err := nc.CreateStream(ep).Publish(name)
	require.NoError(t, err)

	return nc
}

func newTestAPI(t *testing.T, session defs.APISession, rtmpServer defs.APIRTMPServer) *API {
	api := &API{
		Version:      "v1.2.3",
		Started:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Address:      "localhost:0",
		ReadTimeout:  conf.Duration(10 * time.Second),
		WriteTimeout: conf.Duration(10 * time.Second),
		RTMPServer:   rtmpServer,
		Session:      session,
		Parent:       test.NilLogger,
	}

	err := api.Initialize()
	require.NoError(t, err)
	t.Cleanup(api.Close)

	return api
}

func TestInfo(t *testing.T) {
	api := newTestAPI(t, newTestSession(t), nil)

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	var out defs.APIInfo
	httpRequest(t, hc, http.MethodGet, "http://"+api.Addr().String()+"/v1/info", nil, &out)

	require.Equal(t, "v1.2.3", out.Version)
	require.True(t, out.Started.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))
	require.Equal(t, uint64(0), out.Transfer)
}

func TestStreamsList(t *testing.T) {
	session := newTestSession(t)
	publishTestStream(t, session, "stream2")
	publishTestStream(t, session, "stream1")

	api := newTestAPI(t, session, nil)

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	hc := &http.Client{Transport: tr}

	var out defs.APIStreamList
	httpRequest(t, hc, http.MethodGet, "http://"+api.Addr().String()+"/v1/streams/list", nil, &out)

	require.Equal(t, 2, out.ItemCount)
	require.Equal(t, 1, out.PageCount)
	require.Len(t, out.Items, 2)
	require.Equal(t, "stream1", out.Items[0].Name)
	require.Equal(t, "192.168.1.1", out.Items[0].PublisherIP)
	require.Equal(t, 0, out.Items[0].Watchers)

	httpRequest(t, hc, http.MethodGet, "http://"+api.Addr().String()+"/v1/streams/list?itemsPerPage=1&page=1", nil, &out)

	require.Equal(t, 2, out.ItemCount)
	require.Equal(t, 2, out.PageCount)
	require.Len(t, out.Items, 1)
	require.Equal(t, "stream2", out.Items[0].Name)
}

func TestStreamsListInvalidPage(t *testing.T) {
	api := newTestAPI(t, newTestSession(t), nil)

	res, err := http.Get("http://" + api.Addr().String() + "/v1/streams/list?itemsPerPage=0")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	var out defs.APIError
	err = json.NewDecoder(res.Body).Decode(&out)
	require.NoError(t, err)
	require.Equal(t, "invalid items per page", out.Error)
}

func TestEvents(t *testing.T) {
	session := newTestSession(t)
	api := newTestAPI(t, session, nil)

	c, res, err := websocket.DefaultDialer.Dial("ws://"+api.Addr().String()+"/v1/events", nil)
	require.NoError(t, err)
	defer res.Body.Close()
	defer c.Close()

	nc := publishTestStream(t, session, "mystream")

	c.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck

	var ev broadcast.Event
	err = c.ReadJSON(&ev)
	require.NoError(t, err)
	require.Equal(t, broadcast.EventPublish, ev.Type)
	require.Equal(t, "mystream", ev.Name)
	require.Equal(t, nc.ID, ev.ConnID)

	nc.Close()

	err = c.ReadJSON(&ev)
	require.NoError(t, err)
	require.Equal(t, broadcast.EventUnpublish, ev.Type)
	require.Equal(t, "mystream", ev.Name)
}
