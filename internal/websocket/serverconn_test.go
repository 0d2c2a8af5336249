package websocket

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestServerConn(t *testing.T) {
	pingReceived := make(chan struct{})
	pingInterval = 100 * time.Millisecond
	defer func() { pingInterval = 30 * time.Second }()

	handlerDone := make(chan struct{})

	handler := func(w http.ResponseWriter, r *http.Request) {
		defer close(handlerDone)

		c, err := NewServerConn(w, r)
		require.NoError(t, err)
		defer c.Close()

		err = c.WriteJSON("testing")
		require.NoError(t, err)

		<-c.Done()
	}

	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer ln.Close()

	s := &http.Server{Handler: http.HandlerFunc(handler)}
	go s.Serve(ln) //nolint:errcheck
	defer s.Shutdown(context.Background()) //nolint:errcheck

	c, res, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/", nil)
	require.NoError(t, err)
	defer res.Body.Close()

	c.SetPingHandler(func(string) error {
		select {
		case <-pingReceived:
		default:
			close(pingReceived)
		}
		return nil
	})

	var msg string
	err = c.ReadJSON(&msg)
	require.NoError(t, err)
	require.Equal(t, "testing", msg)

	go c.ReadMessage() //nolint:errcheck

	<-pingReceived

	c.Close()

	select {
	case <-handlerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return")
	}
}
