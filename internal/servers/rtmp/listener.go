package rtmp

import (
	"errors"
	"net"
	"sync"
	"time"
)

const (
	tcpKeepAlivePeriod = 15 * time.Second
	maxAcceptPause     = time.Second
)

// listener accepts TCP connections and hands them to the server.
type listener struct {
	ln     net.Listener
	wg     *sync.WaitGroup
	parent *Server
}

func (l *listener) initialize() {
	l.wg.Add(1)
	go l.run()
}

func (l *listener) run() {
	defer l.wg.Done()

	err := l.runInner()

	l.parent.acceptError(err)
}

func (l *listener) runInner() error {
	var pause time.Duration

	for {
		nconn, err := l.ln.Accept()
		if err != nil {
			// file descriptor exhaustion and similar conditions
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				pause = min(max(pause*2, 5*time.Millisecond), maxAcceptPause)
				time.Sleep(pause)
				continue
			}
			return err
		}
		pause = 0

		if tc, ok := nconn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)                       //nolint:errcheck
			tc.SetKeepAlive(true)                     //nolint:errcheck
			tc.SetKeepAlivePeriod(tcpKeepAlivePeriod) //nolint:errcheck
		}

		l.parent.newConn(nconn)
	}
}
