package rtmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/atomic"

	"github.com/bluenviron/rtmpcast/internal/asyncwriter"
	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/bytecounter"
)

const (
	readBufferSize = 4096
)

var errEvicted = errors.New("evicted")

// peer moves bytes between a socket and a rtmp.Conn.
// Bytes read from the socket are fed to the Conn by a reader routine;
// writes of the Conn are executed by an asyncwriter, that drains the Conn output
// into the socket.
type peer struct {
	nconn        net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	pingPeriod   time.Duration
	rconn        *rtmp.Conn
	parent       logger.Writer

	bc            *bytecounter.ReadWriter
	writer        *asyncwriter.Writer
	noReadTimeout atomic.Bool
}

// initialize must be called before rconn.Initialize.
func (p *peer) initialize(writeQueueSize int) error {
	var err error
	p.writer, err = asyncwriter.New(writeQueueSize, p.parent)
	if err != nil {
		return err
	}

	p.bc = bytecounter.NewReadWriter(p.nconn)
	p.rconn.Enqueue = p.push

	return nil
}

func (p *peer) push(cb func() error) bool {
	return p.writer.Push(func() error {
		err := cb()
		if err != nil {
			return err
		}
		return p.flush()
	})
}

func (p *peer) flush() error {
	buf := p.rconn.Output()
	if len(buf) == 0 {
		return nil
	}

	p.nconn.SetWriteDeadline(time.Now().Add(p.writeTimeout)) //nolint:errcheck
	_, err := p.bc.Write(buf)
	return err
}

// disableReadTimeout is called when the peer is not expected to send data regularly.
func (p *peer) disableReadTimeout() {
	p.noReadTimeout.Store(true)
}

// closeAfterFlush closes the peer once the queued writes have been sent.
// It returns false when the queue is full.
func (p *peer) closeAfterFlush(err error) bool {
	return p.writer.Push(func() error {
		return err
	})
}

func (p *peer) bytesReceived() uint64 {
	return p.bc.Reader.Count()
}

func (p *peer) bytesSent() uint64 {
	return p.bc.Writer.Count()
}

func (p *peer) run(ctx context.Context) error {
	p.writer.Start()
	defer p.writer.Stop()

	readerErr := make(chan error)
	go func() {
		readerErr <- p.runReader()
	}()

	var pingC <-chan time.Time
	if p.pingPeriod > 0 {
		pingTicker := time.NewTicker(p.pingPeriod)
		defer pingTicker.Stop()
		pingC = pingTicker.C
	}

	for {
		select {
		case err := <-readerErr:
			p.nconn.Close()
			return err

		case err := <-p.writer.Error():
			p.nconn.Close()
			<-readerErr
			return err

		case <-pingC:
			err := p.rconn.Ping()
			if err != nil {
				p.parent.Log(logger.Warn, "unable to send ping: %v", err)
			}

		case <-ctx.Done():
			p.nconn.Close()
			<-readerErr
			return fmt.Errorf("terminated")
		}
	}
}

func (p *peer) runReader() error {
	buf := make([]byte, readBufferSize)

	for {
		if p.noReadTimeout.Load() {
			p.nconn.SetReadDeadline(time.Time{}) //nolint:errcheck
		} else {
			p.nconn.SetReadDeadline(time.Now().Add(p.readTimeout)) //nolint:errcheck
		}

		n, err := p.bc.Read(buf)
		if n > 0 {
			err2 := p.rconn.Feed(buf[:n])
			if err2 != nil {
				return err2
			}
		}
		if err != nil {
			return err
		}
	}
}
