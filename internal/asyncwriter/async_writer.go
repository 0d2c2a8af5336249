// Package asyncwriter contains an asynchronous writer.
package asyncwriter

import (
	"fmt"

	"github.com/bluenviron/gortsplib/v4/pkg/ringbuffer"
	"go.uber.org/atomic"

	"github.com/bluenviron/rtmpcast/internal/logger"
)

// Writer is an asynchronous writer.
// Callbacks are executed in order by a dedicated routine.
// When the queue is full, new callbacks are discarded.
type Writer struct {
	writeErrLogger logger.Writer
	buffer         *ringbuffer.RingBuffer
	dropped        *atomic.Uint64

	// out
	err chan error
}

// New allocates a Writer.
// queueSize must be a power of two.
func New(
	queueSize int,
	parent logger.Writer,
) (*Writer, error) {
	buffer, err := ringbuffer.New(uint64(queueSize))
	if err != nil {
		return nil, err
	}

	return &Writer{
		writeErrLogger: logger.NewLimitedLogger(parent),
		buffer:         buffer,
		dropped:        atomic.NewUint64(0),
		err:            make(chan error),
	}, nil
}

// Start starts the writer routine.
func (w *Writer) Start() {
	go w.run()
}

// Stop stops the writer routine.
func (w *Writer) Stop() {
	w.buffer.Close()
	<-w.err
}

// Error returns whenever there's an error.
func (w *Writer) Error() chan error {
	return w.err
}

// Dropped returns the number of discarded callbacks.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

func (w *Writer) run() {
	w.err <- w.runInner()
	close(w.err)
}

func (w *Writer) runInner() error {
	for {
		cb, ok := w.buffer.Pull()
		if !ok {
			return fmt.Errorf("terminated")
		}

		err := cb.(func() error)()
		if err != nil {
			return err
		}
	}
}

// Push appends a callback to the queue.
// It returns false when the queue is full and the callback has been discarded.
func (w *Writer) Push(cb func() error) bool {
	ok := w.buffer.Push(cb)
	if !ok {
		w.dropped.Inc()
		w.writeErrLogger.Log(logger.Warn, "write queue is full")
	}
	return ok
}
