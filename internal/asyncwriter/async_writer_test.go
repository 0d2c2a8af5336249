package asyncwriter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtmpcast/internal/logger"
)

type nilLogger struct{}

func (nilLogger) Log(logger.Level, string, ...interface{}) {}

func TestAsyncWriter(t *testing.T) {
	w, err := New(512, nilLogger{})
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	w.Push(func() error {
		return fmt.Errorf("testerror")
	})

	err = <-w.Error()
	require.EqualError(t, err, "testerror")
}

func TestAsyncWriterOrder(t *testing.T) {
	w, err := New(8, nilLogger{})
	require.NoError(t, err)

	var out []int
	done := make(chan struct{})

	for i := 0; i < 3; i++ {
		i := i
		w.Push(func() error {
			out = append(out, i)
			return nil
		})
	}
	w.Push(func() error {
		close(done)
		return nil
	})

	w.Start()
	defer w.Stop()

	<-done
	require.Equal(t, []int{0, 1, 2}, out)
}

func TestAsyncWriterFull(t *testing.T) {
	w, err := New(2, nilLogger{})
	require.NoError(t, err)

	require.True(t, w.Push(func() error { return nil }))
	require.True(t, w.Push(func() error { return nil }))
	require.False(t, w.Push(func() error { return nil }))
	require.Equal(t, uint64(1), w.Dropped())
}

func TestAsyncWriterInvalidSize(t *testing.T) {
	_, err := New(3, nilLogger{})
	require.Error(t, err)
}
