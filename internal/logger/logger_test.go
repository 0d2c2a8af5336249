package logger

import (
	"bytes"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoggerToStdout(t *testing.T) {
	var buf bytes.Buffer

	l := &Logger{
		Destinations: []Destination{DestinationStdout},
		timeNow:      func() time.Time { return time.Date(2003, 11, 4, 23, 15, 8, 431232, time.UTC) },
		stdout:       &buf,
	}
	err := l.Initialize()
	require.NoError(t, err)
	defer l.Close()

	l.Log(Info, "test format %d", 123)
	l.Log(Debug, "hidden")

	require.Equal(t, "2003/11/04 23:15:08 INF test format 123\n", buf.String())
}

func TestLoggerToFile(t *testing.T) {
	tempFile, err := os.CreateTemp(os.TempDir(), "rtc-logger-")
	require.NoError(t, err)
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	l := &Logger{
		Level:        Debug,
		Destinations: []Destination{DestinationFile},
		File:         tempFile.Name(),
		timeNow:      func() time.Time { return time.Date(2003, 11, 4, 23, 15, 8, 0, time.UTC) },
	}
	err = l.Initialize()
	require.NoError(t, err)

	l.Log(Debug, "test format %d", 123)
	l.Log(Error, "failure")
	l.Close()

	buf, err := os.ReadFile(tempFile.Name())
	require.NoError(t, err)
	require.Equal(t, "2003/11/04 23:15:08 DEB test format 123\n"+
		"2003/11/04 23:15:08 ERR failure\n", string(buf))
}

type testWriter struct {
	msgs []string
}

func (w *testWriter) Log(_ Level, format string, args ...interface{}) {
	w.msgs = append(w.msgs, fmt.Sprintf(format, args...))
}

func TestLimitedLogger(t *testing.T) {
	w := &testWriter{}
	l := NewLimitedLogger(w)

	l.Log(Warn, "queue is full")
	l.Log(Warn, "queue is full")
	l.Log(Warn, "queue is full")
	require.Equal(t, []string{"queue is full"}, w.msgs)

	l.(*limitedLogger).lastPrinted = time.Time{}
	l.Log(Warn, "queue is full")
	require.Equal(t, []string{"queue is full", "queue is full (2 similar messages suppressed)"}, w.msgs)
}
