// Package test contains test utilities.
package test

import (
	"fmt"
	"sync"

	"github.com/bluenviron/rtmpcast/internal/logger"
)

type nilLogger struct{}

func (nilLogger) Log(_ logger.Level, _ string, _ ...interface{}) {
}

// NilLogger is a logger to /dev/null
var NilLogger logger.Writer = &nilLogger{}

type testLogger struct {
	cb func(level logger.Level, format string, args ...interface{})
}

func (l *testLogger) Log(level logger.Level, format string, args ...interface{}) {
	l.cb(level, format, args...)
}

// Logger returns a dummy logger.
func Logger(cb func(logger.Level, string, ...interface{})) logger.Writer {
	return &testLogger{cb: cb}
}

// RecordingLogger is a logger that stores entries.
type RecordingLogger struct {
	mutex   sync.Mutex
	entries []string
}

// Log implements logger.Writer.
func (l *RecordingLogger) Log(_ logger.Level, format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

// Entries returns the stored entries.
func (l *RecordingLogger) Entries() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]string(nil), l.entries...)
}
