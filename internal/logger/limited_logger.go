package logger

import (
	"sync"
	"time"
)

const (
	minIntervalBetweenWarnings = 1 * time.Second
)

type limitedLogger struct {
	w           Writer
	mutex       sync.Mutex
	lastPrinted time.Time
	suppressed  int
}

// NewLimitedLogger is a wrapper around a Writer that limits printed messages
// to one per second. Suppressed messages are counted and reported with
// the next printed one.
func NewLimitedLogger(w Writer) Writer {
	return &limitedLogger{
		w: w,
	}
}

// Log is the main logging function.
func (l *limitedLogger) Log(level Level, format string, args ...interface{}) {
	now := time.Now()

	l.mutex.Lock()

	if now.Sub(l.lastPrinted) < minIntervalBetweenWarnings {
		l.suppressed++
		l.mutex.Unlock()
		return
	}

	l.lastPrinted = now
	suppressed := l.suppressed
	l.suppressed = 0
	l.mutex.Unlock()

	if suppressed != 0 {
		format += " (%d similar messages suppressed)"
		args = append(args, suppressed)
	}

	if l.w != nil {
		l.w.Log(level, format, args...)
	}
}
