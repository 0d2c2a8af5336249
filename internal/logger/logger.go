// Package logger contains a logger implementation.
package logger

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gookit/color"
)

// Level is a log level.
type Level int

// Log levels.
const (
	Debug Level = iota + 1
	Info
	Warn
	Error
)

// Destination is a log destination.
type Destination int

const (
	// DestinationStdout writes logs to the standard output.
	DestinationStdout Destination = iota

	// DestinationFile writes logs to a file.
	DestinationFile

	// DestinationSyslog writes logs to the system logger.
	DestinationSyslog
)

// Writer is an object that provides a log method.
type Writer interface {
	Log(Level, string, ...interface{})
}

type destination interface {
	log(time.Time, Level, string, ...interface{})
	close()
}

// Logger is a log handler.
type Logger struct {
	Level        Level
	Destinations []Destination
	File         string
	SysLogPrefix string

	timeNow func() time.Time
	stdout  io.Writer

	destinations []destination
	mutex        sync.Mutex
}

// Initialize initializes Logger.
func (l *Logger) Initialize() error {
	if l.Level == 0 {
		l.Level = Info
	}
	if l.timeNow == nil {
		l.timeNow = time.Now
	}
	if l.stdout == nil {
		l.stdout = os.Stdout
	}
	if l.SysLogPrefix == "" {
		l.SysLogPrefix = "rtmpcast"
	}

	for _, destType := range l.Destinations {
		switch destType {
		case DestinationStdout:
			l.destinations = append(l.destinations, newDestionationStdout(l.stdout))

		case DestinationFile:
			dest, err := newDestinationFile(l.File)
			if err != nil {
				l.Close()
				return err
			}
			l.destinations = append(l.destinations, dest)

		case DestinationSyslog:
			dest, err := newDestinationSyslog(l.SysLogPrefix)
			if err != nil {
				l.Close()
				return err
			}
			l.destinations = append(l.destinations, dest)
		}
	}

	return nil
}

// Close closes a log handler.
func (l *Logger) Close() {
	for _, dest := range l.destinations {
		dest.close()
	}
	l.destinations = nil
}

func writeTime(buf *bytes.Buffer, t time.Time, useColor bool) {
	intbuf := make([]byte, 0, 20)
	intbuf = t.AppendFormat(intbuf, "2006/01/02 15:04:05 ")

	if useColor {
		buf.WriteString(color.RenderString(color.Gray.Code(), string(intbuf)))
	} else {
		buf.Write(intbuf)
	}
}

func writeLevel(buf *bytes.Buffer, level Level, useColor bool) {
	switch level {
	case Debug:
		if useColor {
			buf.WriteString(color.RenderString(color.Debug.Code(), "DEB"))
		} else {
			buf.WriteString("DEB")
		}

	case Info:
		if useColor {
			buf.WriteString(color.RenderString(color.Green.Code(), "INF"))
		} else {
			buf.WriteString("INF")
		}

	case Warn:
		if useColor {
			buf.WriteString(color.RenderString(color.Warn.Code(), "WAR"))
		} else {
			buf.WriteString("WAR")
		}

	case Error:
		if useColor {
			buf.WriteString(color.RenderString(color.Error.Code(), "ERR"))
		} else {
			buf.WriteString("ERR")
		}

	default:
		buf.WriteString("L" + strconv.Itoa(int(level)))
	}
	buf.WriteByte(' ')
}

// Log writes a log entry.
func (l *Logger) Log(level Level, format string, args ...interface{}) {
	if level < l.Level {
		return
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	t := l.timeNow()

	for _, dest := range l.destinations {
		dest.log(t, level, format, args...)
	}
}
