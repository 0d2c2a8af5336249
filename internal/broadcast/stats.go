package broadcast

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/media"
)

// statsSink listens to a published stream, counts its bytes and describes its tracks.
type statsSink struct {
	session *Session
	entry   *publishedEntry

	bytesReceived atomic.Uint64

	mutex sync.Mutex
	video string
	audio string
}

func (s *statsSink) tracks() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := []string{}
	if s.video != "" {
		out = append(out, s.video)
	}
	if s.audio != "" {
		out = append(out, s.audio)
	}
	return out
}

// OnMediaFrame implements stream.Sink.
func (s *statsSink) OnMediaFrame(f *media.Frame) error {
	n := uint64(len(f.Payload))
	s.bytesReceived.Add(n)
	s.session.addTransfer(n * uint64(1+s.entry.nWatchers.Load()))

	if !f.IsConfig() {
		return nil
	}

	desc, ok := media.Describe(f)
	if !ok {
		return nil
	}

	s.mutex.Lock()
	track := &s.audio
	if f.Kind == media.KindVideo {
		track = &s.video
	}
	changed := *track != desc
	*track = desc
	s.mutex.Unlock()

	if changed {
		s.session.Log(logger.Info, "stream '%s': %s", s.entry.name, desc)
	}
	return nil
}

// OnMetaData implements stream.Sink.
func (*statsSink) OnMetaData(*media.MetaData) {}

// OnCommand implements stream.Sink.
func (*statsSink) OnCommand(*media.Command) {}

// OnStreamBegin implements stream.Sink.
func (*statsSink) OnStreamBegin() {}

// OnStreamEnd implements stream.Sink.
func (*statsSink) OnStreamEnd() {}

// OnStreamReset implements stream.Sink.
func (*statsSink) OnStreamReset() {}

// transferMeter measures bytes per second over one-second windows.
type transferMeter struct {
	mutex  sync.Mutex
	second int64
	cur    uint64
	prev   uint64
}

func (m *transferMeter) roll(now time.Time) {
	sec := now.Unix()
	if sec == m.second {
		return
	}

	if sec == m.second+1 {
		m.prev = m.cur
	} else {
		m.prev = 0
	}
	m.cur = 0
	m.second = sec
}

func (m *transferMeter) add(now time.Time, n uint64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.roll(now)
	m.cur += n
}

// rate returns the greater between the bytes of the current and of the previous second.
func (m *transferMeter) rate(now time.Time) uint64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.roll(now)
	if m.cur > m.prev {
		return m.cur
	}
	return m.prev
}
