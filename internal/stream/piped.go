package stream

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bluenviron/rtmpcast/internal/media"
)

// ErrFrameBeforeFirst is returned when a frame is older than the first forwarded frame.
var ErrFrameBeforeFirst = errors.New("frame timestamp is before the first frame")

// Piped is a stream that is both a Sink of an upstream source
// and a Source for its own listeners.
//
// It keeps the last metadata and the last codec configurations, and
// delivers them to listeners that attach later. Optionally it waits
// for a video intra frame before forwarding anything, rewrites
// timestamps relative to the first forwarded frame, and keeps every
// frame since the last intra frame (GOP cache).
type Piped struct {
	Registry          *Registry
	WaitIntra         bool
	RewriteTimestamps bool
	GOPCache          bool

	*Stream

	mutex       sync.Mutex
	started     bool
	first       uint32
	metaData    *media.MetaData
	videoConfig *media.Frame
	aacConfig   *media.Frame
	gop         []*media.Frame
}

// Initialize initializes Piped.
func (p *Piped) Initialize() {
	if p.Registry == nil {
		p.Registry = NewRegistry()
	}
	p.Stream = NewStream(p.Registry)
}

// Configure changes the gating and the timestamp rewriting policies.
// It must be called before the first frame is received.
func (p *Piped) Configure(waitIntra bool, rewriteTimestamps bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.WaitIntra = waitIntra
	p.RewriteTimestamps = rewriteTimestamps
}

// Started returns whether the first frame has been forwarded.
func (p *Piped) Started() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.started
}

// First returns the timestamp of the first forwarded frame.
func (p *Piped) First() uint32 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.first
}

// VideoConfig returns the last video configuration.
func (p *Piped) VideoConfig() *media.Frame {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.videoConfig
}

// AACConfig returns the last AAC configuration.
func (p *Piped) AACConfig() *media.Frame {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.aacConfig
}

func (p *Piped) rewriteFrame(f *media.Frame, first uint32, clamp bool) *media.Frame {
	if !p.RewriteTimestamps {
		return f
	}

	c := *f
	if c.Timestamp >= first {
		c.Timestamp -= first
	} else if clamp {
		c.Timestamp = 0
	}
	return &c
}

func (p *Piped) rewriteMetaData(m *media.MetaData, first uint32) *media.MetaData {
	if !p.RewriteTimestamps {
		return m
	}

	c := *m
	if c.Timestamp >= first {
		c.Timestamp -= first
	} else {
		c.Timestamp = 0
	}
	return &c
}

// Attach registers a sink, delivers the cached metadata, configurations
// and GOP, then adds the sink to the listener set.
// Frames emitted concurrently are delivered either inside the cache
// burst or after it.
func (p *Piped) Attach(sink Sink) Handle {
	h := p.Registry.Register(sink)

	p.mutex.Lock()
	defer p.mutex.Unlock()

	first := p.first
	rewrite := p.started

	if p.metaData != nil {
		if rewrite {
			sink.OnMetaData(p.rewriteMetaData(p.metaData, first))
		} else {
			sink.OnMetaData(p.metaData)
		}
	}

	for _, f := range []*media.Frame{p.aacConfig, p.videoConfig} {
		if f == nil {
			continue
		}
		if rewrite {
			f = p.rewriteFrame(f, first, true)
		}
		sink.OnMediaFrame(f) //nolint:errcheck
	}

	for _, f := range p.gop {
		if rewrite {
			f = p.rewriteFrame(f, first, true)
		}
		sink.OnMediaFrame(f) //nolint:errcheck
	}

	p.Stream.AddListener(h)
	return h
}

// OnMediaFrame implements Sink.
func (p *Piped) OnMediaFrame(f *media.Frame) error {
	p.mutex.Lock()

	set := *p.listeners.Load()

	isVideoConfig := f.IsVideoConfig()
	isAACConfig := f.IsAACConfig()

	if p.started && f.Timestamp < p.first {
		first := p.first
		p.mutex.Unlock()
		return fmt.Errorf("%w (%d < %d)", ErrFrameBeforeFirst, f.Timestamp, first)
	}

	if isAACConfig {
		p.aacConfig = f.Clone()
	} else if isVideoConfig {
		p.videoConfig = f.Clone()
	}

	if !p.started {
		if p.WaitIntra && !f.IsIntra() {
			p.mutex.Unlock()
			return nil
		}

		p.started = true
		p.first = f.Timestamp
		p.updateGOP(f, isVideoConfig || isAACConfig)

		var flush []*media.Frame
		if p.aacConfig != nil && !isAACConfig {
			flush = append(flush, p.aacConfig)
		}
		if p.videoConfig != nil && !isVideoConfig {
			flush = append(flush, p.videoConfig)
		}

		metaData := p.metaData
		first := p.first
		p.mutex.Unlock()

		p.forEach(set, func(sink Sink) { sink.OnStreamBegin() })

		if metaData != nil {
			m := p.rewriteMetaData(metaData, first)
			p.forEach(set, func(sink Sink) { sink.OnMetaData(m) })
		}

		for _, cf := range flush {
			p.sendMediaFrame(set, p.rewriteFrame(cf, first, true)) //nolint:errcheck
		}

		return p.sendMediaFrame(set, p.rewriteFrame(f, first, true))
	}

	p.updateGOP(f, isVideoConfig || isAACConfig)
	first := p.first
	p.mutex.Unlock()

	return p.sendMediaFrame(set, p.rewriteFrame(f, first, false))
}

func (p *Piped) updateGOP(f *media.Frame, isConfig bool) {
	if !p.GOPCache || isConfig {
		return
	}

	if f.IsIntra() {
		for i := range p.gop {
			p.gop[i] = nil
		}
		p.gop = append(p.gop[:0], f.Clone())
		return
	}

	if len(p.gop) != 0 {
		p.gop = append(p.gop, f.Clone())
	}
}

// Reset clears the first frame, metadata, configurations and GOP
// without notifying listeners.
func (p *Piped) Reset() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.started = false
	p.first = 0
	p.metaData = nil
	p.videoConfig = nil
	p.aacConfig = nil
	p.gop = nil
}

// OnMetaData implements Sink.
func (p *Piped) OnMetaData(m *media.MetaData) {
	p.mutex.Lock()

	p.metaData = m.Clone()

	if !p.started {
		p.mutex.Unlock()
		return
	}

	set := *p.listeners.Load()
	first := p.first
	p.mutex.Unlock()

	m = p.rewriteMetaData(m, first)
	p.forEach(set, func(sink Sink) { sink.OnMetaData(m) })
}

// OnCommand implements Sink.
func (p *Piped) OnCommand(c *media.Command) {
	p.SendCommand(c)
}

// OnStreamBegin implements Sink.
// The stream begin is signaled when the first frame is forwarded.
func (p *Piped) OnStreamBegin() {
}

// OnStreamEnd implements Sink.
// The stream state and caches are cleared, so that a following stream
// starts from scratch.
func (p *Piped) OnStreamEnd() {
	p.mutex.Lock()
	p.started = false
	p.first = 0
	p.metaData = nil
	p.videoConfig = nil
	p.aacConfig = nil
	p.gop = nil
	p.mutex.Unlock()

	p.SendStreamEnd()
}

// OnStreamReset implements Sink.
// The first frame and the GOP are cleared; configurations are kept.
func (p *Piped) OnStreamReset() {
	p.mutex.Lock()
	p.started = false
	p.first = 0
	p.gop = nil
	p.mutex.Unlock()

	p.SendStreamReset()
}
