package stream

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtmpcast/internal/media"
	"github.com/bluenviron/rtmpcast/internal/protocols/rtmp/amf0"
)

type recorder struct {
	mutex  sync.Mutex
	events []string
	frames []*media.Frame
}

func (r *recorder) OnMediaFrame(f *media.Frame) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, fmt.Sprintf("frame %s %d", f.Payload, f.Timestamp))
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) OnMetaData(m *media.MetaData) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, fmt.Sprintf("metadata %d", m.Timestamp))
}

func (r *recorder) OnCommand(c *media.Command) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, "command "+c.Name)
}

func (r *recorder) OnStreamBegin() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, "begin")
}

func (r *recorder) OnStreamEnd() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, "end")
}

func (r *recorder) OnStreamReset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, "reset")
}

func aacConfig(ts uint32) *media.Frame {
	return &media.Frame{
		Kind:      media.KindAudio,
		Timestamp: ts,
		Audio: media.AudioHeader{
			Codec:         media.AudioCodecAAC,
			Rate:          media.AudioRate44100,
			Is16Bit:       true,
			Stereo:        true,
			AACPacketType: media.AACPacketTypeSequenceHeader,
		},
		Payload: []byte("aacconf"),
	}
}

func aacFrame(ts uint32, name string) *media.Frame {
	f := aacConfig(ts)
	f.Audio.AACPacketType = media.AACPacketTypeRaw
	f.Payload = []byte(name)
	return f
}

func avcConfig(ts uint32) *media.Frame {
	return &media.Frame{
		Kind:      media.KindVideo,
		Timestamp: ts,
		Video: media.VideoHeader{
			FrameType:     media.FrameTypeKey,
			Codec:         media.VideoCodecAVC,
			AVCPacketType: media.AVCPacketTypeSequenceHeader,
		},
		Payload: []byte("avcconf"),
	}
}

func videoFrame(ts uint32, intra bool, name string) *media.Frame {
	ft := media.FrameTypeInter
	if intra {
		ft = media.FrameTypeKey
	}
	return &media.Frame{
		Kind:      media.KindVideo,
		Timestamp: ts,
		Video: media.VideoHeader{
			FrameType:     ft,
			Codec:         media.VideoCodecAVC,
			AVCPacketType: media.AVCPacketTypeNALU,
		},
		Payload: []byte(name),
	}
}

func newPiped(waitIntra bool, rewrite bool, gopCache bool) *Piped {
	p := &Piped{
		WaitIntra:         waitIntra,
		RewriteTimestamps: rewrite,
		GOPCache:          gopCache,
	}
	p.Initialize()
	return p
}

func TestStreamListeners(t *testing.T) {
	s := NewStream(NewRegistry())

	r1 := &recorder{}
	r2 := &recorder{}
	h1 := s.Attach(r1)
	h2 := s.Attach(r2)
	require.Equal(t, 2, s.ListenerCount())

	s.SendCommand(&media.Command{Name: "onFI"})
	s.Detach(h1)
	s.SendStreamBegin()

	require.Equal(t, []string{"command onFI"}, r1.events)
	require.Equal(t, []string{"command onFI", "begin"}, r2.events)

	// a sink that disappears from the registry is skipped and pruned
	s.Registry().Unregister(h2)
	s.SendStreamEnd()
	require.Equal(t, []string{"command onFI", "begin"}, r2.events)
	require.Equal(t, 0, s.ListenerCount())
}

func TestStreamDetachDuringFanOut(t *testing.T) {
	s := NewStream(NewRegistry())

	r := &recorder{}
	var h Handle
	h = s.Attach(&SinkFuncs{
		MediaFrame: func(*media.Frame) error {
			s.Detach(h)
			return nil
		},
	})
	s.Attach(r)

	err := s.SendMediaFrame(videoFrame(0, true, "A"))
	require.NoError(t, err)
	require.Equal(t, []string{"frame A 0"}, r.events)
	require.Equal(t, 1, s.ListenerCount())
}

func TestPipedWaitIntra(t *testing.T) {
	p := newPiped(true, true, false)

	r := &recorder{}
	p.Attach(r)

	require.NoError(t, p.OnMediaFrame(aacConfig(1000)))
	require.NoError(t, p.OnMediaFrame(videoFrame(1010, false, "P")))
	require.NoError(t, p.OnMediaFrame(avcConfig(1020)))
	require.NoError(t, p.OnMediaFrame(videoFrame(1020, true, "I")))

	require.Equal(t, []string{
		"begin",
		"frame aacconf 0",
		"frame avcconf 0",
		"frame I 0",
	}, r.events)
	require.Equal(t, uint32(1020), p.First())
}

func TestPipedStartFlushesMetaData(t *testing.T) {
	p := newPiped(true, true, false)

	r := &recorder{}
	p.Attach(r)

	p.OnMetaData(&media.MetaData{Timestamp: 0, Values: amf0.Data{"onMetaData"}})
	require.Empty(t, r.events)

	require.NoError(t, p.OnMediaFrame(avcConfig(500)))
	require.NoError(t, p.OnMediaFrame(aacConfig(510)))

	require.Equal(t, []string{
		"begin",
		"metadata 0",
		"frame avcconf 0",
		"frame aacconf 10",
	}, r.events)
}

func TestPipedLateAttach(t *testing.T) {
	p := newPiped(false, false, false)

	p.OnMetaData(&media.MetaData{Timestamp: 0, Values: amf0.Data{"onMetaData"}})
	require.NoError(t, p.OnMediaFrame(avcConfig(0)))
	require.NoError(t, p.OnMediaFrame(aacConfig(0)))
	require.NoError(t, p.OnMediaFrame(videoFrame(40, true, "A")))
	require.NoError(t, p.OnMediaFrame(videoFrame(80, false, "B")))

	r := &recorder{}
	p.Attach(r)
	require.Equal(t, []string{
		"metadata 0",
		"frame aacconf 0",
		"frame avcconf 0",
	}, r.events)

	require.NoError(t, p.OnMediaFrame(videoFrame(120, false, "C")))
	require.Equal(t, "frame C 120", r.events[3])
}

func TestPipedGOPCache(t *testing.T) {
	p := newPiped(false, false, true)

	require.NoError(t, p.OnMediaFrame(videoFrame(0, true, "A")))
	require.NoError(t, p.OnMediaFrame(videoFrame(40, false, "B")))
	require.NoError(t, p.OnMediaFrame(videoFrame(80, false, "C")))
	require.NoError(t, p.OnMediaFrame(videoFrame(120, true, "D")))
	require.NoError(t, p.OnMediaFrame(videoFrame(160, false, "E")))

	r := &recorder{}
	p.Attach(r)
	require.Equal(t, []string{
		"frame D 120",
		"frame E 160",
	}, r.events)

	require.NoError(t, p.OnMediaFrame(videoFrame(200, false, "F")))
	require.Equal(t, []string{
		"frame D 120",
		"frame E 160",
		"frame F 200",
	}, r.events)
}

func TestPipedRewriteRestoresTimestamp(t *testing.T) {
	p := newPiped(false, true, false)

	for i := 0; i < 3; i++ {
		p.Attach(&recorder{})
	}

	f := videoFrame(1000, true, "A")
	require.NoError(t, p.OnMediaFrame(f))
	require.Equal(t, uint32(1000), f.Timestamp)

	f = videoFrame(1040, false, "B")
	require.NoError(t, p.OnMediaFrame(f))
	require.Equal(t, uint32(1040), f.Timestamp)
}

func TestPipedFrameBeforeFirst(t *testing.T) {
	p := newPiped(false, true, false)

	r := &recorder{}
	p.Attach(r)

	require.NoError(t, p.OnMediaFrame(videoFrame(1000, true, "A")))

	err := p.OnMediaFrame(aacFrame(900, "X"))
	require.True(t, errors.Is(err, ErrFrameBeforeFirst))

	require.NoError(t, p.OnMediaFrame(videoFrame(1040, false, "B")))
	require.Equal(t, []string{
		"begin",
		"frame A 0",
		"frame B 40",
	}, r.events)
	require.Nil(t, p.AACConfig())
}

func TestPipedChain(t *testing.T) {
	hub := newPiped(false, false, true)

	watcher := newPiped(true, true, false)
	r := &recorder{}
	watcher.Attach(r)

	require.NoError(t, hub.OnMediaFrame(avcConfig(0)))
	require.NoError(t, hub.OnMediaFrame(aacConfig(0)))
	require.NoError(t, hub.OnMediaFrame(videoFrame(2000, true, "A")))
	require.NoError(t, hub.OnMediaFrame(aacFrame(2010, "a")))

	h := hub.Attach(watcher)
	require.NoError(t, hub.OnMediaFrame(videoFrame(2040, false, "B")))

	require.Equal(t, []string{
		"begin",
		"frame aacconf 0",
		"frame avcconf 0",
		"frame A 2000",
		"frame a 2010",
		"frame B 2040",
	}, r.events)

	hub.Detach(h)
	require.NoError(t, hub.OnMediaFrame(videoFrame(2080, false, "C")))
	require.Len(t, r.events, 6)
}

func TestPipedStreamEndAndReset(t *testing.T) {
	p := newPiped(false, true, false)

	r := &recorder{}
	p.Attach(r)

	require.NoError(t, p.OnMediaFrame(videoFrame(1000, true, "A")))
	p.OnStreamReset()
	require.False(t, p.Started())

	require.NoError(t, p.OnMediaFrame(videoFrame(10, true, "B")))
	p.OnStreamEnd()
	require.Nil(t, p.VideoConfig())

	require.Equal(t, []string{
		"begin",
		"frame A 0",
		"reset",
		"begin",
		"frame B 0",
		"end",
	}, r.events)
}

func TestPipedReset(t *testing.T) {
	p := newPiped(false, false, true)

	r := &recorder{}
	p.Attach(r)

	p.OnMetaData(&media.MetaData{Timestamp: 5000, Values: amf0.Data{"onMetaData"}})
	require.NoError(t, p.OnMediaFrame(avcConfig(5000)))
	require.NoError(t, p.OnMediaFrame(videoFrame(5000, true, "A")))

	p.Reset()
	require.False(t, p.Started())
	require.Nil(t, p.VideoConfig())
	require.Equal(t, []string{
		"begin",
		"metadata 5000",
		"frame avcconf 5000",
		"frame A 5000",
	}, r.events)

	r2 := &recorder{}
	p.Attach(r2)
	require.Empty(t, r2.events)

	require.NoError(t, p.OnMediaFrame(videoFrame(0, true, "B")))
	require.Equal(t, []string{"begin", "frame B 0"}, r2.events)
}

func TestPipedConcurrentAttach(t *testing.T) {
	p := newPiped(false, false, false)
	require.NoError(t, p.OnMediaFrame(avcConfig(0)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 1000; i++ {
			p.OnMediaFrame(videoFrame(uint32(i), false, "x")) //nolint:errcheck
		}
	}()

	var recs []*recorder
	for i := 0; i < 50; i++ {
		r := &recorder{}
		p.Attach(r)
		recs = append(recs, r)
	}
	<-done

	for _, r := range recs {
		r.mutex.Lock()
		require.Equal(t, "frame avcconf 0", r.events[0])
		r.mutex.Unlock()
	}
}
