// Package metrics contains the metrics provider.
package metrics

import (
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/rtmpcast/internal/conf"
	"github.com/bluenviron/rtmpcast/internal/defs"
	"github.com/bluenviron/rtmpcast/internal/externalcmd"
	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/protocols/httpp"
)

func interfaceIsEmpty(i interface{}) bool {
	return reflect.ValueOf(i).Kind() != reflect.Ptr || reflect.ValueOf(i).IsNil()
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return strings.ReplaceAll(v, "\n", `\n`)
}

func metric(key string, tags string, value int64) string {
	return key + tags + " " + strconv.FormatInt(value, 10) + "\n"
}

// Metrics is a metrics provider.
type Metrics struct {
	Address         string
	ReadTimeout     conf.Duration
	WriteTimeout    conf.Duration
	RTMPServer      defs.APIRTMPServer
	Session         defs.APISession
	ExternalCmdPool *externalcmd.Pool
	Parent          logger.Writer

	httpServer *httpp.Server
}

// Initialize initializes Metrics.
func (m *Metrics) Initialize() error {
	router := gin.New()
	router.SetTrustedProxies(nil) //nolint:errcheck

	router.GET("/metrics", m.onMetrics)

	m.httpServer = &httpp.Server{
		Address:      m.Address,
		ReadTimeout:  time.Duration(m.ReadTimeout),
		WriteTimeout: time.Duration(m.WriteTimeout),
		Handler:      router,
		Parent:       m,
	}
	err := m.httpServer.Initialize()
	if err != nil {
		return err
	}

	m.Log(logger.Info, "listener opened on "+m.Address)

	return nil
}

// Close closes Metrics.
func (m *Metrics) Close() {
	m.Log(logger.Info, "listener is closing")
	m.httpServer.Close()
}

// Addr returns the listening address.
func (m *Metrics) Addr() net.Addr {
	return m.httpServer.Addr()
}

// Log implements logger.Writer.
func (m *Metrics) Log(level logger.Level, format string, args ...interface{}) {
	m.Parent.Log(level, "[metrics] "+format, args...)
}

func (m *Metrics) onMetrics(ctx *gin.Context) {
	out := ""

	streams := m.Session.PublishedStreams()

	if len(streams) != 0 {
		for _, s := range streams {
			tags := "{name=\"" + escapeLabel(s.Name) + "\"}"
			out += metric("streams", tags, 1)
			out += metric("streams_watchers", tags, int64(s.Watchers))
			out += metric("streams_bytes_received", tags, int64(s.BytesReceived))
			out += metric("streams_transmitters", tags, int64(len(s.Transmitters)))
		}
	} else {
		out += metric("streams", "", 0)
	}

	out += metric("transfer_bytes_per_second", "", int64(m.Session.Transfer()))

	if !interfaceIsEmpty(m.RTMPServer) {
		data, err := m.RTMPServer.APIConnsList()
		if err == nil {
			counts := map[defs.APIRTMPConnState]int64{}
			var bytesReceived int64
			var bytesSent int64
			var framesDropped int64

			for _, i := range data.Items {
				counts[i.State]++
				bytesReceived += int64(i.BytesReceived)
				bytesSent += int64(i.BytesSent)
				framesDropped += int64(i.FramesDropped)
			}

			for _, state := range []defs.APIRTMPConnState{
				defs.APIRTMPConnStateIdle,
				defs.APIRTMPConnStateRead,
				defs.APIRTMPConnStatePublish,
			} {
				out += metric("rtmp_conns", "{state=\""+string(state)+"\"}", counts[state])
			}

			out += metric("rtmp_conns_bytes_received", "", bytesReceived)
			out += metric("rtmp_conns_bytes_sent", "", bytesSent)
			out += metric("rtmp_conns_frames_dropped", "", framesDropped)
		}
	}

	if m.ExternalCmdPool != nil {
		out += metric("hooks_running", "", m.ExternalCmdPool.Running())
	}

	ctx.Writer.Header().Set("Content-Type", "text/plain; version=0.0.4")
	ctx.Writer.WriteHeader(http.StatusOK)
	ctx.Writer.Write([]byte(out)) //nolint:errcheck
}
