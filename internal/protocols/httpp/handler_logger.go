package httpp

import (
	"bufio"
	"net"
	"net/http"

	"github.com/bluenviron/rtmpcast/internal/logger"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.status = http.StatusSwitchingProtocols
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *statusWriter) Flush() {
	http.NewResponseController(w.ResponseWriter).Flush() //nolint:errcheck
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// log requests and responses.
type handlerLogger struct {
	h      http.Handler
	parent logger.Writer
}

func (h *handlerLogger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

	h.h.ServeHTTP(sw, r)

	h.parent.Log(logger.Debug, "[conn %v] %s %s %d", r.RemoteAddr, r.Method, r.URL.Path, sw.status)
}
