package httpp

import (
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
)

// exit when there's a panic inside the HTTP handler.
// https://github.com/golang/go/issues/16542
type handlerExitOnPanic struct {
	h http.Handler
}

func (h *handlerExitOnPanic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		err := recover()
		if err != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n\n%s", err, debug.Stack())
			os.Exit(1)
		}
	}()

	h.h.ServeHTTP(w, r)
}
