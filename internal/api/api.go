// Package api contains the API server.
package api //nolint:revive

import (
	"context"
	"net"
	"net/http"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/rtmpcast/internal/conf"
	"github.com/bluenviron/rtmpcast/internal/defs"
	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/protocols/httpp"
)

func interfaceIsEmpty(i interface{}) bool {
	return reflect.ValueOf(i).Kind() != reflect.Ptr || reflect.ValueOf(i).IsNil()
}

// API is an API server.
type API struct {
	Version      string
	Started      time.Time
	Address      string
	ReadTimeout  conf.Duration
	WriteTimeout conf.Duration
	RTMPServer   defs.APIRTMPServer
	Session      defs.APISession
	Parent       logger.Writer

	ctx        context.Context
	ctxCancel  func()
	httpServer *httpp.Server
}

// Initialize initializes API.
func (a *API) Initialize() error {
	a.ctx, a.ctxCancel = context.WithCancel(context.Background())

	router := gin.New()
	router.SetTrustedProxies(nil) //nolint:errcheck

	group := router.Group("/v1")

	group.GET("/info", a.onInfo)

	group.GET("/streams/list", a.onStreamsList)
	group.GET("/events", a.onEvents)

	if !interfaceIsEmpty(a.RTMPServer) {
		group.GET("/conns/list", a.onConnsList)
		group.GET("/conns/get/:id", a.onConnsGet)
		group.POST("/conns/kick/:id", a.onConnsKick)
	}

	a.httpServer = &httpp.Server{
		Address:      a.Address,
		ReadTimeout:  time.Duration(a.ReadTimeout),
		WriteTimeout: time.Duration(a.WriteTimeout),
		Handler:      router,
		Parent:       a,
	}
	err := a.httpServer.Initialize()
	if err != nil {
		a.ctxCancel()
		return err
	}

	a.Log(logger.Info, "listener opened on "+a.Address)

	return nil
}

// Close closes the API.
func (a *API) Close() {
	a.Log(logger.Info, "listener is closing")
	a.ctxCancel()
	a.httpServer.Close()
}

// Addr returns the listening address.
func (a *API) Addr() net.Addr {
	return a.httpServer.Addr()
}

// Log implements logger.Writer.
func (a *API) Log(level logger.Level, format string, args ...interface{}) {
	a.Parent.Log(level, "[API] "+format, args...)
}

func (a *API) writeError(ctx *gin.Context, status int, err error) {
	// show error in logs
	a.Log(logger.Error, err.Error())

	// add error to response
	ctx.JSON(status, &defs.APIError{
		Error: err.Error(),
	})
}

func (a *API) writeOK(ctx *gin.Context) {
	ctx.Status(http.StatusOK)
}

func (a *API) onInfo(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, &defs.APIInfo{
		Version:  a.Version,
		Started:  a.Started,
		Transfer: a.Session.Transfer(),
	})
}
