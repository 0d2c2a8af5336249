package api //nolint:revive

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/rtmpcast/internal/defs"
	"github.com/bluenviron/rtmpcast/internal/logger"
	"github.com/bluenviron/rtmpcast/internal/websocket"
)

func (a *API) onStreamsList(ctx *gin.Context) {
	data := &defs.APIStreamList{
		Items: a.Session.PublishedStreams(),
	}

	data.ItemCount = len(data.Items)
	pageCount, err := paginate(&data.Items, ctx.Query("itemsPerPage"), ctx.Query("page"))
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}
	data.PageCount = pageCount

	ctx.JSON(http.StatusOK, data)
}

// onEvents streams publish and unpublish events through a websocket.
func (a *API) onEvents(ctx *gin.Context) {
	events, unsubscribe := a.Session.Subscribe()
	defer unsubscribe()

	c, err := websocket.NewServerConn(ctx.Writer, ctx.Request)
	if err != nil {
		a.Log(logger.Warn, "unable to open event feed: %v", err)
		return
	}
	defer c.Close()

	remoteAddr := c.RemoteAddr()
	a.Log(logger.Debug, "[events %v] opened", remoteAddr)
	defer a.Log(logger.Debug, "[events %v] closed", remoteAddr)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}

			err = c.WriteJSON(ev)
			if err != nil {
				return
			}

		case <-c.Done():
			return

		case <-a.ctx.Done():
			return
		}
	}
}
