package api

import (
	"net/http"

	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/labstack/echo/v4"
)

func (c *Controller) initClientRoutes() {
	if c.Hub == nil {
		return
	}
	c.Group.GET("/clients", c.ListClients)
	c.Group.GET("/clients/ws", c.HandleClientWS)
}

// ListClients returns the open pages and the version controlling them.
func (c *Controller) ListClients(ctx echo.Context) error {
	list := c.Hub.MatchAll()
	return ctx.JSON(http.StatusOK, map[string]any{
		"controller": c.Hub.Controller(),
		"clients":    list,
		"count":      len(list),
	})
}

// HandleClientWS registers the calling page with the clients hub for the
// lifetime of the websocket. The page passes its location as ?url=, or
// the Referer is used.
func (c *Controller) HandleClientWS(ctx echo.Context) error {
	pageURL := ctx.QueryParam("url")
	if pageURL == "" {
		pageURL = ctx.Request().Referer()
	}
	if err := c.Hub.Serve(ctx.Response(), ctx.Request(), pageURL); err != nil {
		// the upgrader has already written the HTTP error
		c.logDebugIfEnabled("client websocket rejected", logger.Error(err))
	}
	return nil
}
