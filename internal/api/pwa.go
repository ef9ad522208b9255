package api

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ClientScriptPath is where pages load the edge agent from.
const ClientScriptPath = "/gopos-edge.js"

//go:embed client.js
var clientScript []byte

// registerPWARoutes registers the page agent script. It is served from the
// root so it is reachable from every page of the application.
func (s *Server) registerPWARoutes() {
	s.echo.GET(ClientScriptPath, func(c echo.Context) error {
		// Fixed name, so no immutable caching.
		c.Response().Header().Set("Cache-Control", "no-cache")
		return c.Blob(http.StatusOK, "text/javascript; charset=utf-8", clientScript)
	})
}
