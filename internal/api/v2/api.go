// Package api implements the /api/v2 admin endpoints of the edge: worker
// registration status, cache store inspection, push ingestion, notification
// interaction and the clients websocket.
package api

import (
	"net/http"
	"strconv"

	"github.com/gopos/gopos-edge/internal/cachestorage"
	"github.com/gopos/gopos-edge/internal/clients"
	"github.com/gopos/gopos-edge/internal/conf"
	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/push"
	"github.com/gopos/gopos-edge/internal/serviceworker"
	"github.com/labstack/echo/v4"
)

// Query parameter values
const (
	QueryValueTrue = "true"

	defaultListLimit = 50
	maxListLimit     = 500
)

// Controller holds the collaborators of the v2 API handlers.
type Controller struct {
	Group        *echo.Group
	Settings     *conf.Settings
	Registration *serviceworker.Registration
	Versions     repository.WorkerVersionRepository
	Storage      *cachestorage.Storage
	Hub          *clients.Hub
	// Push overrides the process-wide push service. Nil means use
	// push.GetService.
	Push *push.Service

	logger logger.Logger
}

// New creates a Controller and registers its routes under /api/v2.
func New(e *echo.Echo, c *Controller, log logger.Logger) *Controller {
	if log == nil {
		log = logger.Default()
	}
	c.logger = log.Module("api")
	c.Group = e.Group("/api/v2")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.initWorkerRoutes()
	c.initCacheRoutes()
	c.initPushRoutes()
	c.initClientRoutes()
}

// HealthCheck reports liveness and whether a version is in control.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	active := ""
	if c.Registration != nil {
		if w := c.Registration.Active(); w != nil {
			active = w.Version().CacheName
		}
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"active": active,
	})
}

// HandleError writes a JSON error response. The underlying error is only
// exposed for non-internal failures.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	body := map[string]string{"error": message}
	if err != nil && code != http.StatusInternalServerError {
		body["detail"] = err.Error()
	}
	return ctx.JSON(code, body)
}

func (c *Controller) pushService() *push.Service {
	if c.Push != nil {
		return c.Push
	}
	return push.GetService()
}

func (c *Controller) log() logger.Logger {
	if c.logger == nil {
		return logger.Default()
	}
	return c.logger
}

func (c *Controller) logErrorIfEnabled(msg string, fields ...logger.Field) {
	c.log().Error(msg, fields...)
}

func (c *Controller) logInfoIfEnabled(msg string, fields ...logger.Field) {
	c.log().Info(msg, fields...)
}

func (c *Controller) logDebugIfEnabled(msg string, fields ...logger.Field) {
	c.log().Debug(msg, fields...)
}

// parsePaging reads limit and offset query parameters. Invalid values fall
// back to the defaults.
func parsePaging(ctx echo.Context) (limit, offset int) {
	limit = defaultListLimit
	if v := ctx.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxListLimit)
		}
	}
	if v := ctx.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
