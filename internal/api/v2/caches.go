package api

import (
	"net/http"

	"github.com/gopos/gopos-edge/internal/cachestorage"
	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/labstack/echo/v4"
)

func (c *Controller) initCacheRoutes() {
	if c.Storage == nil {
		return
	}
	caches := c.Group.Group("/caches")
	caches.GET("", c.ListCaches)
	caches.GET("/:name/entries", c.ListCacheEntries)
	caches.DELETE("/:name", c.DeleteCache)
}

// ListCaches returns every cache store with its entry count and size.
func (c *Controller) ListCaches(ctx echo.Context) error {
	stats, err := c.Storage.Stats(ctx.Request().Context())
	if err != nil {
		c.logErrorIfEnabled("failed to list caches", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to list caches", http.StatusInternalServerError)
	}
	if stats == nil {
		stats = []repository.StoreStats{}
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"caches": stats,
		"count":  len(stats),
	})
}

// ListCacheEntries returns the requests stored in one cache.
func (c *Controller) ListCacheEntries(ctx echo.Context) error {
	name := ctx.Param("name")
	entries, err := c.Storage.Cache(name).Keys(ctx.Request().Context())
	if err != nil {
		if errors.Is(err, cachestorage.ErrStoreNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Cache not found"})
		}
		c.logErrorIfEnabled("failed to list cache entries",
			logger.Error(err),
			logger.String("store", name))
		return c.HandleError(ctx, err, "Failed to list cache entries", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"cache":   name,
		"entries": entries,
		"count":   len(entries),
	})
}

// DeleteCache removes a whole cache store.
func (c *Controller) DeleteCache(ctx echo.Context) error {
	name := ctx.Param("name")
	deleted, err := c.Storage.Delete(ctx.Request().Context(), name)
	if err != nil {
		c.logErrorIfEnabled("failed to delete cache",
			logger.Error(err),
			logger.String("store", name))
		return c.HandleError(ctx, err, "Failed to delete cache", http.StatusInternalServerError)
	}
	if !deleted {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Cache not found"})
	}
	c.logInfoIfEnabled("cache deleted", logger.String("store", name))
	return ctx.NoContent(http.StatusNoContent)
}
