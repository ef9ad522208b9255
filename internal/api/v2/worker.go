package api

import (
	"net/http"
	"strings"

	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/serviceworker"
	"github.com/labstack/echo/v4"
)

// WorkerInfo describes one in-memory worker version.
type WorkerInfo struct {
	CacheName string               `json:"cache_name"`
	State     entities.WorkerState `json:"state"`
	Manifest  []string             `json:"manifest"`
}

// WorkerStatusResponse is returned by GET /api/v2/worker.
type WorkerStatusResponse struct {
	Active   *WorkerInfo              `json:"active"`
	Waiting  *WorkerInfo              `json:"waiting"`
	Versions []entities.WorkerVersion `json:"versions"`
}

// RegisterRequest is the body of POST /api/v2/worker/register.
type RegisterRequest struct {
	CacheName string   `json:"cache_name"`
	Manifest  []string `json:"manifest"`
}

func (c *Controller) initWorkerRoutes() {
	if c.Registration == nil {
		return
	}
	worker := c.Group.Group("/worker")
	worker.GET("", c.GetWorkerStatus)
	worker.POST("/register", c.RegisterWorker)
	worker.POST("/skip-waiting", c.SkipWaiting)
	worker.POST("/prune", c.PruneCaches)
}

func workerInfo(w *serviceworker.Worker) *WorkerInfo {
	if w == nil {
		return nil
	}
	v := w.Version()
	return &WorkerInfo{CacheName: v.CacheName, State: w.State(), Manifest: v.Manifest}
}

// GetWorkerStatus returns the active and waiting versions plus every
// version ever registered.
func (c *Controller) GetWorkerStatus(ctx echo.Context) error {
	resp := WorkerStatusResponse{
		Active:   workerInfo(c.Registration.Active()),
		Waiting:  workerInfo(c.Registration.Waiting()),
		Versions: []entities.WorkerVersion{},
	}
	if c.Versions != nil {
		versions, err := c.Versions.ListVersions(ctx.Request().Context())
		if err != nil {
			c.logErrorIfEnabled("failed to list worker versions", logger.Error(err))
			return c.HandleError(ctx, err, "Failed to list worker versions", http.StatusInternalServerError)
		}
		resp.Versions = versions
	}
	return ctx.JSON(http.StatusOK, resp)
}

// RegisterWorker installs a new version. The call returns once the
// install has finished; with skip-waiting enabled the version is then
// already active.
func (c *Controller) RegisterWorker(ctx echo.Context) error {
	var req RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	req.CacheName = strings.TrimSpace(req.CacheName)
	if req.CacheName == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "cache_name is required"})
	}
	if len(req.Manifest) == 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "manifest must not be empty"})
	}
	for _, p := range req.Manifest {
		if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
			return ctx.JSON(http.StatusBadRequest, map[string]string{
				"error": "manifest entries must be same-origin paths",
				"entry": p,
			})
		}
	}

	w, err := c.Registration.Register(ctx.Request().Context(), serviceworker.Version{
		CacheName: req.CacheName,
		Manifest:  req.Manifest,
	})
	if err != nil {
		if errors.Is(err, serviceworker.ErrInstallFailed) {
			return c.HandleError(ctx, err, "Install failed", http.StatusBadGateway)
		}
		c.logErrorIfEnabled("failed to register worker",
			logger.Error(err),
			logger.String("cache_name", req.CacheName))
		return c.HandleError(ctx, err, "Failed to register worker", http.StatusInternalServerError)
	}

	c.logInfoIfEnabled("worker registered",
		logger.String("cache_name", req.CacheName),
		logger.String("state", string(w.State())))
	return ctx.JSON(http.StatusOK, workerInfo(w))
}

// SkipWaiting activates the waiting version.
func (c *Controller) SkipWaiting(ctx echo.Context) error {
	w, err := c.Registration.SkipWaiting(ctx.Request().Context())
	if err != nil {
		if errors.Is(err, serviceworker.ErrNoWaitingWorker) {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "No version is waiting"})
		}
		c.logErrorIfEnabled("failed to activate waiting worker", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to activate waiting worker", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, workerInfo(w))
}

// PruneCaches deletes every store not owned by the active or waiting
// version.
func (c *Controller) PruneCaches(ctx echo.Context) error {
	deleted, err := c.Registration.PruneStale(ctx.Request().Context())
	if err != nil {
		if errors.Is(err, serviceworker.ErrNoActiveWorker) {
			return ctx.JSON(http.StatusConflict, map[string]string{"error": "No version is active"})
		}
		c.logErrorIfEnabled("failed to prune caches", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to prune caches", http.StatusInternalServerError)
	}
	if deleted == nil {
		deleted = []string{}
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"deleted": deleted,
		"count":   len(deleted),
	})
}
