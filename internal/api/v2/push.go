package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gopos/gopos-edge/internal/conf"
	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/push"
	"github.com/labstack/echo/v4"
)

// maxPushPayload bounds the body of POST /api/v2/push.
const maxPushPayload = 64 * 1024

func (c *Controller) initPushRoutes() {
	c.Group.POST("/push", c.ReceivePush)

	notifications := c.Group.Group("/notifications")
	notifications.GET("", c.ListNotifications)
	notifications.GET("/:id", c.GetNotification)
	notifications.POST("/:id/click", c.ClickNotification)
	notifications.POST("/:id/close", c.CloseNotification)
}

func (c *Controller) requirePush(ctx echo.Context) (*push.Service, error) {
	svc := c.pushService()
	if svc == nil {
		return nil, ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "Push service not available",
		})
	}
	return svc, nil
}

// ReceivePush accepts a push message. The body is the raw payload; an
// unparseable body still produces a notification with the default texts.
func (c *Controller) ReceivePush(ctx echo.Context) error {
	svc, err := c.requirePush(ctx)
	if svc == nil {
		return err
	}

	data, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxPushPayload+1))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
	}
	if len(data) > maxPushPayload {
		return ctx.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "Push payload too large"})
	}

	n, err := svc.Handle(ctx.Request().Context(), data, push.SourceHTTP)
	if err != nil {
		if errors.Is(err, push.ErrRateLimited) {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many push messages, please slow down",
			})
		}
		c.logErrorIfEnabled("failed to handle push message", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to handle push message", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusCreated, n)
}

// ListNotifications returns stored notifications, newest first.
// ?open=true restricts the list to notifications still displayed.
func (c *Controller) ListNotifications(ctx echo.Context) error {
	svc, err := c.requirePush(ctx)
	if svc == nil {
		return err
	}

	limit, offset := parsePaging(ctx)
	filter := repository.NotificationFilter{
		OpenOnly: ctx.QueryParam("open") == QueryValueTrue,
		Limit:    limit,
		Offset:   offset,
	}
	items, total, err := svc.List(ctx.Request().Context(), filter)
	if err != nil {
		c.logErrorIfEnabled("failed to list notifications", logger.Error(err))
		return c.HandleError(ctx, err, "Failed to retrieve notifications", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"notifications": items,
		"count":         len(items),
		"total":         total,
		"limit":         limit,
		"offset":        offset,
	})
}

// GetNotification returns a single notification by ID.
func (c *Controller) GetNotification(ctx echo.Context) error {
	svc, err := c.requirePush(ctx)
	if svc == nil {
		return err
	}
	id := ctx.Param("id")
	n, err := svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return c.notificationError(ctx, err, id, "Failed to retrieve notification")
	}
	return ctx.JSON(http.StatusOK, n)
}

// ClickNotification handles a click: the notification is closed on every
// page and a page is navigated to its URL. Browsers get a 303 to the URL,
// API callers the click result.
func (c *Controller) ClickNotification(ctx echo.Context) error {
	svc, err := c.requirePush(ctx)
	if svc == nil {
		return err
	}
	id := ctx.Param("id")
	res, err := svc.Click(ctx.Request().Context(), id)
	if err != nil {
		return c.notificationError(ctx, err, id, "Failed to handle notification click")
	}
	if wantsHTML(ctx.Request()) {
		target := res.Notification.Data.URL
		if !push.LocalPath(target) {
			target = conf.DefaultPushURL
		}
		return ctx.Redirect(http.StatusSeeOther, target)
	}
	return ctx.JSON(http.StatusOK, res)
}

// CloseNotification dismisses a notification without opening anything.
func (c *Controller) CloseNotification(ctx echo.Context) error {
	svc, err := c.requirePush(ctx)
	if svc == nil {
		return err
	}
	id := ctx.Param("id")
	n, err := svc.Close(ctx.Request().Context(), id)
	if err != nil {
		return c.notificationError(ctx, err, id, "Failed to close notification")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (c *Controller) notificationError(ctx echo.Context, err error, id, message string) error {
	if errors.Is(err, push.ErrNotificationNotFound) {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Notification not found"})
	}
	c.logErrorIfEnabled(strings.ToLower(message[:1])+message[1:],
		logger.Error(err),
		logger.String("id", id))
	return c.HandleError(ctx, err, message, http.StatusInternalServerError)
}

func wantsHTML(r *http.Request) bool {
	for _, v := range r.Header.Values(echo.HeaderAccept) {
		if strings.Contains(v, echo.MIMETextHTML) {
			return true
		}
	}
	return false
}
