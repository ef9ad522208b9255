package repository

import (
	"context"
	"time"

	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
)

// NotificationRepository persists shown push notifications.
type NotificationRepository interface {
	SaveNotification(ctx context.Context, n *entities.PushNotification) error
	GetNotification(ctx context.Context, id string) (*entities.PushNotification, error)
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]entities.PushNotification, int64, error)
	MarkClicked(ctx context.Context, id string, at time.Time) error
	MarkClosed(ctx context.Context, id string, at time.Time) error
	DeleteNotificationsBefore(ctx context.Context, before time.Time) (int64, error)
}

// NotificationFilter controls notification listing queries.
type NotificationFilter struct {
	OpenOnly bool
	Limit    int
	Offset   int
}
