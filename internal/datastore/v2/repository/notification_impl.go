package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
	"github.com/gopos/gopos-edge/internal/errors"
	"gorm.io/gorm"
)

// notificationRepository implements NotificationRepository.
type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// SaveNotification inserts a notification.
func (r *notificationRepository) SaveNotification(ctx context.Context, n *entities.PushNotification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// GetNotification returns a notification by ID.
func (r *notificationRepository) GetNotification(ctx context.Context, id string) (*entities.PushNotification, error) {
	var n entities.PushNotification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to get notification %s: %w", id, err)
	}
	return &n, nil
}

// ListNotifications returns notifications newest first.
func (r *notificationRepository) ListNotifications(ctx context.Context, filter NotificationFilter) ([]entities.PushNotification, int64, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&entities.PushNotification{})
		if filter.OpenOnly {
			q = q.Where("closed_at IS NULL")
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := base().Order("created_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var items []entities.PushNotification
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, total, nil
}

// MarkClicked records a click. Clicking also closes the notification.
func (r *notificationRepository) MarkClicked(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]any{"clicked_at": at, "closed_at": at})
}

// MarkClosed records a dismissal.
func (r *notificationRepository) MarkClosed(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]any{"closed_at": at})
}

func (r *notificationRepository) update(ctx context.Context, id string, updates map[string]any) error {
	result := r.db.WithContext(ctx).Model(&entities.PushNotification{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update notification %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// DeleteNotificationsBefore removes notifications created before the cutoff.
func (r *notificationRepository) DeleteNotificationsBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&entities.PushNotification{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete notifications before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}
