package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
	"github.com/gopos/gopos-edge/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// workerVersionRepository implements WorkerVersionRepository.
type workerVersionRepository struct {
	db *gorm.DB
}

// NewWorkerVersionRepository creates a new WorkerVersionRepository.
func NewWorkerVersionRepository(db *gorm.DB) WorkerVersionRepository {
	return &workerVersionRepository{db: db}
}

// SaveVersion inserts a version or replaces the row with the same cache name.
func (r *workerVersionRepository) SaveVersion(ctx context.Context, version *entities.WorkerVersion) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cache_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "manifest", "error", "installed_at",
				"activated_at", "superseded_at", "updated_at",
			}),
		}).
		Create(version).Error
	if err != nil {
		return fmt.Errorf("failed to save worker version %q: %w", version.CacheName, err)
	}
	return nil
}

// GetVersion returns the version registered under cacheName.
func (r *workerVersionRepository) GetVersion(ctx context.Context, cacheName string) (*entities.WorkerVersion, error) {
	var v entities.WorkerVersion
	if err := r.db.WithContext(ctx).Where("cache_name = ?", cacheName).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkerVersionNotFound
		}
		return nil, fmt.Errorf("failed to get worker version %q: %w", cacheName, err)
	}
	return &v, nil
}

// GetActive returns the active version or ErrWorkerVersionNotFound.
func (r *workerVersionRepository) GetActive(ctx context.Context) (*entities.WorkerVersion, error) {
	var v entities.WorkerVersion
	err := r.db.WithContext(ctx).
		Where("state = ?", entities.WorkerStateActive).
		Order("activated_at DESC").
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkerVersionNotFound
		}
		return nil, fmt.Errorf("failed to get active worker version: %w", err)
	}
	return &v, nil
}

// ListVersions returns all versions, oldest first.
func (r *workerVersionRepository) ListVersions(ctx context.Context) ([]entities.WorkerVersion, error) {
	var versions []entities.WorkerVersion
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list worker versions: %w", err)
	}
	return versions, nil
}

// UpdateState moves a version to state, stamping the matching timestamp.
// reason is stored for redundant versions and cleared otherwise.
func (r *workerVersionRepository) UpdateState(ctx context.Context, cacheName string, state entities.WorkerState, reason string) error {
	updates := map[string]any{"state": state, "error": reason}
	now := time.Now()
	switch state {
	case entities.WorkerStateWaiting:
		updates["installed_at"] = now
	case entities.WorkerStateActive:
		updates["activated_at"] = now
	case entities.WorkerStateSuperseded:
		updates["superseded_at"] = now
	}
	result := r.db.WithContext(ctx).Model(&entities.WorkerVersion{}).
		Where("cache_name = ?", cacheName).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update worker version %q: %w", cacheName, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWorkerVersionNotFound
	}
	return nil
}

// Activate promotes cacheName and supersedes whatever was active before.
func (r *workerVersionRepository) Activate(ctx context.Context, cacheName string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&entities.WorkerVersion{}).
			Where("state = ? AND cache_name <> ?", entities.WorkerStateActive, cacheName).
			Updates(map[string]any{"state": entities.WorkerStateSuperseded, "superseded_at": now}).Error
		if err != nil {
			return fmt.Errorf("failed to supersede active worker versions: %w", err)
		}
		result := tx.Model(&entities.WorkerVersion{}).
			Where("cache_name = ?", cacheName).
			Updates(map[string]any{"state": entities.WorkerStateActive, "activated_at": now, "error": ""})
		if result.Error != nil {
			return fmt.Errorf("failed to activate worker version %q: %w", cacheName, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrWorkerVersionNotFound
		}
		return nil
	})
}
