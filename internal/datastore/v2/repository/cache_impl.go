package repository

import (
	"context"
	"fmt"

	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
	"github.com/gopos/gopos-edge/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cacheRepository implements CacheRepository.
type cacheRepository struct {
	db *gorm.DB
}

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(db *gorm.DB) CacheRepository {
	return &cacheRepository{db: db}
}

// ListStores returns every store in creation order.
func (r *cacheRepository) ListStores(ctx context.Context) ([]entities.CacheStore, error) {
	var stores []entities.CacheStore
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&stores).Error; err != nil {
		return nil, fmt.Errorf("failed to list cache stores: %w", err)
	}
	return stores, nil
}

// GetStore returns a store by name or ErrCacheStoreNotFound.
func (r *cacheRepository) GetStore(ctx context.Context, name string) (*entities.CacheStore, error) {
	return getStore(r.db.WithContext(ctx), name)
}

func getStore(db *gorm.DB, name string) (*entities.CacheStore, error) {
	var store entities.CacheStore
	if err := db.Where("name = ?", name).First(&store).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCacheStoreNotFound
		}
		return nil, fmt.Errorf("failed to get cache store %q: %w", name, err)
	}
	return &store, nil
}

// CreateStore opens the named store, creating it when absent.
func (r *cacheRepository) CreateStore(ctx context.Context, name string) (*entities.CacheStore, error) {
	return createStore(r.db.WithContext(ctx), name)
}

func createStore(db *gorm.DB, name string) (*entities.CacheStore, error) {
	store := entities.CacheStore{Name: name}
	if err := db.Where(entities.CacheStore{Name: name}).FirstOrCreate(&store).Error; err != nil {
		return nil, fmt.Errorf("failed to create cache store %q: %w", name, err)
	}
	return &store, nil
}

// DeleteStore removes a store together with all of its entries. Returns
// false when the store did not exist.
func (r *cacheRepository) DeleteStore(ctx context.Context, name string) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store, err := getStore(tx, name)
		if err != nil {
			if errors.Is(err, ErrCacheStoreNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Where("store_id = ?", store.ID).Delete(&entities.CacheEntry{}).Error; err != nil {
			return fmt.Errorf("failed to delete entries of cache store %q: %w", name, err)
		}
		if err := tx.Delete(store).Error; err != nil {
			return fmt.Errorf("failed to delete cache store %q: %w", name, err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// StoreStats returns entry counts and body bytes per store.
func (r *cacheRepository) StoreStats(ctx context.Context) ([]StoreStats, error) {
	var stats []StoreStats
	err := r.db.WithContext(ctx).
		Table(entities.CacheStore{}.TableName()+" AS s").
		Select("s.name AS name, COUNT(e.id) AS entries, COALESCE(SUM(e.body_size), 0) AS bytes").
		Joins("LEFT JOIN "+entities.CacheEntry{}.TableName()+" AS e ON e.store_id = s.id").
		Group("s.id, s.name").
		Order("s.id ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute cache store stats: %w", err)
	}
	return stats, nil
}

// GetEntry returns the entry stored under key in the named store.
func (r *cacheRepository) GetEntry(ctx context.Context, storeName, key string) (*entities.CacheEntry, error) {
	db := r.db.WithContext(ctx)
	store, err := getStore(db, storeName)
	if err != nil {
		return nil, err
	}
	var entry entities.CacheEntry
	if err := db.Where("store_id = ? AND cache_key = ?", store.ID, key).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCacheEntryNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	entry.Store = *store
	return &entry, nil
}

// FindEntry searches all stores, oldest store first.
func (r *cacheRepository) FindEntry(ctx context.Context, key string) (*entities.CacheEntry, error) {
	var entry entities.CacheEntry
	err := r.db.WithContext(ctx).
		Preload("Store").
		Where("cache_key = ?", key).
		Order("store_id ASC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCacheEntryNotFound
		}
		return nil, fmt.Errorf("failed to find cache entry: %w", err)
	}
	return &entry, nil
}

// PutEntry upserts one entry into an existing store.
func (r *cacheRepository) PutEntry(ctx context.Context, storeName string, entry *entities.CacheEntry) error {
	db := r.db.WithContext(ctx)
	store, err := getStore(db, storeName)
	if err != nil {
		return err
	}
	return upsertEntries(db, store, []*entities.CacheEntry{entry})
}

// PutEntries creates the store if needed and upserts all entries in one
// transaction: either every entry is written or none is, and a store that
// did not exist before is not left behind on failure.
func (r *cacheRepository) PutEntries(ctx context.Context, storeName string, entryList []*entities.CacheEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store, err := createStore(tx, storeName)
		if err != nil {
			return err
		}
		return upsertEntries(tx, store, entryList)
	})
}

func upsertEntries(db *gorm.DB, store *entities.CacheStore, entryList []*entities.CacheEntry) error {
	for _, entry := range entryList {
		entry.ID = 0
		entry.StoreID = store.ID
		entry.BodySize = int64(len(entry.Body))
		err := db.Omit("Store").
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "store_id"}, {Name: "cache_key"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"method", "url", "status", "status_text", "header",
					"body", "body_size", "response_type", "updated_at",
				}),
			}).
			Create(entry).Error
		if err != nil {
			return fmt.Errorf("failed to put cache entry %s: %w", entry.URL, err)
		}
	}
	return nil
}

// DeleteEntry removes one entry. Returns false when nothing matched.
func (r *cacheRepository) DeleteEntry(ctx context.Context, storeName, key string) (bool, error) {
	db := r.db.WithContext(ctx)
	store, err := getStore(db, storeName)
	if err != nil {
		return false, err
	}
	result := db.Where("store_id = ? AND cache_key = ?", store.ID, key).Delete(&entities.CacheEntry{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete cache entry: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListEntries returns entry metadata (bodies omitted) in insertion order.
func (r *cacheRepository) ListEntries(ctx context.Context, storeName string, filter CacheEntryFilter) ([]entities.CacheEntry, int64, error) {
	db := r.db.WithContext(ctx)
	store, err := getStore(db, storeName)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := db.Model(&entities.CacheEntry{}).Where("store_id = ?", store.ID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count cache entries: %w", err)
	}

	var items []entities.CacheEntry
	query := db.Omit("body").Where("store_id = ?", store.ID).Order("id ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list cache entries: %w", err)
	}
	return items, total, nil
}

// CountEntries returns the number of entries in the named store.
func (r *cacheRepository) CountEntries(ctx context.Context, storeName string) (int64, error) {
	db := r.db.WithContext(ctx)
	store, err := getStore(db, storeName)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Model(&entities.CacheEntry{}).Where("store_id = ?", store.ID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return count, nil
}
