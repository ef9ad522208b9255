package repository

import (
	"context"

	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
)

// CacheRepository persists cache stores and their entries.
type CacheRepository interface {
	// Stores
	ListStores(ctx context.Context) ([]entities.CacheStore, error)
	GetStore(ctx context.Context, name string) (*entities.CacheStore, error)
	CreateStore(ctx context.Context, name string) (*entities.CacheStore, error)
	DeleteStore(ctx context.Context, name string) (bool, error)
	StoreStats(ctx context.Context) ([]StoreStats, error)

	// Entries
	GetEntry(ctx context.Context, storeName, key string) (*entities.CacheEntry, error)
	FindEntry(ctx context.Context, key string) (*entities.CacheEntry, error)
	PutEntry(ctx context.Context, storeName string, entry *entities.CacheEntry) error
	PutEntries(ctx context.Context, storeName string, entries []*entities.CacheEntry) error
	DeleteEntry(ctx context.Context, storeName, key string) (bool, error)
	ListEntries(ctx context.Context, storeName string, filter CacheEntryFilter) ([]entities.CacheEntry, int64, error)
	CountEntries(ctx context.Context, storeName string) (int64, error)
}

// CacheEntryFilter controls entry listing queries.
type CacheEntryFilter struct {
	Limit  int
	Offset int
}

// StoreStats summarises one cache store.
type StoreStats struct {
	Name    string `json:"name"`
	Entries int64  `json:"entries"`
	Bytes   int64  `json:"bytes"`
}
