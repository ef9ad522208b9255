package repository

import "github.com/gopos/gopos-edge/internal/errors"

var (
	// ErrCacheStoreNotFound is returned when a named cache store does not exist.
	ErrCacheStoreNotFound = errors.NewStd("cache store not found")
	// ErrCacheEntryNotFound is returned when a store has no entry for a key.
	ErrCacheEntryNotFound = errors.NewStd("cache entry not found")
	// ErrWorkerVersionNotFound is returned when no worker version matches.
	ErrWorkerVersionNotFound = errors.NewStd("worker version not found")
	// ErrNotificationNotFound is returned when a notification ID is unknown.
	ErrNotificationNotFound = errors.NewStd("notification not found")
)
