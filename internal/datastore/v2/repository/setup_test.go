package repository

import (
	"strings"
	"testing"

	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database private to the test.
// Uses a per-test shared-cache name with a single connection so every
// operation sees the same database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:" + name + "?mode=memory&cache=shared&_foreign_keys=ON"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "failed to get sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(
		&entities.CacheStore{},
		&entities.CacheEntry{},
		&entities.WorkerVersion{},
		&entities.PushNotification{},
	)
	require.NoError(t, err, "failed to migrate tables")
	return db
}
