// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	datastore "github.com/gopos/gopos-edge/internal/datastore/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewMemoryDB opens a migrated private in-memory SQLite database that is
// closed when the test ends.
func NewMemoryDB(t testing.TB) *gorm.DB {
	t.Helper()
	mgr, err := datastore.NewSQLiteManager(datastore.Config{Path: ":memory:"})
	require.NoError(t, err, "failed to open in-memory database")
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, mgr.Initialize(), "failed to migrate in-memory database")
	return mgr.DB()
}
