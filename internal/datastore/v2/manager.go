// Package v2 opens the edge database and migrates its schema.
package v2

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
	"github.com/gopos/gopos-edge/internal/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	sqliteParams = "_foreign_keys=ON&_busy_timeout=5000&_journal_mode=WAL"
)

// Config selects and locates the database.
type Config struct {
	Driver string
	// Path is the SQLite file. ":memory:" opens a private in-memory database.
	Path string
	// DSN is the MySQL data source name.
	DSN   string
	Debug bool
}

// Manager owns the gorm connection.
type Manager interface {
	// Initialize creates or migrates every table the edge uses.
	Initialize() error
	DB() *gorm.DB
	IsMySQL() bool
	Close() error
}

type manager struct {
	db      *gorm.DB
	isMySQL bool
}

// NewManager opens the database named by cfg.Driver.
func NewManager(cfg Config) (Manager, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return NewSQLiteManager(cfg)
	case DriverMySQL:
		return NewMySQLManager(cfg)
	default:
		return nil, errors.Newf("unsupported database driver %q", cfg.Driver).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// NewSQLiteManager opens (creating if needed) a SQLite database file.
func NewSQLiteManager(cfg Config) (Manager, error) {
	dsn := sqliteDSN(cfg.Path)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(cfg))
	if err != nil {
		return nil, databaseError(err, "open_sqlite", cfg.Path)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, databaseError(err, "open_sqlite", cfg.Path)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under
	// concurrent fire-and-forget cache writes.
	sqlDB.SetMaxOpenConns(1)
	return &manager{db: db}, nil
}

// NewMySQLManager connects to a MySQL server.
func NewMySQLManager(cfg Config) (Manager, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), gormConfig(cfg))
	if err != nil {
		return nil, databaseError(err, "open_mysql", "")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, databaseError(err, "open_mysql", "")
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return &manager{db: db, isMySQL: true}, nil
}

func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		return "file::memory:?" + sqliteParams
	}
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + filepath.ToSlash(path) + "?" + sqliteParams
}

func gormConfig(cfg Config) *gorm.Config {
	level := gorm_logger.Silent
	if cfg.Debug {
		level = gorm_logger.Info
	}
	return &gorm.Config{Logger: gorm_logger.Default.LogMode(level)}
}

func databaseError(err error, op, path string) error {
	b := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op)
	if path != "" {
		b = b.Context("path", path)
	}
	return b.Build()
}

// Initialize migrates the schema.
func (m *manager) Initialize() error {
	err := m.db.AutoMigrate(
		&entities.CacheStore{},
		&entities.CacheEntry{},
		&entities.WorkerVersion{},
		&entities.PushNotification{},
	)
	if err != nil {
		return databaseError(fmt.Errorf("failed to migrate schema: %w", err), "migrate", "")
	}
	return nil
}

func (m *manager) DB() *gorm.DB  { return m.db }
func (m *manager) IsMySQL() bool { return m.isMySQL }

// Close releases the underlying connection pool.
func (m *manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
