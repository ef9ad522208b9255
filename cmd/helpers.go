package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gopos/gopos-edge/internal/cachestorage"
	"github.com/gopos/gopos-edge/internal/conf"
	datastore "github.com/gopos/gopos-edge/internal/datastore/v2"
	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/network"
	"github.com/gopos/gopos-edge/internal/observability/metrics"
	"github.com/gopos/gopos-edge/internal/push"
	"github.com/gopos/gopos-edge/internal/serviceworker"
)

// edge holds what every command needs: settings, a logger and an open,
// migrated database.
type edge struct {
	settings *conf.Settings
	log      logger.Logger
	db       datastore.Manager
}

func bootstrap() (*edge, error) {
	settings, err := conf.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := newLogger(settings.Main)
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)

	db, err := datastore.NewManager(datastore.Config{
		Driver: settings.Database.Driver,
		Path:   settings.Database.Path,
		DSN:    settings.Database.DSN,
		Debug:  verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &edge{settings: settings, log: log, db: db}, nil
}

func newLogger(m conf.MainSettings) (logger.Logger, error) {
	level, err := logger.ParseLevel(m.LogLevel)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = logger.LogLevelDebug
	}
	var tz *time.Location
	if m.TimeZone != "" {
		if tz, err = time.LoadLocation(m.TimeZone); err != nil {
			return nil, fmt.Errorf("loading timezone %q: %w", m.TimeZone, err)
		}
	}
	return logger.NewSlogLogger(os.Stderr, level, tz), nil
}

func (e *edge) Close() {
	if err := e.db.Close(); err != nil {
		e.log.Warn("closing database", logger.Error(err))
	}
}

func (e *edge) storage() *cachestorage.Storage {
	return cachestorage.New(
		repository.NewCacheRepository(e.db.DB()),
		cachestorage.Options{MemoryTTL: e.settings.Cache.MemoryTTL.Std()},
		e.log,
	)
}

func (e *edge) versions() repository.WorkerVersionRepository {
	return repository.NewWorkerVersionRepository(e.db.DB())
}

func (e *edge) fetcher() (*network.HTTPFetcher, error) {
	return network.NewHTTPFetcher(e.settings.Origin.URL, e.settings.Origin.Timeout.Std(), e.log)
}

// registration builds a registration over storage. clients and m may be
// nil for one-shot commands that have no pages to claim.
func (e *edge) registration(storage *cachestorage.Storage, clients serviceworker.ClientClaimer, m *metrics.CacheMetrics) (*serviceworker.Registration, error) {
	fetcher, err := e.fetcher()
	if err != nil {
		return nil, err
	}
	deps := serviceworker.Deps{
		PublicOrigin: e.settings.Server.PublicOrigin,
		Storage:      storage,
		Fetcher:      fetcher,
		Versions:     e.versions(),
		Clients:      clients,
		Metrics:      m,
		Logger:       e.log,
	}
	return serviceworker.NewRegistration(deps, serviceworker.Options{
		Fallback:           e.settings.Cache.Fallback,
		SkipWaiting:        e.settings.Cache.SkipWaiting,
		InstallConcurrency: e.settings.Cache.InstallConcurrency,
		MaxEntrySize:       e.settings.Cache.MaxEntrySize,
	})
}

// restore puts the persisted active version back in control. A database
// with no active version is not an error.
func restore(ctx context.Context, reg *serviceworker.Registration) error {
	if err := reg.Restore(ctx); err != nil && !errors.Is(err, serviceworker.ErrNoActiveWorker) {
		return fmt.Errorf("restoring worker state: %w", err)
	}
	return nil
}

func (e *edge) configuredVersion() serviceworker.Version {
	return serviceworker.Version{
		CacheName: e.settings.Cache.Name,
		Manifest:  e.settings.Cache.Manifest,
	}
}

// externalNotifier returns the shoutrrr notifier for the configured
// targets, or nil when there are none.
func (e *edge) externalNotifier() (*push.ShoutrrrNotifier, error) {
	if len(e.settings.Push.Targets) == 0 {
		return nil, nil
	}
	n := push.NewShoutrrrNotifier("shoutrrr", e.settings.Push.Targets, e.settings.Push.Timeout.Std())
	if err := n.ValidateConfig(); err != nil {
		return nil, err
	}
	return n, nil
}
