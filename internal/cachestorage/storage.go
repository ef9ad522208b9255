package cachestorage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
	gocache "github.com/patrickmn/go-cache"
)

const memoSep = "\x00"

// Options tunes the memory front cache.
type Options struct {
	// MemoryTTL is how long a hit stays memoised. Zero disables memoisation.
	MemoryTTL time.Duration
}

// Storage is the set of named cache stores.
type Storage struct {
	repo repository.CacheRepository
	memo *gocache.Cache
	log  logger.Logger

	// memoMu orders memo writes against invalidation. A store's epoch moves
	// on every invalidation so a lookup that read the database earlier
	// cannot put a dropped entry back.
	memoMu sync.Mutex
	epochs map[string]uint64
}

// New creates a Storage over repo.
func New(repo repository.CacheRepository, opts Options, log logger.Logger) *Storage {
	s := &Storage{repo: repo, log: log.Module("cachestorage")}
	if opts.MemoryTTL > 0 {
		s.memo = gocache.New(opts.MemoryTTL, opts.MemoryTTL)
		s.epochs = make(map[string]uint64)
	}
	return s
}

// Open returns the named store, creating it when absent.
func (s *Storage) Open(ctx context.Context, name string) (*Cache, error) {
	if _, err := s.repo.CreateStore(ctx, name); err != nil {
		return nil, storageError(err, "open", name)
	}
	return &Cache{name: name, storage: s}, nil
}

// Cache returns a handle to a store without creating it. Operations on a
// handle whose store does not exist fail with ErrStoreNotFound, except
// Match which simply misses.
func (s *Storage) Cache(name string) *Cache {
	return &Cache{name: name, storage: s}
}

// Has reports whether the named store exists.
func (s *Storage) Has(ctx context.Context, name string) (bool, error) {
	_, err := s.repo.GetStore(ctx, name)
	if errors.Is(err, repository.ErrCacheStoreNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageError(err, "has", name)
	}
	return true, nil
}

// Keys returns store names in creation order.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return nil, storageError(err, "keys", "")
	}
	names := make([]string, 0, len(stores))
	for i := range stores {
		names = append(names, stores[i].Name)
	}
	return names, nil
}

// Delete removes a whole store. Returns false when it did not exist.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	deleted, err := s.repo.DeleteStore(ctx, name)
	if err != nil {
		return false, storageError(err, "delete", name)
	}
	s.forgetStore(name)
	return deleted, nil
}

// Match looks the request up in every store, oldest first. A miss returns
// (nil, nil).
func (s *Storage) Match(ctx context.Context, method, absURL string) (*Response, error) {
	entry, err := s.repo.FindEntry(ctx, Key(method, absURL))
	if errors.Is(err, repository.ErrCacheEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(err, "match", "")
	}
	return fromEntity(entry)
}

// Stats summarises every store.
func (s *Storage) Stats(ctx context.Context) ([]repository.StoreStats, error) {
	stats, err := s.repo.StoreStats(ctx)
	if err != nil {
		return nil, storageError(err, "stats", "")
	}
	return stats, nil
}

func (s *Storage) memoKey(store, key string) string {
	return store + memoSep + key
}

// epoch is taken before reading or writing the database and handed to
// remember afterwards.
func (s *Storage) epoch(store string) uint64 {
	if s.memo == nil {
		return 0
	}
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	return s.epochs[store]
}

func (s *Storage) remember(store string, epoch uint64, key string, resp *Response) {
	if s.memo == nil {
		return
	}
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	if s.epochs[store] != epoch {
		return
	}
	s.memo.SetDefault(s.memoKey(store, key), resp)
}

func (s *Storage) recall(store, key string) (*Response, bool) {
	if s.memo == nil {
		return nil, false
	}
	v, ok := s.memo.Get(s.memoKey(store, key))
	if !ok {
		return nil, false
	}
	return v.(*Response), true
}

func (s *Storage) forget(store, key string) {
	if s.memo == nil {
		return
	}
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	s.epochs[store]++
	s.memo.Delete(s.memoKey(store, key))
}

func (s *Storage) forgetStore(store string) {
	if s.memo == nil {
		return
	}
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	s.epochs[store]++
	prefix := store + memoSep
	for k := range s.memo.Items() {
		if strings.HasPrefix(k, prefix) {
			s.memo.Delete(k)
		}
	}
}

func storageError(err error, op, store string) error {
	if errors.Is(err, repository.ErrCacheStoreNotFound) {
		return err
	}
	b := errors.New(err).
		Component("cachestorage").
		Category(errors.CategoryDatabase).
		Context("operation", op)
	if store != "" {
		b = b.Context("store", store)
	}
	return b.Build()
}
