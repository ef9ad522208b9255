package cachestorage

import (
	"context"

	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/errors"
)

// ErrStoreNotFound is returned by Cache operations on a store that was
// never opened or has been deleted.
var (
	ErrStoreNotFound = repository.ErrCacheStoreNotFound
	// ErrEntryNotFound is returned by lookups that require an entry to exist.
	ErrEntryNotFound = repository.ErrCacheEntryNotFound
)

// Entry pairs a request with the response to store for it.
type Entry struct {
	Method   string
	URL      string
	Response *Response
}

// RequestInfo identifies a stored request.
type RequestInfo struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Status int    `json:"status"`
	Size   int64  `json:"size"`
}

// Cache is a handle to one named store.
type Cache struct {
	name    string
	storage *Storage
}

// Name returns the store name.
func (c *Cache) Name() string { return c.name }

// Match returns the stored response for the exact method and URL, or
// (nil, nil) on a miss. The returned response is a private copy.
func (c *Cache) Match(ctx context.Context, method, absURL string) (*Response, error) {
	key := Key(method, absURL)
	if resp, ok := c.storage.recall(c.name, key); ok {
		return resp.Clone(), nil
	}
	epoch := c.storage.epoch(c.name)
	entry, err := c.storage.repo.GetEntry(ctx, c.name, key)
	if errors.Is(err, repository.ErrCacheEntryNotFound) || errors.Is(err, repository.ErrCacheStoreNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(err, "match", c.name)
	}
	resp, err := fromEntity(entry)
	if err != nil {
		return nil, storageError(err, "match", c.name)
	}
	c.storage.remember(c.name, epoch, key, resp)
	return resp.Clone(), nil
}

// Put stores resp for the request, replacing any previous response.
func (c *Cache) Put(ctx context.Context, method, absURL string, resp *Response) error {
	entry, err := toEntity(method, absURL, resp)
	if err != nil {
		return writeError(err, c.name, absURL)
	}
	epoch := c.storage.epoch(c.name)
	if err := c.storage.repo.PutEntry(ctx, c.name, entry); err != nil {
		if errors.Is(err, repository.ErrCacheStoreNotFound) {
			return err
		}
		return writeError(err, c.name, absURL)
	}
	c.storage.remember(c.name, epoch, entry.CacheKey, resp.Clone())
	return nil
}

// AddAll writes every entry in one transaction, creating the store if
// needed. If any entry cannot be written nothing is stored and a store
// that did not exist before is not created.
func (c *Cache) AddAll(ctx context.Context, entryList []Entry) error {
	rows := make([]*entities.CacheEntry, 0, len(entryList))
	for _, e := range entryList {
		row, err := toEntity(e.Method, e.URL, e.Response)
		if err != nil {
			return writeError(err, c.name, e.URL)
		}
		rows = append(rows, row)
	}
	epoch := c.storage.epoch(c.name)
	if err := c.storage.repo.PutEntries(ctx, c.name, rows); err != nil {
		return writeError(err, c.name, "")
	}
	for i, e := range entryList {
		c.storage.remember(c.name, epoch, rows[i].CacheKey, e.Response.Clone())
	}
	return nil
}

// Delete removes one request. Returns false when it was not stored.
func (c *Cache) Delete(ctx context.Context, method, absURL string) (bool, error) {
	key := Key(method, absURL)
	deleted, err := c.storage.repo.DeleteEntry(ctx, c.name, key)
	c.storage.forget(c.name, key)
	if err != nil {
		return false, storageError(err, "delete_entry", c.name)
	}
	return deleted, nil
}

// Keys lists stored requests in insertion order.
func (c *Cache) Keys(ctx context.Context) ([]RequestInfo, error) {
	items, _, err := c.storage.repo.ListEntries(ctx, c.name, repository.CacheEntryFilter{})
	if err != nil {
		return nil, storageError(err, "keys", c.name)
	}
	out := make([]RequestInfo, 0, len(items))
	for i := range items {
		out = append(out, RequestInfo{
			Method: items[i].Method,
			URL:    items[i].URL,
			Status: items[i].Status,
			Size:   items[i].BodySize,
		})
	}
	return out, nil
}

func writeError(err error, store, url string) error {
	b := errors.New(err).
		Component("cachestorage").
		Category(errors.CategoryCacheWrite).
		Context("store", store)
	if url != "" {
		b = b.Context("url", url)
	}
	return b.Build()
}
