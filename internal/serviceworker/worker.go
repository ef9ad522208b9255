package serviceworker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gopos/gopos-edge/internal/cachestorage"
	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/network"
	"github.com/gopos/gopos-edge/internal/observability/metrics"
	"golang.org/x/sync/errgroup"
)

// Source names who answered an intercepted request.
type Source string

const (
	SourceCache       Source = "cache"
	SourceNetwork     Source = "network"
	SourceFallback    Source = "fallback"
	SourcePassthrough Source = "passthrough"
	SourceError       Source = "error"
)

// Result is the answer to an intercepted request.
type Result struct {
	Response *cachestorage.Response
	Source   Source
}

// Version describes one worker version.
type Version struct {
	// CacheName is the version tag and the name of the store it owns.
	CacheName string
	// Manifest lists same-origin paths installed into the store.
	Manifest []string
}

// Worker is one version of the offline cache manager.
type Worker struct {
	version Version
	opts    Options
	origin  *url.URL

	storage *cachestorage.Storage
	cache   *cachestorage.Cache
	fetcher network.Fetcher
	tracker *Tracker
	metrics *metrics.CacheMetrics
	log     logger.Logger

	mu    sync.RWMutex
	state entities.WorkerState
}

func newWorker(v Version, d *deps) *Worker {
	return &Worker{
		version: v,
		opts:    d.opts,
		origin:  d.origin,
		storage: d.storage,
		cache:   d.storage.Cache(v.CacheName),
		fetcher: d.fetcher,
		tracker: d.tracker,
		metrics: d.metrics,
		log:     d.log.With(logger.String("cache_name", v.CacheName)),
		state:   entities.WorkerStateInstalling,
	}
}

// Version returns the worker's version.
func (w *Worker) Version() Version { return w.version }

// State returns the worker's lifecycle state.
func (w *Worker) State() entities.WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s entities.WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Install downloads every manifest entry and stores them in the worker's
// cache in one transaction. Any failed or non-2xx fetch aborts the install
// and nothing is written.
func (w *Worker) Install(ctx context.Context) error {
	start := time.Now()
	entryList := make([]cachestorage.Entry, len(w.version.Manifest))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(w.opts.InstallConcurrency, 1))
	for i, path := range w.version.Manifest {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, path, http.NoBody)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			resp, err := w.fetcher.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if !resp.OK() {
				return fmt.Errorf("%s: unexpected status %d", path, resp.Status)
			}
			entryList[i] = cachestorage.Entry{
				Method:   http.MethodGet,
				URL:      w.absoluteURL(path),
				Response: resp,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return w.installError(err)
	}

	if err := w.cache.AddAll(ctx, entryList); err != nil {
		return w.installError(err)
	}

	w.log.Info("worker installed",
		logger.Int("entries", len(entryList)),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

func (w *Worker) installError(err error) error {
	return errors.New(fmt.Errorf("%w: %w", ErrInstallFailed, err)).
		Component("serviceworker").
		Category(errors.CategoryLifecycle).
		Context("cache_name", w.version.CacheName).
		Context("operation", "install").
		Build()
}

// Activate deletes every store other than the worker's own and hands
// control of open pages to this version. Returns the deleted store names.
func (w *Worker) Activate(ctx context.Context, claimer ClientClaimer) ([]string, error) {
	names, err := w.storage.Keys(ctx)
	if err != nil {
		return nil, w.lifecycleError(err, "activate")
	}
	var deleted []string
	for _, name := range names {
		if name == w.version.CacheName {
			continue
		}
		if _, err := w.storage.Delete(ctx, name); err != nil {
			return deleted, w.lifecycleError(err, "activate")
		}
		deleted = append(deleted, name)
		w.log.Info("deleted stale cache", logger.String("store", name))
	}
	if claimer != nil {
		claimer.Claim(w.version.CacheName)
	}
	return deleted, nil
}

func (w *Worker) lifecycleError(err error, op string) error {
	return errors.New(err).
		Component("serviceworker").
		Category(errors.CategoryLifecycle).
		Context("cache_name", w.version.CacheName).
		Context("operation", op).
		Build()
}

// Fetch answers a same-origin GET request cache-first. On a miss the
// network response is returned and, when it is a 200 basic response,
// stored in the background. When the network fails, HTML requests get
// the fallback page if it is cached.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (*Result, error) {
	key := w.absoluteURL(req.URL.RequestURI())

	cached, err := w.cache.Match(ctx, http.MethodGet, key)
	if err != nil {
		w.log.Warn("cache lookup failed", logger.String("url", key), logger.Error(err))
	}
	if cached != nil {
		return &Result{Response: cached, Source: SourceCache}, nil
	}

	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		if acceptsHTML(req) {
			if fb := w.fallback(ctx); fb != nil {
				w.log.Debug("serving fallback", logger.String("url", key), logger.Error(err))
				return &Result{Response: fb, Source: SourceFallback}, nil
			}
		}
		return nil, err
	}

	if w.cacheable(resp) {
		stored := resp.Clone()
		w.tracker.WaitUntil("cache-put", func(ctx context.Context) error {
			if err := w.cache.Put(ctx, http.MethodGet, key, stored); err != nil {
				w.metrics.RecordWrite("error")
				return err
			}
			w.metrics.RecordWrite("ok")
			return nil
		})
	} else if resp.Status == http.StatusOK && resp.Type == cachestorage.ResponseTypeBasic {
		w.metrics.RecordWrite("skipped")
	}
	return &Result{Response: resp, Source: SourceNetwork}, nil
}

func (w *Worker) cacheable(resp *cachestorage.Response) bool {
	if resp.Status != http.StatusOK || resp.Type != cachestorage.ResponseTypeBasic {
		return false
	}
	// cached entries are served to every client, whatever it accepts
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && !strings.EqualFold(enc, "identity") {
		return false
	}
	return w.opts.MaxEntrySize <= 0 || int64(len(resp.Body)) <= w.opts.MaxEntrySize
}

func (w *Worker) fallback(ctx context.Context) *cachestorage.Response {
	if w.opts.Fallback == "" {
		return nil
	}
	resp, err := w.cache.Match(ctx, http.MethodGet, w.absoluteURL(w.opts.Fallback))
	if err != nil {
		w.log.Warn("fallback lookup failed", logger.Error(err))
		return nil
	}
	return resp
}

// absoluteURL resolves a path against the public origin; this is the URL
// requests are keyed by.
func (w *Worker) absoluteURL(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return w.origin.String() + path
	}
	return w.origin.ResolveReference(ref).String()
}

// acceptsHTML reports whether the Accept header asks for HTML. A missing
// header does not.
func acceptsHTML(req *http.Request) bool {
	for _, v := range req.Header.Values("Accept") {
		if strings.Contains(v, "text/html") {
			return true
		}
	}
	return false
}
