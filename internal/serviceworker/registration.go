package serviceworker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gopos/gopos-edge/internal/cachestorage"
	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/network"
	"github.com/gopos/gopos-edge/internal/observability/metrics"
)

// ClientClaimer hands control of open pages to a version.
type ClientClaimer interface {
	Claim(version string) int
}

// Options tunes every worker created by a Registration.
type Options struct {
	// Fallback is the shell page served to HTML requests when the network
	// fails.
	Fallback string
	// SkipWaiting activates a version as soon as it installs.
	SkipWaiting bool
	// InstallConcurrency bounds parallel manifest downloads.
	InstallConcurrency int
	// MaxEntrySize stops larger runtime responses from being cached. Zero
	// means unlimited.
	MaxEntrySize int64
}

// Deps are the collaborators of a Registration.
type Deps struct {
	// PublicOrigin is the origin browsers use to reach the edge.
	PublicOrigin string
	Storage      *cachestorage.Storage
	Fetcher      network.Fetcher
	Versions     repository.WorkerVersionRepository
	Clients      ClientClaimer
	Tracker      *Tracker
	Metrics      *metrics.CacheMetrics
	Logger       logger.Logger
}

type deps struct {
	opts     Options
	origin   *url.URL
	storage  *cachestorage.Storage
	fetcher  network.Fetcher
	versions repository.WorkerVersionRepository
	clients  ClientClaimer
	tracker  *Tracker
	metrics  *metrics.CacheMetrics
	log      logger.Logger
}

// Registration owns the installing, waiting and active worker versions
// and routes intercepted requests to the active one.
type Registration struct {
	d deps

	// lifecycle serialises install and activate transitions
	lifecycle sync.Mutex

	mu      sync.RWMutex
	active  *Worker
	waiting *Worker
}

// NewRegistration creates an empty registration.
func NewRegistration(d Deps, opts Options) (*Registration, error) {
	origin, err := url.Parse(d.PublicOrigin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, errors.Newf("invalid public origin %q", d.PublicOrigin).
			Component("serviceworker").
			Category(errors.CategoryConfiguration).
			Build()
	}
	log := d.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.Module("serviceworker")
	tracker := d.Tracker
	if tracker == nil {
		tracker = NewTracker(context.Background(), log)
	}
	return &Registration{d: deps{
		opts:     opts,
		origin:   &url.URL{Scheme: origin.Scheme, Host: origin.Host},
		storage:  d.Storage,
		fetcher:  d.Fetcher,
		versions: d.Versions,
		clients:  d.Clients,
		tracker:  tracker,
		metrics:  d.Metrics,
		log:      log,
	}}, nil
}

// Active returns the worker in control, or nil.
func (r *Registration) Active() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Waiting returns the installed worker waiting to take control, or nil.
func (r *Registration) Waiting() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waiting
}

// Tracker returns the lifetime tracker shared by all workers.
func (r *Registration) Tracker() *Tracker { return r.d.tracker }

// Restore puts the version persisted as active back in control without
// reinstalling it. Returns ErrNoActiveWorker when there is none or its
// store is gone.
func (r *Registration) Restore(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	v, err := r.d.versions.GetActive(ctx)
	if errors.Is(err, repository.ErrWorkerVersionNotFound) {
		return ErrNoActiveWorker
	}
	if err != nil {
		return r.persistError(err, "restore", "")
	}
	exists, err := r.d.storage.Has(ctx, v.CacheName)
	if err != nil {
		return r.persistError(err, "restore", v.CacheName)
	}
	if !exists {
		r.d.log.Warn("active version has no cache store", logger.String("cache_name", v.CacheName))
		return ErrNoActiveWorker
	}

	var manifest []string
	if v.Manifest != "" {
		if err := json.Unmarshal([]byte(v.Manifest), &manifest); err != nil {
			return r.persistError(err, "restore", v.CacheName)
		}
	}
	w := newWorker(Version{CacheName: v.CacheName, Manifest: manifest}, &r.d)
	w.setState(entities.WorkerStateActive)

	r.mu.Lock()
	r.active = w
	r.mu.Unlock()
	if r.d.clients != nil {
		r.d.clients.Claim(v.CacheName)
	}
	r.d.log.Info("restored active worker", logger.String("cache_name", v.CacheName))
	return nil
}

// Register installs a new version. Registering the version already active
// or waiting is a no-op. On install failure the version becomes redundant,
// the error wraps ErrInstallFailed and the active version is untouched.
// With SkipWaiting the version is activated immediately, otherwise it
// waits for SkipWaiting.
func (r *Registration) Register(ctx context.Context, v Version) (*Worker, error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if w := r.Active(); w != nil && w.version.CacheName == v.CacheName {
		return w, nil
	}
	if w := r.Waiting(); w != nil && w.version.CacheName == v.CacheName {
		return w, nil
	}

	manifest, err := json.Marshal(v.Manifest)
	if err != nil {
		return nil, r.persistError(err, "register", v.CacheName)
	}
	record := &entities.WorkerVersion{
		CacheName: v.CacheName,
		State:     entities.WorkerStateInstalling,
		Manifest:  string(manifest),
	}
	if err := r.d.versions.SaveVersion(ctx, record); err != nil {
		return nil, r.persistError(err, "register", v.CacheName)
	}

	w := newWorker(v, &r.d)
	r.d.log.Info("installing worker",
		logger.String("cache_name", v.CacheName),
		logger.Int("manifest", len(v.Manifest)))

	if err := w.Install(ctx); err != nil {
		w.setState(entities.WorkerStateRedundant)
		r.d.metrics.RecordInstall(false)
		if uerr := r.d.versions.UpdateState(ctx, v.CacheName, entities.WorkerStateRedundant, err.Error()); uerr != nil {
			r.d.log.Warn("failed to record redundant worker", logger.Error(uerr))
		}
		r.d.log.Error("worker install failed", logger.String("cache_name", v.CacheName), logger.Error(err))
		return nil, err
	}
	r.d.metrics.RecordInstall(true)

	w.setState(entities.WorkerStateWaiting)
	if err := r.d.versions.UpdateState(ctx, v.CacheName, entities.WorkerStateWaiting, ""); err != nil {
		return nil, r.persistError(err, "register", v.CacheName)
	}

	r.mu.Lock()
	previous := r.waiting
	r.waiting = w
	r.mu.Unlock()
	if previous != nil {
		r.discardWaiting(ctx, previous)
	}

	if !r.d.opts.SkipWaiting {
		r.d.log.Info("worker waiting", logger.String("cache_name", v.CacheName))
		return w, nil
	}
	if err := r.activate(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// SkipWaiting activates the waiting version.
func (r *Registration) SkipWaiting(ctx context.Context) (*Worker, error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	w := r.Waiting()
	if w == nil {
		return nil, ErrNoWaitingWorker
	}
	if err := r.activate(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// activate must be called with the lifecycle lock held.
func (r *Registration) activate(ctx context.Context, w *Worker) error {
	name := w.version.CacheName
	if err := r.d.versions.Activate(ctx, name); err != nil {
		return r.persistError(err, "activate", name)
	}

	r.mu.Lock()
	previous := r.active
	r.active = w
	if r.waiting == w {
		r.waiting = nil
	}
	r.mu.Unlock()

	w.setState(entities.WorkerStateActive)
	if previous != nil {
		previous.setState(entities.WorkerStateSuperseded)
	}

	deleted, err := w.Activate(ctx, r.d.clients)
	r.d.metrics.RecordActivation(len(deleted))
	if err != nil {
		return err
	}
	r.d.log.Info("worker activated",
		logger.String("cache_name", name),
		logger.Int("stale_stores_deleted", len(deleted)))
	return nil
}

func (r *Registration) discardWaiting(ctx context.Context, w *Worker) {
	w.setState(entities.WorkerStateRedundant)
	name := w.version.CacheName
	if err := r.d.versions.UpdateState(ctx, name, entities.WorkerStateRedundant, "replaced by a newer version"); err != nil {
		r.d.log.Warn("failed to record redundant worker", logger.Error(err))
	}
	if _, err := r.d.storage.Delete(ctx, name); err != nil {
		r.d.log.Warn("failed to delete replaced cache", logger.String("store", name), logger.Error(err))
	}
}

// PruneStale deletes every store except the active version's.
func (r *Registration) PruneStale(ctx context.Context) ([]string, error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	active := r.Active()
	if active == nil {
		return nil, ErrNoActiveWorker
	}
	names, err := r.d.storage.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keep := map[string]bool{active.version.CacheName: true}
	if w := r.Waiting(); w != nil {
		keep[w.version.CacheName] = true
	}
	var deleted []string
	for _, name := range names {
		if keep[name] {
			continue
		}
		if _, err := r.d.storage.Delete(ctx, name); err != nil {
			return deleted, err
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// HandleFetch routes an intercepted request. Non-GET requests, and every
// request while no version is active, go straight to the network and are
// never cached. An absolute target on the public origin is served like its
// path; any other absolute target is refused with ErrCrossOrigin.
func (r *Registration) HandleFetch(ctx context.Context, req *http.Request) (*Result, error) {
	start := time.Now()
	res, err := r.handleFetch(ctx, req)
	source := SourceError
	if err == nil {
		source = res.Source
	}
	r.d.metrics.RecordRequest(string(source), time.Since(start))
	return res, err
}

func (r *Registration) handleFetch(ctx context.Context, req *http.Request) (*Result, error) {
	req, err := r.localRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	w := r.Active()
	if w == nil || req.Method != http.MethodGet {
		resp, err := r.d.fetcher.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Result{Response: resp, Source: SourcePassthrough}, nil
	}
	return w.Fetch(ctx, req)
}

// localRequest strips the public origin from an absolute-form target so
// the request carries only its path and query.
func (r *Registration) localRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	if !req.URL.IsAbs() {
		return req, nil
	}
	if !network.SameOrigin(r.d.origin, req.URL) {
		return nil, errors.New(ErrCrossOrigin).
			Component("serviceworker").
			Category(errors.CategoryValidation).
			Context("method", req.Method).
			Context("url", req.URL.String()).
			Build()
	}
	local := req.Clone(ctx)
	local.URL = &url.URL{
		Path:     req.URL.Path,
		RawPath:  req.URL.RawPath,
		RawQuery: req.URL.RawQuery,
	}
	local.RequestURI = local.URL.RequestURI()
	return local, nil
}

// Close stops accepting background work and waits for pending cache
// writes.
func (r *Registration) Close(ctx context.Context) error {
	return r.d.tracker.Close(ctx)
}

func (r *Registration) persistError(err error, op, name string) error {
	b := errors.New(err).
		Component("serviceworker").
		Category(errors.CategoryDatabase).
		Context("operation", op)
	if name != "" {
		b = b.Context("cache_name", name)
	}
	return b.Build()
}
