package serviceworker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gopos/gopos-edge/internal/cachestorage"
	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
	"github.com/gopos/gopos-edge/internal/network"
	"github.com/gopos/gopos-edge/internal/testutil"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shellManifest = []string{"/index.html", "/index.css"}

func TestRegister_InstallsManifest(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	env := newTestEnv(t, defaultOptions())
	env.serve("/index.html", http.StatusOK, "<html>shell</html>")
	env.serve("/index.css", http.StatusOK, "body{margin:0}")

	w, err := env.reg.Register(ctx, Version{CacheName: "gopos-v1", Manifest: shellManifest})
	require.NoError(t, err)
	assert.Equal(t, entities.WorkerStateActive, w.State())
	assert.Same(t, w, env.reg.Active())

	keys, err := env.storage.Cache("gopos-v1").Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	for path, body := range map[string]string{"/index.html": "<html>shell</html>", "/index.css": "body{margin:0}"} {
		resp, err := env.storage.Cache("gopos-v1").Match(ctx, http.MethodGet, public+path)
		require.NoError(t, err)
		require.NotNil(t, resp, path)
		assert.Equal(t, body, string(resp.Body), "stored bytes must match what was fetched")
	}

	record, err := env.versions.GetVersion(ctx, "gopos-v1")
	require.NoError(t, err)
	assert.Equal(t, entities.WorkerStateActive, record.State)
	assert.JSONEq(t, `["/index.html","/index.css"]`, record.Manifest)
	assert.Equal(t, []string{"gopos-v1"}, env.clients.Claims())
}

func TestRegister_FailedFetchAbortsInstall(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	env := newTestEnv(t, defaultOptions())
	env.serve("/index.html", http.StatusOK, "<html>shell</html>")
	env.serve("/index.css", http.StatusNotFound, "not found")

	w, err := env.reg.Register(ctx, Version{CacheName: "gopos-v1", Manifest: shellManifest})
	require.ErrorIs(t, err, ErrInstallFailed)
	assert.Nil(t, w)
	assert.Nil(t, env.reg.Active())

	has, err := env.storage.Has(ctx, "gopos-v1")
	require.NoError(t, err)
	assert.False(t, has, "a failed install must not leave a store behind")

	record, err := env.versions.GetVersion(ctx, "gopos-v1")
	require.NoError(t, err)
	assert.Equal(t, entities.WorkerStateRedundant, record.State)
	assert.Contains(t, record.Error, "/index.css")
	assert.Empty(t, env.clients.Claims())
}

func TestRegister_NetworkErrorAbortsInstall(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, defaultOptions())
	env.serve("/index.html", http.StatusOK, "<html>shell</html>")
	// /index.css has no responder: the transport fails

	_, err := env.reg.Register(t.Context(), Version{CacheName: "gopos-v1", Manifest: shellManifest})
	require.ErrorIs(t, err, ErrInstallFailed)
	assert.ErrorIs(t, err, network.ErrNetwork)
}

func TestRegister_FailedUpgradeKeepsPreviousVersion(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	env := newTestEnv(t, defaultOptions())
	env.serve("/index.html", http.StatusOK, "v1 shell")
	env.serve("/index.css", http.StatusOK, "v1 css")

	v1, err := env.reg.Register(ctx, Version{CacheName: "gopos-v1", Manifest: shellManifest})
	require.NoError(t, err)

	env.serve("/index.css", http.StatusInternalServerError, "oops")
	_, err = env.reg.Register(ctx, Version{CacheName: "gopos-v2", Manifest: shellManifest})
	require.ErrorIs(t, err, ErrInstallFailed)

	assert.Same(t, v1, env.reg.Active())
	assert.Equal(t, entities.WorkerStateActive, v1.State())

	names, err := env.storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gopos-v1"}, names)

	resp, err := env.storage.Cache("gopos-v1").Match(ctx, http.MethodGet, public+"/index.css")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "v1 css", string(resp.Body))
}

func TestRegister_ActivationDeletesStaleStores(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	env := newTestEnv(t, defaultOptions())
	env.serve("/index.html", http.StatusOK, "shell")
	env.serve("/index.css", http.StatusOK, "css")

	for _, name := range []string{"gopos-v0", "legacy"} {
		_, err := env.storage.Open(ctx, name)
		require.NoError(t, err)
	}

	v1, err := env.reg.Register(ctx, Version{CacheName: "gopos-v1", Manifest: shellManifest})
	require.NoError(t, err)

	v2, err := env.reg.Register(ctx, Version{CacheName: "gopos-v2", Manifest: shellManifest})
	require.NoError(t, err)

	names, err := env.storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gopos-v2"}, names)

	assert.Equal(t, entities.WorkerStateSuperseded, v1.State())
	assert.Equal(t, entities.WorkerStateActive, v2.State())
	assert.Equal(t, []string{"gopos-v1", "gopos-v2"}, env.clients.Claims())

	record, err := env.versions.GetVersion(ctx, "gopos-v1")
	require.NoError(t, err)
	assert.Equal(t, entities.WorkerStateSuperseded, record.State)
}

func TestRegister_SameVersionIsNoop(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	env := newTestEnv(t, defaultOptions())
	env.serve("/index.html", http.StatusOK, "shell")
	env.serve("/index.css", http.StatusOK, "css")

	first, err := env.reg.Register(ctx, Version{CacheName: "gopos-v1", Manifest: shellManifest})
	require.NoError(t, err)
	again, err := env.reg.Register(ctx, Version{CacheName: "gopos-v1", Manifest: shellManifest})
	require.NoError(t, err)

	assert.Same(t, first, again)
	assert.Equal(t, 1, env.calls(http.MethodGet, "/index.html"))
}

func TestSkipWaiting(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	opts := defaultOptions()
	opts.SkipWaiting = false
	env := newTestEnv(t, opts)
	env.serve("/index.html", http.StatusOK, "shell")
	env.serve("/index.css", http.StatusOK, "css")

	_, err := env.reg.SkipWaiting(ctx)
	require.ErrorIs(t, err, ErrNoWaitingWorker)

	w, err := env.reg.Register(ctx, Version{CacheName: "gopos-v1", Manifest: shellManifest})
	require.NoError(t, err)
	assert.Equal(t, entities.WorkerStateWaiting, w.State())
	assert.Nil(t, env.reg.Active())
	assert.Same(t, w, env.reg.Waiting())

	// requests keep going to the network while nothing is active
	res, err := env.reg.HandleFetch(ctx, get("/index.html", ""))
	require.NoError(t, err)
	assert.Equal(t, SourcePassthrough, res.Source)

	activated, err := env.reg.SkipWaiting(ctx)
	require.NoError(t, err)
	assert.Same(t, w, activated)
	assert.Same(t, w, env.reg.Active())
	assert.Nil(t, env.reg.Waiting())
	assert.Equal(t, entities.WorkerStateActive, w.State())
}

func TestRegister_NewerWaitingReplacesOlder(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	opts := defaultOptions()
	opts.SkipWaiting = false
	env := newTestEnv(t, opts)
	env.serve("/index.html", http.StatusOK, "shell")
	env.serve("/index.css", http.StatusOK, "css")

	older, err := env.reg.Register(ctx, Version{CacheName: "gopos-v1", Manifest: shellManifest})
	require.NoError(t, err)
	newer, err := env.reg.Register(ctx, Version{CacheName: "gopos-v2", Manifest: shellManifest})
	require.NoError(t, err)

	assert.Equal(t, entities.WorkerStateRedundant, older.State())
	assert.Same(t, newer, env.reg.Waiting())

	has, err := env.storage.Has(ctx, "gopos-v1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRestore(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	db := testutil.NewMemoryDB(t)

	first := newTestEnvWithDB(t, db, defaultOptions())
	require.ErrorIs(t, first.reg.Restore(ctx), ErrNoActiveWorker)

	first.serve("/index.html", http.StatusOK, "shell")
	first.serve("/index.css", http.StatusOK, "css")
	_, err := first.reg.Register(ctx, Version{CacheName: "gopos-v1", Manifest: shellManifest})
	require.NoError(t, err)

	second := newTestEnvWithDB(t, db, defaultOptions())
	require.NoError(t, second.reg.Restore(ctx))
	active := second.reg.Active()
	require.NotNil(t, active)
	assert.Equal(t, Version{CacheName: "gopos-v1", Manifest: shellManifest}, active.Version())
	assert.Equal(t, []string{"gopos-v1"}, second.clients.Claims())

	res, err := second.reg.HandleFetch(ctx, get("/index.css", ""))
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, 0, second.mock.GetTotalCallCount())
}

func TestPruneStale(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	env := newTestEnv(t, defaultOptions())

	_, err := env.reg.PruneStale(ctx)
	require.ErrorIs(t, err, ErrNoActiveWorker)

	env.serve("/index.html", http.StatusOK, "shell")
	env.serve("/index.css", http.StatusOK, "css")
	_, err = env.reg.Register(ctx, Version{CacheName: "gopos-v1", Manifest: shellManifest})
	require.NoError(t, err)

	_, err = env.storage.Open(ctx, "orphan")
	require.NoError(t, err)

	deleted, err := env.reg.PruneStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, deleted)
}

func installShell(t *testing.T, env *testEnv) {
	t.Helper()
	env.serve("/index.html", http.StatusOK, "<html>shell</html>")
	env.serve("/index.css", http.StatusOK, "css")
	_, err := env.reg.Register(t.Context(), Version{CacheName: "gopos-v1", Manifest: shellManifest})
	require.NoError(t, err)
	env.mock.Reset()
}

func TestHandleFetch_CacheHitSkipsNetwork(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, defaultOptions())
	installShell(t, env)

	res, err := env.reg.HandleFetch(t.Context(), get("/index.html", "text/html"))
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, "<html>shell</html>", string(res.Response.Body))
	assert.Equal(t, 0, env.mock.GetTotalCallCount())
}

func TestHandleFetch_CachesBasicOK(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	env := newTestEnv(t, defaultOptions())
	installShell(t, env)
	env.serve("/api/menu", http.StatusOK, `{"items":[]}`)

	res, err := env.reg.HandleFetch(ctx, get("/api/menu", ""))
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, res.Source)
	assert.JSONEq(t, `{"items":[]}`, string(res.Response.Body))

	require.NoError(t, env.reg.Tracker().Wait(ctx))

	res, err = env.reg.HandleFetch(ctx, get("/api/menu", ""))
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, 1, env.calls(http.MethodGet, "/api/menu"))
}

func TestHandleFetch_DoesNotCache(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		opts   func(*Options)
		setup  func(env *testEnv)
		req    func() *http.Request
		source Source
	}{
		{
			name: "non-GET passes through",
			setup: func(env *testEnv) {
				env.mock.RegisterResponder(http.MethodPost, upstream+"/api/chat",
					httpmock.NewStringResponder(http.StatusOK, `{"reply":"hi"}`))
			},
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"q":"hi"}`))
			},
			source: SourcePassthrough,
		},
		{
			name: "encoded body is relayed",
			setup: func(env *testEnv) {
				env.mock.RegisterResponder(http.MethodGet, upstream+"/app.js",
					httpmock.NewStringResponder(http.StatusOK, "\x1f\x8b").
						HeaderSet(http.Header{"Content-Encoding": {"gzip"}}))
			},
			req:    func() *http.Request { return get("/app.js", "") },
			source: SourceNetwork,
		},
		{
			name:   "non-200 is relayed",
			setup:  func(env *testEnv) { env.serve("/api/orders/9", http.StatusNotFound, "missing") },
			req:    func() *http.Request { return get("/api/orders/9", "") },
			source: SourceNetwork,
		},
		{
			name: "redirect to foreign origin is relayed",
			setup: func(env *testEnv) {
				env.mock.RegisterResponder(http.MethodGet, upstream+"/logo.svg", func(req *http.Request) (*http.Response, error) {
					resp := httpmock.NewStringResponse(http.StatusFound, "")
					resp.Header.Set("Location", "http://cdn.test/logo.svg")
					resp.Request = req
					return resp, nil
				})
				env.mock.RegisterResponder(http.MethodGet, "http://cdn.test/logo.svg",
					func(req *http.Request) (*http.Response, error) {
						resp := httpmock.NewStringResponse(http.StatusOK, "<svg/>")
						resp.Request = req
						return resp, nil
					})
			},
			req:    func() *http.Request { return get("/logo.svg", "") },
			source: SourceNetwork,
		},
		{
			name:   "oversized response is relayed",
			opts:   func(o *Options) { o.MaxEntrySize = 4 },
			setup:  func(env *testEnv) { env.serve("/big.json", http.StatusOK, "0123456789") },
			req:    func() *http.Request { return get("/big.json", "") },
			source: SourceNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()
			opts := defaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			env := newTestEnv(t, opts)
			installShell(t, env)
			tt.setup(env)

			res, err := env.reg.HandleFetch(ctx, tt.req())
			require.NoError(t, err)
			assert.Equal(t, tt.source, res.Source)
			require.NoError(t, env.reg.Tracker().Wait(ctx))

			keys, err := env.storage.Cache("gopos-v1").Keys(ctx)
			require.NoError(t, err)
			assert.Len(t, keys, len(shellManifest), "nothing new may be cached")
		})
	}
}

func TestHandleFetch_RefusesCrossOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		install bool
		req     func() *http.Request
	}{
		{
			name:    "foreign GET",
			install: true,
			req:     func() *http.Request { return get("http://169.254.169.254/latest/meta-data", "") },
		},
		{
			name: "foreign GET before install",
			req:  func() *http.Request { return get("http://cdn.test/lib.js", "") },
		},
		{
			name:    "foreign POST",
			install: true,
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "http://cdn.test/api", strings.NewReader("{}"))
			},
		},
		{
			name:    "upstream origin is not the public origin",
			install: true,
			req:     func() *http.Request { return get(upstream+"/index.html", "") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, defaultOptions())
			if tt.install {
				installShell(t, env)
			}
			env.mock.RegisterNoResponder(httpmock.NewStringResponder(http.StatusOK, "relayed"))

			res, err := env.reg.HandleFetch(t.Context(), tt.req())
			require.ErrorIs(t, err, ErrCrossOrigin)
			assert.Nil(t, res)
			assert.Equal(t, 0, env.mock.GetTotalCallCount())
		})
	}
}

func TestHandleFetch_AbsolutePublicOriginTarget(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	env := newTestEnv(t, defaultOptions())
	installShell(t, env)
	env.serve("/dashboard.js", http.StatusOK, "dashboard")

	res, err := env.reg.HandleFetch(ctx, get(public+"/dashboard.js", ""))
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, res.Source)
	assert.Equal(t, "dashboard", string(res.Response.Body))
	assert.Equal(t, cachestorage.ResponseTypeBasic, res.Response.Type)
	assert.Equal(t, 1, env.calls(http.MethodGet, "/dashboard.js"))

	require.NoError(t, env.reg.Tracker().Wait(ctx))

	// the relative and absolute forms share one cache entry
	res, err = env.reg.HandleFetch(ctx, get("/dashboard.js", ""))
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, 1, env.calls(http.MethodGet, "/dashboard.js"))

	res, err = env.reg.HandleFetch(ctx, get(public+"/index.html", "text/html"))
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, "<html>shell</html>", string(res.Response.Body))
}

func TestHandleFetch_OfflineNavigationGetsShell(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, defaultOptions())
	installShell(t, env)
	// /dashboard.html has no responder: the network is down

	res, err := env.reg.HandleFetch(t.Context(), get("/dashboard.html", "text/html,application/xhtml+xml;q=0.9"))
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, "<html>shell</html>", string(res.Response.Body))
}

func TestHandleFetch_OfflineNonHTMLFails(t *testing.T) {
	t.Parallel()

	for _, accept := range []string{"", "application/json", "image/*"} {
		t.Run("accept="+accept, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, defaultOptions())
			installShell(t, env)

			res, err := env.reg.HandleFetch(t.Context(), get("/api/menu", accept))
			require.ErrorIs(t, err, network.ErrNetwork)
			assert.Nil(t, res)
		})
	}
}

func TestHandleFetch_OfflineWithoutShellFails(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	env := newTestEnv(t, defaultOptions())
	env.serve("/index.css", http.StatusOK, "css")
	_, err := env.reg.Register(ctx, Version{CacheName: "gopos-v1", Manifest: []string{"/index.css"}})
	require.NoError(t, err)

	_, err = env.reg.HandleFetch(ctx, get("/dashboard.html", "text/html"))
	require.ErrorIs(t, err, network.ErrNetwork)
}

func TestHandleFetch_CachedCopyIsIndependent(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	env := newTestEnv(t, defaultOptions())
	installShell(t, env)
	env.serve("/index.js", http.StatusOK, "console.log(1)")

	res, err := env.reg.HandleFetch(ctx, get("/index.js", ""))
	require.NoError(t, err)
	res.Response.Body[0] = 'X'
	require.NoError(t, env.reg.Tracker().Wait(ctx))

	stored, err := env.storage.Cache("gopos-v1").Match(ctx, http.MethodGet, public+"/index.js")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "console.log(1)", string(stored.Body))
	assert.Equal(t, cachestorage.ResponseTypeBasic, stored.Type)
}
