package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gopos/gopos-edge/internal/cachestorage"
	"github.com/gopos/gopos-edge/internal/conf"
	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/network"
	"github.com/gopos/gopos-edge/internal/observability/metrics"
	"github.com/gopos/gopos-edge/internal/serviceworker"
	"github.com/gopos/gopos-edge/internal/testutil"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	upstream = "http://origin.test"
	public   = "http://edge.test"
)

type testServer struct {
	srv  *Server
	reg  *serviceworker.Registration
	mock *httpmock.MockTransport
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewNop()
	db := testutil.NewMemoryDB(t)

	m, err := metrics.New()
	require.NoError(t, err)

	mock := httpmock.NewMockTransport()
	fetcher, err := network.NewHTTPFetcher(upstream, 0, log, network.WithTransport(mock))
	require.NoError(t, err)

	storage := cachestorage.New(repository.NewCacheRepository(db), cachestorage.Options{}, log)
	versions := repository.NewWorkerVersionRepository(db)
	reg, err := serviceworker.NewRegistration(serviceworker.Deps{
		PublicOrigin: public,
		Storage:      storage,
		Fetcher:      fetcher,
		Versions:     versions,
		Metrics:      m.Cache,
		Logger:       log,
	}, serviceworker.Options{Fallback: "/index.html", SkipWaiting: true, InstallConcurrency: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	settings := &conf.Settings{}
	settings.Metrics.Path = "/metrics"

	srv := New(Config{
		Settings:     settings,
		Registration: reg,
		Versions:     versions,
		Storage:      storage,
		Metrics:      m,
		Logger:       log,
	})
	return &testServer{srv: srv, reg: reg, mock: mock}
}

func (ts *testServer) serve(path string, status int, body string) {
	ts.mock.RegisterResponder(http.MethodGet, upstream+path, httpmock.NewStringResponder(status, body))
}

func (ts *testServer) install(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		ts.serve(p, http.StatusOK, "cached "+p)
	}
	_, err := ts.reg.Register(t.Context(), serviceworker.Version{CacheName: "gopos-v1", Manifest: paths})
	require.NoError(t, err)
	// later responders model a changed or unreachable origin
	ts.mock.Reset()
}

func (ts *testServer) do(method, target, accept string, body io.Reader) *httptest.ResponseRecorder {
	if body == nil {
		body = http.NoBody
	}
	req := httptest.NewRequest(method, target, body)
	req.Host = "edge.test"
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIntercept_ServesFromCache(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.install(t, "/index.html", "/index.css")

	rec := ts.do(http.MethodGet, "/index.css", "text/css", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cached /index.css", rec.Body.String())
	assert.Equal(t, "cache", rec.Header().Get(HeaderSource))
	assert.Equal(t, 0, ts.mock.GetTotalCallCount())
}

func TestIntercept_PassthroughBeforeInstall(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.mock.RegisterResponder(http.MethodGet, upstream+"/index.html",
		httpmock.NewStringResponder(http.StatusOK, "live").HeaderSet(http.Header{"X-Upstream": {"yes"}}))

	rec := ts.do(http.MethodGet, "/index.html", "text/html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "live", rec.Body.String())
	assert.Equal(t, "passthrough", rec.Header().Get(HeaderSource))
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
}

func TestIntercept_NonGETReachesOrigin(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.install(t, "/index.html")

	ts.mock.RegisterResponder(http.MethodPost, upstream+"/api/chat",
		func(req *http.Request) (*http.Response, error) {
			data, _ := io.ReadAll(req.Body)
			return httpmock.NewStringResponse(http.StatusCreated, "echo:"+string(data)), nil
		})

	rec := ts.do(http.MethodPost, "/api/chat", "", strings.NewReader("hello"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "echo:hello", rec.Body.String())
	assert.Equal(t, "passthrough", rec.Header().Get(HeaderSource))
}

func TestIntercept_OfflineNavigationGetsShell(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.install(t, "/index.html")

	rec := ts.do(http.MethodGet, "/dashboard.html", "text/html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cached /index.html", rec.Body.String())
	assert.Equal(t, "fallback", rec.Header().Get(HeaderSource))
}

func TestIntercept_OfflineAssetIsBadGateway(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.install(t, "/index.html")

	rec := ts.do(http.MethodGet, "/missing.js", "*/*", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "error", rec.Header().Get(HeaderSource))
}

func TestIntercept_AbsoluteFormTargets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		install bool
		method  string
		target  string
	}{
		{name: "metadata service", install: true, method: http.MethodGet, target: "http://169.254.169.254/latest/meta-data"},
		{name: "before install", method: http.MethodGet, target: "http://169.254.169.254/latest/meta-data"},
		{name: "foreign POST", install: true, method: http.MethodPost, target: "http://internal.test/admin"},
		{name: "upstream named directly", install: true, method: http.MethodGet, target: upstream + "/index.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t)
			if tt.install {
				ts.install(t, "/index.html")
			}
			ts.mock.RegisterNoResponder(httpmock.NewStringResponder(http.StatusOK, "secret"))

			rec := ts.do(tt.method, tt.target, "text/html", nil)
			assert.Equal(t, http.StatusMisdirectedRequest, rec.Code)
			assert.Equal(t, "error", rec.Header().Get(HeaderSource))
			assert.NotContains(t, rec.Body.String(), "secret")
			assert.Equal(t, 0, ts.mock.GetTotalCallCount())
		})
	}
}

func TestIntercept_AbsolutePublicOriginIsServedLocally(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.install(t, "/index.html")
	ts.serve("/dashboard.js", http.StatusOK, "dashboard")

	rec := ts.do(http.MethodGet, public+"/index.html", "text/html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cached /index.html", rec.Body.String())
	assert.Equal(t, "cache", rec.Header().Get(HeaderSource))

	rec = ts.do(http.MethodGet, public+"/dashboard.js", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dashboard", rec.Body.String())
	assert.Equal(t, "network", rec.Header().Get(HeaderSource))
	assert.Equal(t, 1, ts.mock.GetCallCountInfo()["GET "+upstream+"/dashboard.js"])
}

func TestIntercept_HeadHasNoBody(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.mock.RegisterResponder(http.MethodHead, upstream+"/index.html",
		httpmock.NewStringResponder(http.StatusOK, ""))

	rec := ts.do(http.MethodHead, "/index.html", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.install(t, "/index.html")
	ts.do(http.MethodGet, "/index.html", "text/html", nil)

	rec := ts.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `gopos_edge_worker_installs_total{result="success"} 1`)
	assert.Contains(t, rec.Body.String(), `gopos_edge_fetch_requests_total{source="cache"} 1`)
}

func TestClientScriptRoute(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, ClientScriptPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, rec.Body.String(), "/api/v2/clients/ws")
}

func TestAdminRoutesAreNotIntercepted(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v2/worker", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderSource))
	assert.Equal(t, 0, ts.mock.GetTotalCallCount())
}
