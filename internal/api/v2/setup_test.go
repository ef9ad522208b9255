package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gopos/gopos-edge/internal/cachestorage"
	"github.com/gopos/gopos-edge/internal/clients"
	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/network"
	"github.com/gopos/gopos-edge/internal/push"
	"github.com/gopos/gopos-edge/internal/serviceworker"
	"github.com/gopos/gopos-edge/internal/testutil"
	"github.com/jarcoal/httpmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

const (
	upstream = "http://origin.test"
	public   = "http://edge.test"
)

type testEnv struct {
	e       *echo.Echo
	ctrl    *Controller
	mock    *httpmock.MockTransport
	hub     *clients.Hub
	storage *cachestorage.Storage
	push    *push.Service
}

type envOptions struct {
	skipWaiting bool
	rateLimit   float64
	burst       int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, envOptions{skipWaiting: true})
}

func newTestEnvWith(t *testing.T, o envOptions) *testEnv {
	t.Helper()
	log := logger.NewNop()
	db := testutil.NewMemoryDB(t)

	mock := httpmock.NewMockTransport()
	fetcher, err := network.NewHTTPFetcher(upstream, 0, log, network.WithTransport(mock))
	require.NoError(t, err)

	hub := clients.NewHub(log)
	t.Cleanup(hub.Close)
	storage := cachestorage.New(repository.NewCacheRepository(db), cachestorage.Options{}, log)
	versions := repository.NewWorkerVersionRepository(db)

	reg, err := serviceworker.NewRegistration(serviceworker.Deps{
		PublicOrigin: public,
		Storage:      storage,
		Fetcher:      fetcher,
		Versions:     versions,
		Clients:      hub,
		Logger:       log,
	}, serviceworker.Options{
		Fallback:           "/index.html",
		SkipWaiting:        o.skipWaiting,
		InstallConcurrency: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	bus := push.NewBus(time.Second, nil, log)
	t.Cleanup(bus.Stop)
	bus.Subscribe(push.NewDisplayNotifier(hub, log))
	svc := push.NewService(&push.ServiceConfig{
		Options:    push.DefaultOptions(),
		RateLimit:  o.rateLimit,
		Burst:      o.burst,
		Repository: repository.NewNotificationRepository(db),
		Bus:        bus,
		Display:    hub,
		Opener:     hub,
		Logger:     log,
	})

	e := echo.New()
	ctrl := New(e, &Controller{
		Registration: reg,
		Versions:     versions,
		Storage:      storage,
		Hub:          hub,
		Push:         svc,
	}, log)

	return &testEnv{e: e, ctrl: ctrl, mock: mock, hub: hub, storage: storage, push: svc}
}

func (env *testEnv) serve(path string, status int, body string) {
	env.mock.RegisterResponder(http.MethodGet, upstream+path, httpmock.NewStringResponder(status, body))
}

func (env *testEnv) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

// register installs a version whose manifest is served by the mock origin.
func (env *testEnv) register(t *testing.T, name string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		env.serve(p, http.StatusOK, "content of "+p)
	}
	body, err := json.Marshal(RegisterRequest{CacheName: name, Manifest: paths})
	require.NoError(t, err)
	rec := env.do(http.MethodPost, "/api/v2/worker/register", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
