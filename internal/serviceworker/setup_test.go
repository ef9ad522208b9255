package serviceworker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gopos/gopos-edge/internal/cachestorage"
	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/network"
	"github.com/gopos/gopos-edge/internal/testutil"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	upstream = "http://origin.test"
	public   = "http://edge.test"
)

type fakeClaimer struct {
	mu     sync.Mutex
	claims []string
}

func (f *fakeClaimer) Claim(version string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, version)
	return 1
}

func (f *fakeClaimer) Claims() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.claims...)
}

type testEnv struct {
	db       *gorm.DB
	reg      *Registration
	storage  *cachestorage.Storage
	versions repository.WorkerVersionRepository
	mock     *httpmock.MockTransport
	clients  *fakeClaimer
}

func defaultOptions() Options {
	return Options{
		Fallback:           "/index.html",
		SkipWaiting:        true,
		InstallConcurrency: 2,
		MaxEntrySize:       1 << 20,
	}
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	return newTestEnvWithDB(t, testutil.NewMemoryDB(t), opts)
}

func newTestEnvWithDB(t *testing.T, db *gorm.DB, opts Options) *testEnv {
	t.Helper()
	log := logger.NewNop()
	mock := httpmock.NewMockTransport()
	fetcher, err := network.NewHTTPFetcher(upstream, 0, log, network.WithTransport(mock))
	require.NoError(t, err)

	env := &testEnv{
		db:       db,
		storage:  cachestorage.New(repository.NewCacheRepository(db), cachestorage.Options{}, log),
		versions: repository.NewWorkerVersionRepository(db),
		mock:     mock,
		clients:  &fakeClaimer{},
	}
	env.reg, err = NewRegistration(Deps{
		PublicOrigin: public,
		Storage:      env.storage,
		Fetcher:      fetcher,
		Versions:     env.versions,
		Clients:      env.clients,
		Logger:       log,
	}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.reg.Close(context.Background()) })
	return env
}

func (e *testEnv) serve(path string, status int, body string) {
	e.mock.RegisterResponder(http.MethodGet, upstream+path, httpmock.NewStringResponder(status, body))
}

func (e *testEnv) calls(method, path string) int {
	return e.mock.GetCallCountInfo()[method+" "+upstream+path]
}

func get(path, accept string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return req
}
