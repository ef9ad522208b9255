package api

import (
	"net/http"
	"testing"

	"github.com/gopos/gopos-edge/internal/cachestorage"
	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCaches(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "gopos-v1", "/index.html", "/index.css")

	rec := env.do(http.MethodGet, "/api/v2/caches", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Caches []repository.StoreStats `json:"caches"`
		Count  int                     `json:"count"`
	}](t, rec)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "gopos-v1", body.Caches[0].Name)
	assert.Equal(t, int64(2), body.Caches[0].Entries)
	assert.Equal(t, int64(len("content of /index.html")+len("content of /index.css")), body.Caches[0].Bytes)
}

func TestListCacheEntries(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.register(t, "gopos-v1", "/index.html", "/index.css")

	rec := env.do(http.MethodGet, "/api/v2/caches/gopos-v1/entries", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Cache   string                     `json:"cache"`
		Entries []cachestorage.RequestInfo `json:"entries"`
		Count   int                        `json:"count"`
	}](t, rec)
	assert.Equal(t, "gopos-v1", body.Cache)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, public+"/index.html", body.Entries[0].URL)
	assert.Equal(t, http.MethodGet, body.Entries[0].Method)
	assert.Equal(t, http.StatusOK, body.Entries[0].Status)
	assert.Equal(t, public+"/index.css", body.Entries[1].URL)

	rec = env.do(http.MethodGet, "/api/v2/caches/unknown/entries", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteCache(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, err := env.storage.Open(t.Context(), "old-v0")
	require.NoError(t, err)

	rec := env.do(http.MethodDelete, "/api/v2/caches/old-v0", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	has, err := env.storage.Has(t.Context(), "old-v0")
	require.NoError(t, err)
	assert.False(t, has)

	rec = env.do(http.MethodDelete, "/api/v2/caches/old-v0", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
