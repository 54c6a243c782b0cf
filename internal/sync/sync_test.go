package sync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/outpostml/dvc/internal/oxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	got := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		got[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return got
}

func TestFetchCommitDBExtractsTarball(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"dirs/root.json": `{"entries":[]}`})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/commits/abc123/db", r.URL.Path)
		require.NoError(t, writeTarGz(w, src))
	}))
	defer srv.Close()

	dest := t.TempDir()
	c := NewClient(srv.URL, "", nil)
	require.NoError(t, c.FetchCommitDB(context.Background(), "abc123", dest))

	assert.Equal(t, readTree(t, src), readTree(t, dest))
}

func TestFetchVersionsSendsHashListAndExtractsTarball(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"aaa/data.csv": "1,2,3"})

	var receivedBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/versions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		receivedBody = string(body)
		require.NoError(t, writeTarGz(w, src))
	}))
	defer srv.Close()

	dest := t.TempDir()
	c := NewClient(srv.URL, "", nil)
	require.NoError(t, c.FetchVersions(context.Background(), []string{"aaa", "bbb"}, dest))

	assert.Equal(t, "aaa\nbbb", receivedBody)
	assert.Equal(t, readTree(t, src), readTree(t, dest))
}

func TestFetchChunkReturnsRangeBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chunk/c1/data.csv", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("chunk_start"))
		assert.Equal(t, "5", r.URL.Query().Get("chunk_size"))
		w.Write([]byte("abcde"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	data, err := c.FetchChunk(context.Background(), "c1", "data.csv", 10, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), data)
}

func TestFetchChunkMapsUnauthorizedWithoutRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-token", nil)
	_, err := c.FetchChunk(context.Background(), "c1", "data.csv", 0, 5)
	require.Error(t, err)
	assert.True(t, oxerr.Is(err, oxerr.KindAuthentication))
	assert.Equal(t, 1, calls)
}

func TestFetchChunkRetriesThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	data, err := c.FetchChunk(context.Background(), "c1", "data.csv", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	assert.Equal(t, 3, calls)
}

func TestPushCommitSendsBearerTokenAndTarball(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"dirs/root.json": `{}`})

	var gotAuth string
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		_, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok123", nil)
	err := c.PushCommit(context.Background(), src, map[string]string{"branch": "main"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Equal(t, "branch=main", gotQuery)
}
