package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantryhq/pantry/internal/artifactcache"
	pantryerrors "github.com/pantryhq/pantry/internal/errors"
	"github.com/pantryhq/pantry/internal/fspath"
)

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newStore(t *testing.T) *artifactcache.Store {
	t.Helper()
	root, err := fspath.New(t.TempDir())
	require.NoError(t, err)
	store, err := artifactcache.Open(artifactcache.Options{Root: root})
	require.NoError(t, err)
	return store
}

func TestEnsureDownloadsAndVerifies(t *testing.T) {
	body := "left-pad package bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	store := newStore(t)
	d := New(Options{Cache: store, Concurrency: 2})

	task := Task{Name: "left-pad", Version: "1.0.0", ResolvedURL: srv.URL, Integrity: hashOf(body)}
	err := d.Ensure(context.Background(), []Task{task})
	require.NoError(t, err)
	assert.True(t, store.Has("left-pad", "1.0.0"))
}

func TestEnsureSkipsCachedArtifacts(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Put("cached", "1.0.0", hashOf("x"), strings.NewReader("x")))

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	d := New(Options{Cache: store})
	err := d.Ensure(context.Background(), []Task{{Name: "cached", Version: "1.0.0", ResolvedURL: srv.URL, Integrity: hashOf("x")}})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestEnsureIntegrityMismatchIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("actual bytes"))
	}))
	defer srv.Close()

	store := newStore(t)
	d := New(Options{Cache: store})
	task := Task{Name: "bad", Version: "1.0.0", ResolvedURL: srv.URL, Integrity: hashOf("expected bytes")}
	err := d.Ensure(context.Background(), []Task{task})
	require.Error(t, err)
	assert.True(t, pantryerrors.Is(err, pantryerrors.KindIntegrityMismatch))
	assert.False(t, store.Has("bad", "1.0.0"))
}

func TestEnsureOfflineMissIsFatal(t *testing.T) {
	store := newStore(t)
	d := New(Options{Cache: store, Offline: true})
	task := Task{Name: "missing", Version: "1.0.0", ResolvedURL: "https://example.invalid/missing.tgz", Integrity: hashOf("x")}
	err := d.Ensure(context.Background(), []Task{task})
	require.Error(t, err)
	assert.True(t, pantryerrors.Is(err, pantryerrors.KindOfflineCacheMiss))
}

func TestEnsureDoesNotRetryOn4xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := newStore(t)
	d := New(Options{Cache: store})
	task := Task{Name: "notfound", Version: "1.0.0", ResolvedURL: srv.URL, Integrity: hashOf("x")}
	err := d.Ensure(context.Background(), []Task{task})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDefaultConcurrencyBounds(t *testing.T) {
	n := DefaultConcurrency()
	assert.GreaterOrEqual(t, n, 2)
	assert.LessOrEqual(t, n, 64)
}
