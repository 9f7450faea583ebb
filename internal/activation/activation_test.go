package activation

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantryhq/pantry/internal/envcache"
	"github.com/pantryhq/pantry/internal/fspath"
	"github.com/pantryhq/pantry/internal/platform"
)

type stubInstaller struct {
	calls int
	binDir, libDir fspath.AbsolutePath
}

func (s *stubInstaller) Install(ctx context.Context, root fspath.AbsolutePath) (fspath.AbsolutePath, fspath.AbsolutePath, error) {
	s.calls++
	return s.binDir, s.libDir, nil
}

func writeManifest(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pantry.json"), []byte(`{"name":"demo","version":"1.0.0"}`), 0o644))
}

func TestActivateNoOpWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	h := New(Options{Cache: envcache.New(), Dirs: mustDirs(t), Installer: &stubInstaller{}})

	payload, ok, err := h.Activate(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, payload)
}

func TestActivateInstallsOnMissThenHitsCache(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir)

	binDir, err := fspath.New(filepath.Join(t.TempDir(), "bin"))
	require.NoError(t, err)
	libDir, err := fspath.New(filepath.Join(t.TempDir(), "lib"))
	require.NoError(t, err)
	require.NoError(t, binDir.MkdirAll())
	require.NoError(t, libDir.MkdirAll())

	installer := &stubInstaller{binDir: binDir, libDir: libDir}
	h := New(Options{Cache: envcache.New(), Dirs: mustDirs(t), Installer: installer})

	payload, ok, err := h.Activate(context.Background(), dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, installer.calls)
	assert.Contains(t, payload.PathValue, binDir.String())

	// Second activation for the same manifest content hits the cache and
	// does not call Install again.
	payload2, ok2, err := h.Activate(context.Background(), dir)
	require.NoError(t, err)
	require.True(t, ok2)
	assert.Equal(t, 1, installer.calls)
	assert.Equal(t, payload.PathValue, payload2.PathValue)
}

func TestActivateChangedManifestReinstalls(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir)

	binDir, err := fspath.New(filepath.Join(t.TempDir(), "bin"))
	require.NoError(t, err)
	libDir, err := fspath.New(filepath.Join(t.TempDir(), "lib"))
	require.NoError(t, err)

	installer := &stubInstaller{binDir: binDir, libDir: libDir}
	cache := envcache.New()
	h := New(Options{Cache: cache, Dirs: mustDirs(t), Installer: installer, Now: func() time.Time { return time.Unix(0, 0) }})

	_, _, err = h.Activate(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, installer.calls)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pantry.json"), []byte(`{"name":"demo","version":"2.0.0"}`), 0o644))
	_, _, err = h.Activate(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, installer.calls)
}

func TestCachedPayloadRoundTripsJSON(t *testing.T) {
	p := Payload{PathValue: "/x/bin", EnvVars: map[string]string{"LD_LIBRARY_PATH": "/x/lib"}}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var out Payload
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, p, out)
}

func mustDirs(t *testing.T) platform.Dirs {
	t.Helper()
	root := t.TempDir()
	data, err := fspath.New(filepath.Join(root, "data"))
	require.NoError(t, err)
	return platform.Dirs{Data: data}
}
