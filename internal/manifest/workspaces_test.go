package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pantryhq/pantry/internal/fspath"
)

func TestExpandWorkspacesMatchesGlobAndRespectsExclusion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "packages", "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "packages", "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "packages", "excluded"), 0o755))
	writeFile(t, filepath.Join(dir, "packages", "a"), "pantry.json", `{"name":"a"}`)
	writeFile(t, filepath.Join(dir, "packages", "b"), "pantry.json", `{"name":"b"}`)
	writeFile(t, filepath.Join(dir, "packages", "excluded"), "pantry.json", `{"name":"excluded"}`)
	writeFile(t, dir, "pantry.json", `{
		"name": "root",
		"workspaces": ["packages/*", "!packages/excluded"]
	}`)

	root, err := fspath.New(dir)
	require.NoError(t, err)
	m, err := Load(root)
	require.NoError(t, err)

	workspaces, err := m.ExpandWorkspaces()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, ws := range workspaces {
		names[ws.Manifest.Name] = true
	}
	require.True(t, names["a"])
	require.True(t, names["b"])
	require.False(t, names["excluded"])
}

func TestExpandWorkspacesSkipsDirectoriesWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "packages", "no-manifest"), 0o755))
	writeFile(t, dir, "pantry.json", `{"name":"root","workspaces":["packages/*"]}`)

	root, err := fspath.New(dir)
	require.NoError(t, err)
	m, err := Load(root)
	require.NoError(t, err)

	workspaces, err := m.ExpandWorkspaces()
	require.NoError(t, err)
	require.Empty(t, workspaces)
}
