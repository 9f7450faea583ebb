package lockfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pantryhq/pantry/internal/fspath"
	"github.com/pantryhq/pantry/internal/manifest"
)

func TestEncodeIsDeterministicAcrossInsertionOrder(t *testing.T) {
	a := New("1.0.0", 1700000000)
	a.Put(Package{Name: "lodash", Version: "4.0.0", Source: manifest.SourceRegistry})
	a.Put(Package{Name: "express", Version: "4.18.0", Source: manifest.SourceRegistry})

	b := New("1.0.0", 1700000000)
	b.Put(Package{Name: "express", Version: "4.18.0", Source: manifest.SourceRegistry})
	b.Put(Package{Name: "lodash", Version: "4.0.0", Source: manifest.SourceRegistry})

	var bufA, bufB bytes.Buffer
	require.NoError(t, a.Encode(&bufA))
	require.NoError(t, b.Encode(&bufB))
	require.Equal(t, bufA.String(), bufB.String())
}

func TestEncodeEndsWithTrailingNewline(t *testing.T) {
	lf := New("1.0.0", 1700000000)
	lf.Put(Package{Name: "lodash", Version: "4.0.0", Source: manifest.SourceRegistry})
	var buf bytes.Buffer
	require.NoError(t, lf.Encode(&buf))
	require.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, err := fspath.New(filepath.Join(dir, "pantry-lock.json"))
	require.NoError(t, err)

	lf := New("2.3.0", 1700000000)
	lf.Put(Package{
		Name:         "lodash",
		Version:      "4.17.21",
		Source:       manifest.SourceRegistry,
		Integrity:    "sha256-abc",
		Dependencies: map[string]string{"inner": "1.0.0"},
	})
	require.NoError(t, lf.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "2.3.0", loaded.ProjectVersion)
	require.EqualValues(t, 1700000000, loaded.GeneratedAt)
	pkg, ok := loaded.Get("lodash", "4.17.21")
	require.True(t, ok)
	require.Equal(t, "sha256-abc", pkg.Integrity)
	require.Equal(t, "lodash", pkg.Name)
	require.Equal(t, manifest.SourceRegistry, pkg.Source)
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pantry-lock.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"lockfileVersion":999,"packages":{}}`), 0o644))

	abs, err := fspath.New(path)
	require.NoError(t, err)
	_, err = Load(abs)
	require.Error(t, err)
	var mismatch *VersionMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestImportNpm(t *testing.T) {
	contents := []byte(`{
		"name": "app",
		"lockfileVersion": 3,
		"packages": {
			"": {"name": "app"},
			"node_modules/left-pad": {
				"version": "1.3.0",
				"resolved": "https://registry.npmjs.org/left-pad/-/left-pad-1.3.0.tgz",
				"integrity": "sha512-abc"
			},
			"node_modules/left-pad/node_modules/nested": {
				"version": "2.0.0"
			}
		}
	}`)
	lf, err := ImportNpm(contents)
	require.NoError(t, err)
	pkg, ok := lf.Get("left-pad", "1.3.0")
	require.True(t, ok)
	require.Equal(t, "sha512-abc", pkg.Integrity)
	_, ok = lf.Get("nested", "2.0.0")
	require.True(t, ok)
}

func TestImportYarn(t *testing.T) {
	contents := []byte(`# THIS IS AN AUTOGENERATED FILE.
"left-pad@^1.3.0":
  version "1.3.0"
  dependencies:
    inner "^2.0.0"
`)
	lf, err := ImportYarn(contents)
	require.NoError(t, err)
	pkg, ok := lf.Get("left-pad", "1.3.0")
	require.True(t, ok)
	require.Equal(t, map[string]string{"inner": "^2.0.0"}, pkg.Dependencies)
}

func TestImportPnpm(t *testing.T) {
	contents := []byte(`lockfileVersion: 5.4
packages:
  /left-pad/1.3.0:
    resolution: {integrity: sha512-abc}
  /@scope/name/2.0.0:
    resolution: {integrity: sha512-def}
    dev: true
`)
	lf, err := ImportPnpm(contents)
	require.NoError(t, err)
	pkg, ok := lf.Get("left-pad", "1.3.0")
	require.True(t, ok)
	require.Equal(t, "sha512-abc", pkg.Integrity)

	scoped, ok := lf.Get("@scope/name", "2.0.0")
	require.True(t, ok)
	require.True(t, scoped.Dev)
}
