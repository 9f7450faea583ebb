package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pantryerrors "github.com/pantryhq/pantry/internal/errors"
	"github.com/pantryhq/pantry/internal/fspath"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestLoadPrefersPantryJSONOverPackageJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pantry.json", `{"name":"app","dependencies":{"lodash":"^4.0.0"}}`)
	writeFile(t, dir, "package.json", `{"name":"wrong"}`)

	root, err := fspath.New(dir)
	require.NoError(t, err)
	m, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "app", m.Name)
	dep, ok := m.Dependencies.Get("lodash")
	require.True(t, ok)
	require.Equal(t, "^4.0.0", dep.Version)
}

func TestLoadFallsBackToPackageJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name":"fallback","dependencies":{"express":"4.18.0"}}`)

	root, err := fspath.New(dir)
	require.NoError(t, err)
	m, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "fallback", m.Name)
}

func TestLoadStripsJSONCComments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pantry.jsonc", `{
		// a comment
		"name": "commented",
		"dependencies": { "left-pad": "1.0.0" }
	}`)

	root, err := fspath.New(dir)
	require.NoError(t, err)
	m, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "commented", m.Name)
}

func TestLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	root, err := fspath.New(dir)
	require.NoError(t, err)
	_, err = Load(root)
	require.Error(t, err)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestLoadRejectsWorkspacePatternTraversal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pantry.json", `{"name":"app","workspaces":["packages/*","../sibling"]}`)

	root, err := fspath.New(dir)
	require.NoError(t, err)
	_, err = Load(root)
	require.Error(t, err)
	pe, ok := pantryerrors.As(err)
	require.True(t, ok)
	require.Equal(t, pantryerrors.KindManifestParse, pe.Kind)
}

func TestLoadRejectsDuplicateDependencyName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pantry.json", `{"name":"app","dependencies":["lodash","lodash"]}`)

	root, err := fspath.New(dir)
	require.NoError(t, err)
	_, err = Load(root)
	require.Error(t, err)
	pe, ok := pantryerrors.As(err)
	require.True(t, ok)
	require.Equal(t, pantryerrors.KindManifestParse, pe.Kind)
}

func TestLoadRejectsNegativeMinimumReleaseAge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pantry.json", `{"name":"app","minimumReleaseAge":-1}`)

	root, err := fspath.New(dir)
	require.NoError(t, err)
	_, err = Load(root)
	require.Error(t, err)
	pe, ok := pantryerrors.As(err)
	require.True(t, ok)
	require.Equal(t, pantryerrors.KindManifestParse, pe.Kind)
}

func TestDependencyNormalizationAllFourShapes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pantry.json", `{
		"name": "shapes",
		"dependencies": {
			"string-form": "^1.2.3",
			"object-form": {"version": "2.0.0", "global": true},
			"github-form": "https://github.com/foo/bar#v1.0.0"
		},
		"devDependencies": ["left-pad", "is-odd"]
	}`)

	root, err := fspath.New(dir)
	require.NoError(t, err)
	m, err := Load(root)
	require.NoError(t, err)

	str, ok := m.Dependencies.Get("string-form")
	require.True(t, ok)
	require.Equal(t, "^1.2.3", str.Version)
	require.Equal(t, SourceRegistry, str.Source)

	obj, ok := m.Dependencies.Get("object-form")
	require.True(t, ok)
	require.Equal(t, "2.0.0", obj.Version)
	require.True(t, obj.Global)

	gh, ok := m.Dependencies.Get("github-form")
	require.True(t, ok)
	require.Equal(t, SourceGitHub, gh.Source)
	require.Equal(t, "foo/bar", gh.Repo)
	require.Equal(t, "v1.0.0", gh.Ref)

	leftPad, ok := m.DevDependencies.Get("left-pad")
	require.True(t, ok)
	require.Equal(t, "latest", leftPad.Version)
	isOdd, ok := m.DevDependencies.Get("is-odd")
	require.True(t, ok)
	require.Equal(t, "latest", isOdd.Version)
}

func TestDependencyNormalizationExtraSourceKinds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pantry.json", `{
		"name": "sources",
		"dependencies": {
			"local-form": "file:../sibling-pkg",
			"git-form": "git+https://example.com/foo/bar.git#main",
			"tarball-form": "https://cdn.example.com/foo-1.0.0.tgz",
			"npm-style-form": {"version": "^1.0.0", "registryUrl": "https://npm.internal/"}
		}
	}`)

	root, err := fspath.New(dir)
	require.NoError(t, err)
	m, err := Load(root)
	require.NoError(t, err)

	local, ok := m.Dependencies.Get("local-form")
	require.True(t, ok)
	require.Equal(t, SourceLocal, local.Source)
	require.Equal(t, "../sibling-pkg", local.Version)

	git, ok := m.Dependencies.Get("git-form")
	require.True(t, ok)
	require.Equal(t, SourceGit, git.Source)
	require.Equal(t, "main", git.Ref)

	tarball, ok := m.Dependencies.Get("tarball-form")
	require.True(t, ok)
	require.Equal(t, SourceHTTP, tarball.Source)

	npmStyle, ok := m.Dependencies.Get("npm-style-form")
	require.True(t, ok)
	require.Equal(t, SourceNpm, npmStyle.Source)
	require.Equal(t, "https://npm.internal/", npmStyle.RegistryURL)
}

func TestParseWhitespaceSeparated(t *testing.T) {
	deps := ParseWhitespaceSeparated("lodash express@4.18.0 left-pad")
	require.Len(t, deps, 3)
	require.Equal(t, "lodash", deps[0].Name)
	require.Equal(t, "latest", deps[0].Version)
	require.Equal(t, "express", deps[1].Name)
	require.Equal(t, "4.18.0", deps[1].Version)
}

func TestLoadNormalizedManifestExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pantry.json", `{
		"name": "extended",
		"dependencies": {"lodash": "^4.0.0"},
		"scripts": {"build": "pantry run build"},
		"services": [{"name": "db", "command": "postgres -D data", "env": {"PGPORT": "5432"}}],
		"publisherConfig": {"registry": "https://registry.internal/", "access": "restricted"},
		"registryOverrides": {"@acme": "https://npm.acme.internal/"},
		"concurrencyHints": {"maxDownloadConcurrency": 4, "maxInstallConcurrency": 2},
		"minimumReleaseAge": 86400,
		"minimumReleaseAgeExcludes": ["lodash"]
	}`)

	root, err := fspath.New(dir)
	require.NoError(t, err)
	m, err := Load(root)
	require.NoError(t, err)

	require.Equal(t, "pantry run build", m.Scripts["build"])
	require.Len(t, m.Services, 1)
	require.Equal(t, "db", m.Services[0].Name)
	require.Equal(t, "5432", m.Services[0].Env["PGPORT"])
	require.NotNil(t, m.PublisherConfig)
	require.Equal(t, "restricted", m.PublisherConfig.Access)
	require.Equal(t, "https://npm.acme.internal/", m.RegistryOverrides["@acme"])
	require.NotNil(t, m.ConcurrencyHints)
	require.Equal(t, 4, m.ConcurrencyHints.MaxDownloadConcurrency)
	require.Equal(t, Seconds(86400), m.MinimumReleaseAge)
	require.Equal(t, 24*time.Hour, m.MinimumReleaseAge.Duration())
	require.Equal(t, []string{"lodash"}, m.MinimumReleaseAgeExcludes)

	require.NoError(t, m.Save())
	reloaded, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "pantry run build", reloaded.Scripts["build"])
	require.Equal(t, Seconds(86400), reloaded.MinimumReleaseAge)
}

func TestSaveRoundTripsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pantry.json", `{"name":"app","future-field":"kept","dependencies":{"lodash":"^4.0.0"}}`)

	root, err := fspath.New(dir)
	require.NoError(t, err)
	m, err := Load(root)
	require.NoError(t, err)
	require.NoError(t, m.Save())

	reloaded, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "kept", reloaded.RawJSON["future-field"])
	dep, ok := reloaded.Dependencies.Get("lodash")
	require.True(t, ok)
	require.Equal(t, "^4.0.0", dep.Version)
}
