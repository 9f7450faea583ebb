package source

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pantryhq/pantry/internal/manifest"
)

func TestStaticClassifiesSourceKinds(t *testing.T) {
	require.False(t, Static(manifest.Dependency{Source: manifest.SourceRegistry}))
	require.False(t, Static(manifest.Dependency{Source: manifest.SourceNpm}))
	require.True(t, Static(manifest.Dependency{Source: manifest.SourceGitHub}))
	require.True(t, Static(manifest.Dependency{Source: manifest.SourceHTTP}))
	require.True(t, Static(manifest.Dependency{Source: manifest.SourceGit}))
	require.True(t, Static(manifest.Dependency{Source: manifest.SourceLocal}))
}

func TestResolveGitHub(t *testing.T) {
	dep := manifest.Dependency{Name: "bar", Source: manifest.SourceGitHub, Repo: "foo/bar", Ref: "v1.0.0"}
	res, err := Resolve(dep)
	require.NoError(t, err)
	require.Equal(t, KindArchive, res.Kind)
	require.Equal(t, "https://codeload.github.com/foo/bar/tar.gz/v1.0.0", res.ResolvedURL)
}

func TestResolveGitHubDefaultsToHead(t *testing.T) {
	dep := manifest.Dependency{Name: "bar", Source: manifest.SourceGitHub, Repo: "foo/bar"}
	res, err := Resolve(dep)
	require.NoError(t, err)
	require.Equal(t, "https://codeload.github.com/foo/bar/tar.gz/HEAD", res.ResolvedURL)
}

func TestResolveHTTP(t *testing.T) {
	dep := manifest.Dependency{Name: "tarball-form", Source: manifest.SourceHTTP, Version: "https://cdn.example.com/foo-1.0.0.tgz"}
	res, err := Resolve(dep)
	require.NoError(t, err)
	require.Equal(t, KindArchive, res.Kind)
	require.Equal(t, "https://cdn.example.com/foo-1.0.0.tgz", res.ResolvedURL)
}

func TestResolveGitOnGitHubRemoteResolvesToArchive(t *testing.T) {
	dep := manifest.Dependency{Name: "git-form", Source: manifest.SourceGit, Repo: "https://github.com/foo/bar.git", Ref: "main"}
	res, err := Resolve(dep)
	require.NoError(t, err)
	require.Equal(t, KindArchive, res.Kind)
	require.Equal(t, "https://codeload.github.com/foo/bar/tar.gz/main", res.ResolvedURL)
}

func TestResolveGitOnNonGitHubRemoteIsUnsupported(t *testing.T) {
	dep := manifest.Dependency{Name: "git-form", Source: manifest.SourceGit, Repo: "https://gitlab.com/foo/bar.git", Ref: "main"}
	_, err := Resolve(dep)
	require.Error(t, err)
	var unsupported *UnsupportedSourceError
	require.ErrorAs(t, err, &unsupported)
}

func TestResolveLocal(t *testing.T) {
	dep := manifest.Dependency{Name: "local-form", Source: manifest.SourceLocal, Version: "../sibling-pkg"}
	res, err := Resolve(dep)
	require.NoError(t, err)
	require.Equal(t, KindWorkspace, res.Kind)
	require.Equal(t, "../sibling-pkg", res.LocalPath)
}
