// Package source resolves a dependency's non-registry spec (§3: "source
// (one of registry, github, npm-style, http, git, local)") directly from
// the manifest, without a registry metadata lookup. registry and npm-style
// specs still go through the registry client; this package covers the
// other four.
package source

import (
	"fmt"
	"strings"

	"github.com/pantryhq/pantry/internal/manifest"
)

// Kind classifies how a Resolution's artifact is obtained.
type Kind int

const (
	// KindArchive is fetched as a tarball over HTTP, the same path the
	// downloader already runs for registry/npm-style candidates.
	KindArchive Kind = iota
	// KindWorkspace is a path on disk relative to the project root, linked
	// into place rather than downloaded.
	KindWorkspace
)

// Resolution is what a statically-sourced Dependency resolves to.
type Resolution struct {
	Kind        Kind
	Version     string
	ResolvedURL string
	LocalPath   string
}

// Static reports whether dep's artifact location is fully determined by
// the manifest spec itself, bypassing the registry lookup resolver.Resolve
// otherwise performs for every dependency name.
func Static(dep manifest.Dependency) bool {
	switch dep.Source {
	case manifest.SourceGitHub, manifest.SourceHTTP, manifest.SourceGit, manifest.SourceLocal:
		return true
	default:
		return false
	}
}

// UnsupportedSourceError is returned when a git remote isn't hosted
// somewhere Resolve knows how to turn into an archive URL.
type UnsupportedSourceError struct {
	Name string
	Repo string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("%s: git source %q has no archive endpoint Pantry can fetch over plain HTTP", e.Name, e.Repo)
}

// Resolve converts a statically-sourced Dependency into a Resolution.
// Callers must have already confirmed Static(dep).
func Resolve(dep manifest.Dependency) (Resolution, error) {
	switch dep.Source {
	case manifest.SourceGitHub:
		ref := refOrHead(dep.Ref)
		return Resolution{Kind: KindArchive, Version: ref, ResolvedURL: githubTarballURL(dep.Repo, ref)}, nil

	case manifest.SourceHTTP:
		url := dep.URL
		if url == "" {
			url = dep.Version
		}
		return Resolution{Kind: KindArchive, Version: dep.Version, ResolvedURL: url}, nil

	case manifest.SourceGit:
		ref := refOrHead(dep.Ref)
		repo := dep.Repo
		if host, owner, name, ok := parseGitHubRemote(repo); ok {
			_ = host
			return Resolution{Kind: KindArchive, Version: ref, ResolvedURL: githubTarballURL(owner+"/"+name, ref)}, nil
		}
		return Resolution{}, &UnsupportedSourceError{Name: dep.Name, Repo: repo}

	case manifest.SourceLocal:
		return Resolution{Kind: KindWorkspace, Version: dep.Version, LocalPath: dep.Version}, nil

	default:
		return Resolution{}, fmt.Errorf("source: %q is not a static source", dep.Source)
	}
}

func refOrHead(ref string) string {
	if ref == "" {
		return "HEAD"
	}
	return ref
}

// githubTarballURL builds a codeload.github.com tarball URL for repo
// ("owner/name") at ref, the same endpoint GitHub's own "npm install
// user/repo" support resolves to.
func githubTarballURL(repo, ref string) string {
	return "https://codeload.github.com/" + repo + "/tar.gz/" + ref
}

// parseGitHubRemote recognizes a generic git remote that happens to point
// at github.com, so SourceGit dependencies on GitHub still resolve through
// the same archive endpoint as SourceGitHub ones instead of failing.
func parseGitHubRemote(remote string) (host, owner, name string, ok bool) {
	trimmed := strings.TrimPrefix(remote, "git+")
	idx := strings.Index(trimmed, "#")
	if idx >= 0 {
		trimmed = trimmed[:idx]
	}
	trimmed = strings.TrimSuffix(trimmed, ".git")
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "ssh://git@github.com/", "git@github.com:"} {
		if strings.HasPrefix(trimmed, prefix) {
			rest := strings.TrimPrefix(trimmed, prefix)
			parts := strings.SplitN(rest, "/", 2)
			if len(parts) == 2 {
				return "github.com", parts[0], parts[1], true
			}
		}
	}
	return "", "", "", false
}
