package manifest

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Source identifies where a dependency's artifact should come from.
type Source string

const (
	// SourceRegistry resolves through the configured package registry.
	SourceRegistry Source = "registry"
	// SourceGitHub resolves from a GitHub repository at an optional ref.
	SourceGitHub Source = "github"
	// SourceNpm resolves an npm-style package specifier against an
	// explicit, non-default registry (§3: "source ... npm-style").
	SourceNpm Source = "npm-style"
	// SourceHTTP resolves from a direct tarball URL.
	SourceHTTP Source = "http"
	// SourceGit resolves from an arbitrary (non-GitHub) git remote.
	SourceGit Source = "git"
	// SourceLocal resolves from a path on disk, relative to the manifest.
	SourceLocal Source = "local"
)

var (
	githubURLPattern = regexp.MustCompile(`^(?:https?://github\.com/|github:)([\w.-]+/[\w.-]+?)(?:\.git)?(?:#(.+))?$`)
	gitURLPattern    = regexp.MustCompile(`^(?:git\+)?(?:https?|ssh|git)://[^\s]+?(?:\.git)?(?:#(.+))?$`)
)

// Dependency is the normalized shape every manifest dependency value
// collapses into, regardless of whether it was written as a version string,
// an object, a bare array entry, or a whitespace-separated string (§4.C).
type Dependency struct {
	Name    string `json:"-"`
	Version string `json:"version"`
	Global  bool   `json:"global,omitempty"`
	Source  Source `json:"source,omitempty"`
	Repo    string `json:"repo,omitempty"`
	Ref     string `json:"ref,omitempty"`

	// URL is set for SourceHTTP (a direct tarball URL).
	URL string `json:"url,omitempty"`
	// RegistryURL overrides the default registry for this one dependency,
	// used with SourceNpm (§3: "optional ... registry URL").
	RegistryURL string `json:"registryUrl,omitempty"`
}

// normalizeValue turns one raw dependency JSON value into a Dependency. name
// is already known from the enclosing map key, except for the bare-array and
// whitespace-separated forms where it's embedded in the value itself.
func normalizeValue(name string, raw json.RawMessage) (Dependency, error) {
	dep := Dependency{Name: name, Version: "latest", Source: SourceRegistry}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return normalizeString(name, asString), nil
	}

	var asObject struct {
		Version     string `json:"version"`
		Global      bool   `json:"global"`
		Source      string `json:"source"`
		Repo        string `json:"repo"`
		Ref         string `json:"ref"`
		URL         string `json:"url"`
		RegistryURL string `json:"registryUrl"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		dep.Global = asObject.Global
		dep.Repo = asObject.Repo
		dep.Ref = asObject.Ref
		dep.URL = asObject.URL
		dep.RegistryURL = asObject.RegistryURL
		if asObject.Version != "" {
			dep.Version = asObject.Version
		}
		if asObject.Source != "" {
			dep.Source = Source(asObject.Source)
		}
		if dep.Source == SourceRegistry && dep.Repo != "" {
			dep.Source = SourceGitHub
		}
		if dep.Source == SourceRegistry && dep.URL != "" {
			dep.Source = SourceHTTP
		}
		if dep.Source == SourceRegistry && dep.RegistryURL != "" {
			dep.Source = SourceNpm
		}
		return dep, nil
	}

	return dep, &InvalidDependencyError{Name: name, Raw: string(raw)}
}

// normalizeString handles a plain version-string dependency value, detecting
// a GitHub URL/shorthand, a generic git remote, a local path, or a direct
// tarball URL and extracting their distinguishing fields.
func normalizeString(name string, value string) Dependency {
	value = strings.TrimSpace(value)
	if m := githubURLPattern.FindStringSubmatch(value); m != nil {
		ref := m[2]
		if ref == "" {
			ref = "HEAD"
		}
		return Dependency{Name: name, Version: ref, Source: SourceGitHub, Repo: m[1], Ref: ref}
	}
	if strings.HasPrefix(value, "file:") {
		return Dependency{Name: name, Version: strings.TrimPrefix(value, "file:"), Source: SourceLocal}
	}
	if (strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")) &&
		(strings.HasSuffix(value, ".tgz") || strings.HasSuffix(value, ".tar.gz")) {
		return Dependency{Name: name, Version: value, Source: SourceHTTP}
	}
	if m := gitURLPattern.FindStringSubmatch(value); m != nil {
		ref := m[1]
		if ref == "" {
			ref = "HEAD"
		}
		return Dependency{Name: name, Version: ref, Source: SourceGit, Repo: value, Ref: ref}
	}
	if value == "" {
		value = "latest"
	}
	return Dependency{Name: name, Version: value, Source: SourceRegistry}
}

// ParseWhitespaceSeparated splits a whitespace-separated dependency string
// ("lodash express@4 left-pad") into bare names, each defaulting to latest.
func ParseWhitespaceSeparated(line string) []Dependency {
	fields := strings.Fields(line)
	deps := make([]Dependency, 0, len(fields))
	for _, f := range fields {
		name, version, hasVersion := strings.Cut(f, "@")
		if !hasVersion || version == "" {
			deps = append(deps, normalizeString(f, "latest"))
			continue
		}
		deps = append(deps, normalizeString(name, version))
	}
	return deps
}

// InvalidDependencyError is returned when a dependency value doesn't match
// any of the recognized shapes (string, object, array, whitespace string).
type InvalidDependencyError struct {
	Name string
	Raw  string
}

func (e *InvalidDependencyError) Error() string {
	return "dependency " + e.Name + " has an unrecognized value: " + e.Raw
}
