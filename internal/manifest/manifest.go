// Package manifest loads and normalizes a project's dependency manifest
// (§4.C): pantry.json, pantry.jsonc, or a package.json fallback. The
// pantry.toml installer settings and .npmrc registry/auth knobs that sit
// alongside it are loaded by internal/config, not here.
package manifest

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/muhammadmuzzammil1998/jsonc"

	pantryerrors "github.com/pantryhq/pantry/internal/errors"
	"github.com/pantryhq/pantry/internal/fspath"
)

// fileNames is tried in order; the first that exists wins. package.json is
// last because it's a foreign format we merely read dependency fields from,
// not a format Pantry writes back to.
var fileNames = []string{"pantry.json", "pantry.jsonc", "package.json"}

// Manifest is the normalized, in-memory form of a project's manifest,
// produced by Load. Dependencies are order-preserving; unknown top-level
// fields are kept in RawJSON so that Save doesn't destroy data a newer
// pantry.json schema might add.
type Manifest struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`

	Dependencies         DependencyList `json:"dependencies,omitempty"`
	DevDependencies      DependencyList `json:"devDependencies,omitempty"`
	OptionalDependencies DependencyList `json:"optionalDependencies,omitempty"`
	PeerDependencies     DependencyList `json:"peerDependencies,omitempty"`

	Workspaces []string `json:"workspaces,omitempty"`

	// Scripts maps a lifecycle or user-defined script name to its
	// command line (§4.K). Unlike Dependencies, Scripts has no alternate
	// shapes to normalize — it's already a flat string map on disk.
	Scripts map[string]string `json:"scripts,omitempty"`

	// Services declares long-running processes the environment should be
	// able to start, each contributing to the environment's published Env
	// (§3 "Resolved graph", Candidate.Env; §4.B).
	Services []ServiceDecl `json:"services,omitempty"`

	// PublisherConfig holds the metadata a registry needs when this
	// manifest's own package is published, not consumed during install.
	PublisherConfig *PublisherConfig `json:"publisherConfig,omitempty"`

	// RegistryOverrides maps an "@scope" to a registry base URL, the
	// manifest-level counterpart to .npmrc's "@scope:registry" (§3). Load
	// parses it; the install pipeline does not read it, so scope registries
	// come from .npmrc alone.
	RegistryOverrides map[string]string `json:"registryOverrides,omitempty"`

	// ConcurrencyHints holds per-project download/install concurrency
	// limits (§5). Load parses them; the install pipeline does not read
	// them, so concurrency comes from config.Settings alone.
	ConcurrencyHints *ConcurrencyHints `json:"concurrencyHints,omitempty"`

	// MinimumReleaseAge excludes any candidate published more recently
	// than this many seconds ago from resolution (§3, §4.G policy),
	// unless its name appears in MinimumReleaseAgeExcludes.
	MinimumReleaseAge         Seconds  `json:"minimumReleaseAge,omitempty"`
	MinimumReleaseAgeExcludes []string `json:"minimumReleaseAgeExcludes,omitempty"`

	// RawJSON is the exact decoded object, used by Save to merge structured
	// fields back over the original document instead of emitting only the
	// fields Manifest knows about.
	RawJSON map[string]interface{} `json:"-"`

	// Path is the absolute path to the file Load read, and Save writes back
	// to by default.
	Path fspath.AbsolutePath `json:"-"`
	// Root is the project root the manifest was found in.
	Root fspath.AbsolutePath `json:"-"`
}

// Seconds is a nonnegative duration stored on disk as a plain integer
// (§3: "minimum-release-age is nonnegative seconds"), distinct from
// config.EnvSettings' PANTRY_CACHE_TTL which takes the same shape for the
// same reason: a manifest is meant to be hand-edited JSON, where a bare
// integer reads better than a Go duration string.
type Seconds int64

// Duration converts s to a time.Duration.
func (s Seconds) Duration() time.Duration { return time.Duration(s) * time.Second }

// ServiceDecl declares a long-running process the environment can start
// (§3 "Normalized manifest").
type ServiceDecl struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Env     map[string]string `json:"env,omitempty"`
}

// PublisherConfig holds the metadata a registry needs when this project is
// itself published as a package; it plays no role in consuming other
// packages' dependencies.
type PublisherConfig struct {
	Registry string `json:"registry,omitempty"`
	Access   string `json:"access,omitempty"` // "public" or "restricted"
}

// ConcurrencyHints is the on-disk shape of a manifest's per-project
// concurrency limits (§5's bounded-worker-pool model); see
// Manifest.ConcurrencyHints for what reads them.
type ConcurrencyHints struct {
	MaxDownloadConcurrency int `json:"maxDownloadConcurrency,omitempty"`
	MaxInstallConcurrency  int `json:"maxInstallConcurrency,omitempty"`
}

// NotFoundError is returned by Load when no recognized manifest file exists
// under root.
type NotFoundError struct{ Root string }

func (e *NotFoundError) Error() string {
	return "no pantry.json, pantry.jsonc, or package.json found in " + e.Root
}

// Load searches root for a manifest file in fileNames order and normalizes
// it. Loading is idempotent: calling Load twice on an unmodified file
// produces equal Manifests.
func Load(root fspath.AbsolutePath) (*Manifest, error) {
	for _, name := range fileNames {
		path := root.Join(name)
		if !path.FileExists() {
			continue
		}
		contents, err := path.ReadFile()
		if err != nil {
			return nil, err
		}
		m, err := unmarshal(contents)
		if err != nil {
			return nil, err
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		m.Path = path
		m.Root = root
		return m, nil
	}
	return nil, &NotFoundError{Root: root.String()}
}

// unmarshal decodes manifest bytes, stripping jsonc-style comments first
// (a no-op on plain JSON, so the same path serves pantry.json,
// pantry.jsonc, and package.json alike).
func unmarshal(data []byte) (*Manifest, error) {
	stripped := jsonc.ToJSON(data)

	var rawJSON map[string]interface{}
	if err := json.Unmarshal(stripped, &rawJSON); err != nil {
		return nil, err
	}

	m := &Manifest{}
	if err := json.Unmarshal(stripped, m); err != nil {
		return nil, err
	}
	m.RawJSON = rawJSON
	return m, nil
}

// Save serializes m back to its Path, merging its structured fields over
// RawJSON so unknown fields round-trip, and writes atomically via a
// temp-file rename.
func (m *Manifest) Save() error {
	structured, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var structuredFields map[string]interface{}
	if err := json.Unmarshal(structured, &structuredFields); err != nil {
		return err
	}

	merged := make(map[string]interface{}, len(m.RawJSON))
	for k, v := range m.RawJSON {
		merged[k] = v
	}
	for k, v := range structuredFields {
		merged[k] = v
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(merged); err != nil {
		return err
	}

	return writeAtomic(m.Path, buf.Bytes())
}

func writeAtomic(path fspath.AbsolutePath, contents []byte) error {
	dir := path.Dir()
	if err := dir.MkdirAll(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir.String(), ".pantry-manifest-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, bytes.NewReader(contents)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path.String()); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// validate enforces §3's normalized-manifest invariants that Load must
// reject rather than silently accept: a workspace pattern that could escape
// the project root, a dependency name declared twice within the same kind,
// and a negative minimumReleaseAge.
func (m *Manifest) validate() error {
	for _, pattern := range m.Workspaces {
		if strings.Contains(pattern, "..") {
			return pantryerrors.InvalidManifest("workspace pattern " + pattern + " must not contain \"..\"")
		}
	}

	kinds := []struct {
		name string
		list DependencyList
	}{
		{"dependencies", m.Dependencies},
		{"devDependencies", m.DevDependencies},
		{"optionalDependencies", m.OptionalDependencies},
		{"peerDependencies", m.PeerDependencies},
	}
	for _, k := range kinds {
		seen := make(map[string]bool, len(k.list))
		for _, dep := range k.list {
			if seen[dep.Name] {
				return pantryerrors.InvalidManifest("duplicate dependency " + dep.Name + " in " + k.name)
			}
			seen[dep.Name] = true
		}
	}

	if m.MinimumReleaseAge < 0 {
		return pantryerrors.InvalidManifest("minimumReleaseAge must be nonnegative")
	}

	return nil
}

// AllDependencies returns dependencies, dev dependencies, optional
// dependencies, and peer dependencies concatenated in that order. The
// result does not record which list each entry came from — callers needing
// that distinction should consult the four fields directly; this is a
// convenience for code that just needs every name.
func (m *Manifest) AllDependencies() DependencyList {
	all := make(DependencyList, 0, len(m.Dependencies)+len(m.DevDependencies)+len(m.OptionalDependencies)+len(m.PeerDependencies))
	all = append(all, m.Dependencies...)
	all = append(all, m.DevDependencies...)
	all = append(all, m.OptionalDependencies...)
	all = append(all, m.PeerDependencies...)
	return all
}
