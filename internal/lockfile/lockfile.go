// Package lockfile implements Pantry's own deterministic lockfile codec
// (§4.D) and, alongside it, import converters that seed a lockfile from an
// npm, yarn, or pnpm lockfile already sitting in a project (§4.D supplement).
package lockfile

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/pantryhq/pantry/internal/fspath"
	"github.com/pantryhq/pantry/internal/manifest"
)

// CurrentVersion is the lockfile schema version Pantry writes. Version
// bumps are forward-only: a lockfile-version newer than this one fails to
// load rather than being silently misread.
const CurrentVersion = 1

// Package is one resolved dependency's entry in the lockfile. Source and,
// for non-registry sources, URL are required (§3 LockfileEntry) so a
// dependency pinned to a GitHub repo, a git remote, an http tarball, or a
// local path can be reproduced from the lockfile alone, without
// re-consulting the manifest.
type Package struct {
	Name      string          `json:"-"`
	Version   string          `json:"version"`
	Source    manifest.Source `json:"source"`
	URL       string          `json:"url,omitempty"`
	Resolved  string          `json:"resolved,omitempty"`
	Integrity string          `json:"integrity,omitempty"`

	Dependencies         map[string]string `json:"dependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`

	Dev      bool `json:"dev,omitempty"`
	Optional bool `json:"optional,omitempty"`
}

// Lockfile is the full resolved dependency graph as persisted to
// pantry-lock.json. Packages is keyed "name@version" so that two different
// resolved versions of the same package coexist as distinct entries, the
// way a real dependency graph with diamond conflicts requires. ProjectVersion
// and GeneratedAt (§3) record the manifest version this lockfile was solved
// against and when, so a stale lockfile can be spotted without re-resolving.
type Lockfile struct {
	Version        int                `json:"lockfileVersion"`
	ProjectVersion string             `json:"project-version,omitempty"`
	GeneratedAt    int64              `json:"generated-at"`
	Packages       map[string]Package `json:"packages"`
}

// New returns an empty lockfile at the current schema version, stamped
// with the project version it was solved against and the caller-supplied
// generatedAt (unix seconds).
func New(projectVersion string, generatedAt int64) *Lockfile {
	return &Lockfile{
		Version:        CurrentVersion,
		ProjectVersion: projectVersion,
		GeneratedAt:    generatedAt,
		Packages:       map[string]Package{},
	}
}

// VersionMismatchError is returned by Load when a lockfile's version is
// newer than CurrentVersion.
type VersionMismatchError struct {
	Found int
}

func (e *VersionMismatchError) Error() string {
	return "lockfile version mismatch: file is at a newer schema version than this build of pantry supports"
}

// Load reads and decodes the lockfile at path.
func Load(path fspath.AbsolutePath) (*Lockfile, error) {
	contents, err := path.ReadFile()
	if err != nil {
		return nil, err
	}
	var lf Lockfile
	if err := json.Unmarshal(contents, &lf); err != nil {
		return nil, errors.Wrap(err, "unable to decode lockfile")
	}
	if lf.Version > CurrentVersion {
		return nil, &VersionMismatchError{Found: lf.Version}
	}
	for name, pkg := range lf.Packages {
		pkg.Name = packageName(name)
		lf.Packages[name] = pkg
	}
	return &lf, nil
}

// Save serializes the lockfile deterministically (map keys sorted
// lexicographically, struct fields in declaration order, two-space indent,
// trailing newline) and writes it to
// path atomically via a temp-file rename.
func (l *Lockfile) Save(path fspath.AbsolutePath) error {
	var buf bytes.Buffer
	if err := l.Encode(&buf); err != nil {
		return err
	}
	return writeAtomic(path, buf.Bytes())
}

// Encode writes the deterministic serialization to w: no encoding/json
// struct field can express "keys sorted across a map[string]Package" on its
// own, so the object is built by hand as an ordered sequence of key/value
// pairs.
func (l *Lockfile) Encode(w io.Writer) error {
	keys := make([]string, 0, len(l.Packages))
	for k := range l.Packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString("{\n  \"lockfileVersion\": ")
	versionBytes, err := json.Marshal(l.Version)
	if err != nil {
		return err
	}
	buf.Write(versionBytes)

	if l.ProjectVersion != "" {
		buf.WriteString(",\n  \"project-version\": ")
		projectVersionBytes, err := json.Marshal(l.ProjectVersion)
		if err != nil {
			return err
		}
		buf.Write(projectVersionBytes)
	}

	buf.WriteString(",\n  \"generated-at\": ")
	generatedAtBytes, err := json.Marshal(l.GeneratedAt)
	if err != nil {
		return err
	}
	buf.Write(generatedAtBytes)

	buf.WriteString(",\n  \"packages\": {")
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n    ")
		keyBytes, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(keyBytes)
		buf.WriteString(": ")

		valueBytes, err := json.MarshalIndent(l.Packages[key], "    ", "  ")
		if err != nil {
			return err
		}
		buf.Write(valueBytes)
	}
	if len(keys) > 0 {
		buf.WriteString("\n  ")
	}
	buf.WriteString("}\n}\n")

	_, err = w.Write(buf.Bytes())
	return err
}

// Put inserts or replaces the package keyed "name@version".
func (l *Lockfile) Put(pkg Package) {
	if l.Packages == nil {
		l.Packages = map[string]Package{}
	}
	l.Packages[lockfileKey(pkg.Name, pkg.Version)] = pkg
}

// Get looks up a package by name and version.
func (l *Lockfile) Get(name, version string) (Package, bool) {
	pkg, ok := l.Packages[lockfileKey(name, version)]
	return pkg, ok
}

func lockfileKey(name, version string) string {
	return name + "@" + version
}

// packageName extracts the name portion of a "name@version" key, handling
// scoped packages ("@scope/name@version") whose own name contains an '@'.
func packageName(key string) string {
	if len(key) > 0 && key[0] == '@' {
		if idx := indexFromOffset(key, '@', 1); idx != -1 {
			return key[:idx]
		}
		return key
	}
	if idx := indexFromOffset(key, '@', 0); idx != -1 {
		return key[:idx]
	}
	return key
}

func indexFromOffset(s string, b byte, offset int) int {
	for i := offset; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func writeAtomic(path fspath.AbsolutePath, contents []byte) error {
	dir := path.Dir()
	if err := dir.MkdirAll(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir.String(), ".pantry-lock-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(contents); err != nil {
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
