package lockfile

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pantryhq/pantry/internal/manifest"
)

// pnpmLockfile mirrors the subset of pnpm-lock.yaml Pantry needs to seed a
// ResolvedGraph. Reference: pnpm/pnpm packages/lockfile-types.
type pnpmLockfile struct {
	Version  float32                     `yaml:"lockfileVersion"`
	Packages map[string]pnpmPackageEntry `yaml:"packages"`
}

type pnpmPackageEntry struct {
	Resolution struct {
		Integrity string `yaml:"integrity"`
	} `yaml:"resolution"`
	Dependencies         map[string]string `yaml:"dependencies"`
	OptionalDependencies map[string]string `yaml:"optionalDependencies"`
	PeerDependencies     map[string]string `yaml:"peerDependencies"`
	Dev                  bool              `yaml:"dev"`
	Optional             bool              `yaml:"optional"`
}

// ImportPnpm converts the contents of a pnpm-lock.yaml into a Lockfile
// (§4.D supplement). pnpm keys its packages section "/$name/$version" (or
// "/$name@$version" in lockfileVersion 6+); both forms are parsed.
func ImportPnpm(contents []byte) (*Lockfile, error) {
	var raw pnpmLockfile
	if err := yaml.Unmarshal(contents, &raw); err != nil {
		return nil, errors.Wrap(err, "unable to decode pnpm-lock.yaml")
	}

	lf := New("", 0)
	for key, entry := range raw.Packages {
		name, version, ok := pnpmSplitKey(key)
		if !ok {
			continue
		}
		lf.Put(Package{
			Name:                 name,
			Version:              version,
			Source:               manifest.SourceRegistry,
			Integrity:            entry.Resolution.Integrity,
			Dev:                  entry.Dev,
			Optional:             entry.Optional,
			Dependencies:         entry.Dependencies,
			OptionalDependencies: entry.OptionalDependencies,
			PeerDependencies:     entry.PeerDependencies,
		})
	}
	return lf, nil
}

// pnpmSplitKey parses a packages-section key into name and version,
// handling both "/name/version" and "/name@version" forms and scoped
// package names ("/@scope/name/version").
func pnpmSplitKey(key string) (name string, version string, ok bool) {
	key = strings.TrimPrefix(key, "/")
	key = strings.TrimSuffix(key, ")") // peer-dep suffix, e.g. "(react@18.0.0)"
	if idx := strings.Index(key, "("); idx != -1 {
		key = key[:idx]
	}

	if strings.HasPrefix(key, "@") {
		slash := strings.Index(key, "/")
		if slash == -1 {
			return "", "", false
		}
		rest := key[slash+1:]
		if idx := strings.IndexAny(rest, "/@"); idx != -1 {
			name = key[:slash+1+idx]
			version = rest[idx+1:]
			return name, version, version != ""
		}
		return "", "", false
	}

	if idx := strings.LastIndex(key, "/"); idx != -1 {
		return key[:idx], key[idx+1:], true
	}
	if idx := strings.LastIndex(key, "@"); idx != -1 {
		return key[:idx], key[idx+1:], true
	}
	return "", "", false
}
