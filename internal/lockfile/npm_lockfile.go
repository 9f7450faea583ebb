package lockfile

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/pantryhq/pantry/internal/manifest"
)

// npmLockfile mirrors the subset of package-lock.json (lockfileVersion 2+)
// Pantry needs to seed a ResolvedGraph. Keys of Packages are paths into
// node_modules; the root package is keyed "".
type npmLockfile struct {
	Name            string                `json:"name"`
	Version         string                `json:"version"`
	LockfileVersion int                   `json:"lockfileVersion"`
	Packages        map[string]npmPackage `json:"packages"`
}

type npmPackage struct {
	Version              string            `json:"version"`
	Resolved             string            `json:"resolved"`
	Integrity            string            `json:"integrity"`
	Dev                  bool              `json:"dev"`
	Optional             bool              `json:"optional"`
	Dependencies         map[string]string `json:"dependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
}

// ImportNpm converts the contents of a package-lock.json into a Lockfile,
// dropping the node_modules-path keying npm uses in favor of Pantry's
// name@version keying (§4.D supplement). Lockfiles without a "packages"
// field (npm <=6) aren't supported, the same restriction the teacher
// carries for its own npm importer.
func ImportNpm(contents []byte) (*Lockfile, error) {
	var raw npmLockfile
	if err := json.Unmarshal(contents, &raw); err != nil {
		return nil, errors.Wrap(err, "unable to decode package-lock.json")
	}
	if len(raw.Packages) == 0 {
		return nil, errors.New("package-lock.json has no 'packages' field; lockfileVersion <=1 is not supported")
	}

	lf := New(raw.Version, 0)
	for path, pkg := range raw.Packages {
		if path == "" {
			continue // root project entry, not a dependency
		}
		name := npmPackageName(path)
		if name == "" {
			continue
		}
		lf.Put(Package{
			Name:                 name,
			Version:              pkg.Version,
			Source:               manifest.SourceRegistry,
			Resolved:             pkg.Resolved,
			Integrity:            pkg.Integrity,
			Dev:                  pkg.Dev,
			Optional:             pkg.Optional,
			Dependencies:         pkg.Dependencies,
			OptionalDependencies: pkg.OptionalDependencies,
			PeerDependencies:     pkg.PeerDependencies,
		})
	}
	return lf, nil
}

// npmPackageName extracts the package name from a node_modules path key
// such as "node_modules/left-pad" or "node_modules/foo/node_modules/@scope/bar".
func npmPackageName(path string) string {
	idx := strings.LastIndex(path, "node_modules/")
	if idx == -1 {
		return ""
	}
	return path[idx+len("node_modules/"):]
}
