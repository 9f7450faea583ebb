package lockfile

import (
	"strings"

	"github.com/iseki0/go-yarnlock"
	"github.com/pkg/errors"

	"github.com/pantryhq/pantry/internal/manifest"
)

// ImportYarn converts the contents of a yarn.lock into a Lockfile (§4.D
// supplement), parsing with the same yarn-lockfile-format library the
// teacher uses for its own yarn import.
func ImportYarn(contents []byte) (*Lockfile, error) {
	parsed, err := yarnlock.ParseLockFileData(contents)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode yarn.lock")
	}

	lf := New("", 0)
	for key, entry := range parsed {
		name := yarnPackageName(key)
		if name == "" {
			continue
		}
		lf.Put(Package{
			Name:                 name,
			Version:              entry.Version,
			Source:               manifest.SourceRegistry,
			Dependencies:         entry.Dependencies,
			OptionalDependencies: entry.OptionalDependencies,
		})
	}
	return lf, nil
}

// yarnPackageName strips the version/range suffix from a yarn.lock entry
// key such as "left-pad@^1.0.0" or "@scope/name@^1.0.0", whose own name may
// itself contain an '@' for scoped packages.
func yarnPackageName(key string) string {
	if strings.HasPrefix(key, "@") {
		idx := strings.Index(key[1:], "@")
		if idx == -1 {
			return ""
		}
		return key[:idx+1]
	}
	idx := strings.Index(key, "@")
	if idx == -1 {
		return key
	}
	return key[:idx]
}
