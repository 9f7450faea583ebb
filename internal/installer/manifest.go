package installer

import (
	"encoding/json"
	"time"

	"github.com/pantryhq/pantry/internal/fspath"
)

// InstalledPackage is one entry in an environment's manifest.json (§3:
// "Environment directory ... a small manifest.json recording installed
// (name,version) tuples and their install sizes and timestamps").
type InstalledPackage struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	SizeBytes int64     `json:"sizeBytes"`
	InstalledAt time.Time `json:"installedAt"`
}

// EnvironmentManifest is the environment's own record of what's installed,
// distinct from the project manifest and the lockfile.
type EnvironmentManifest struct {
	Packages []InstalledPackage `json:"packages"`
	Linker   string             `json:"linker"`
}

func loadEnvironmentManifest(path fspath.AbsolutePath) (*EnvironmentManifest, error) {
	if !path.FileExists() {
		return &EnvironmentManifest{}, nil
	}
	raw, err := path.ReadFile()
	if err != nil {
		return nil, err
	}
	var m EnvironmentManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *EnvironmentManifest) save(path fspath.AbsolutePath) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return path.WriteFile(append(raw, '\n'), 0o644)
}
