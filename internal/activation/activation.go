// Package activation implements §4.J: given a directory, locate its
// project manifest, consult the environment cache, and return the PATH/env
// payload a shell hook should apply, installing first if the environment is
// stale or has never been materialized.
package activation

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pantryhq/pantry/internal/envcache"
	"github.com/pantryhq/pantry/internal/fspath"
	"github.com/pantryhq/pantry/internal/hashing"
	"github.com/pantryhq/pantry/internal/platform"
)

// Payload is what the shell hook receives: the new PATH value and any
// additional environment variables to export (§4.J step 4).
type Payload struct {
	PathValue string            `json:"path"`
	EnvVars   map[string]string `json:"env"`
}

// Installer is the thin collaborator interface activation needs to trigger
// a (re)install; the resolve/download/install pipeline lives in its own
// packages and is wired in by the caller (the CLI, the daemon).
type Installer interface {
	// Install resolves and materializes root's environment, returning its
	// bin/ and lib/ directories.
	Install(ctx context.Context, root fspath.AbsolutePath) (binDir, libDir fspath.AbsolutePath, err error)
}

// Options configures a Hook.
type Options struct {
	Cache     *envcache.Cache
	Dirs      platform.Dirs
	Installer Installer
	TTL       time.Duration // cache entry lifetime; default 30 minutes
	Now       func() time.Time
}

// Hook is the activation entry point bound to one cache/installer pair
// (normally one per process).
type Hook struct {
	opts Options
}

// New builds a Hook.
func New(opts Options) *Hook {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Hook{opts: opts}
}

// Activate runs the full §4.J algorithm for the given directory. ok is
// false when no manifest was found upward from dir (a no-op per step 1).
func (h *Hook) Activate(ctx context.Context, dir string) (payload *Payload, ok bool, err error) {
	root, manifestPath, found, err := findProjectRoot(dir)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	rawManifest, err := manifestPath.ReadFile()
	if err != nil {
		return nil, false, err
	}
	key := envHashKey(manifestPath.String(), rawManifest)

	if entry, hit := h.opts.Cache.Lookup(key); hit {
		var p Payload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return nil, false, err
		}
		return &p, true, nil
	}

	info, err := manifestPath.Lstat()
	if err != nil {
		return nil, false, err
	}

	envRoot := h.opts.Dirs.EnvironmentsRoot().Join(hashing.FingerprintHex(rawManifest))
	needsInstall := !environmentUpToDate(envRoot, info.ModTime())

	var binDir, libDir fspath.AbsolutePath
	if needsInstall {
		binDir, libDir, err = h.opts.Installer.Install(ctx, root)
		if err != nil {
			return nil, false, err
		}
	} else {
		binDir = envRoot.Join("bin")
		libDir = envRoot.Join("lib")
	}

	p := buildPayload(binDir, libDir)
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, false, err
	}

	h.opts.Cache.Put(&envcache.Entry{
		Key:           key,
		Payload:       raw,
		ExpiresAt:     h.opts.Now().Add(h.opts.TTL),
		SourcePath:    manifestPath.String(),
		SourceModTime: info.ModTime(),
	})

	return &p, true, nil
}

// buildPayload computes the PATH/env the environment publishes (§4.J step
// 4, §3 "Environment variables published"): PATH prepended with bin/, and
// the platform's dynamic-loader variable prepended with lib/.
func buildPayload(binDir, libDir fspath.AbsolutePath) Payload {
	loaderVar := platform.DynamicLoaderVar()
	existingLoader := os.Getenv(loaderVar)

	env := map[string]string{}
	if existingLoader != "" {
		env[loaderVar] = libDir.String() + string(os.PathListSeparator) + existingLoader
	} else {
		env[loaderVar] = libDir.String()
	}

	pathValue := binDir.String() + string(os.PathListSeparator) + os.Getenv("PATH")
	return Payload{PathValue: pathValue, EnvVars: env}
}

// environmentUpToDate reports whether envRoot's manifest.json was written
// at or after manifestModTime, the "compare manifest mtime to
// last-installed mtime" check from §4.J step 4.
func environmentUpToDate(envRoot fspath.AbsolutePath, manifestModTime time.Time) bool {
	info, err := envRoot.Join("manifest.json").Lstat()
	if err != nil {
		return false
	}
	return !info.ModTime().Before(manifestModTime)
}

// envHashKey fingerprints the manifest's absolute path concatenated with
// its normalized content (§4.J step 2).
func envHashKey(absPath string, content []byte) envcache.Key {
	buf := make([]byte, 0, len(absPath)+len(content))
	buf = append(buf, absPath...)
	buf = append(buf, content...)
	return envcache.Key(hashing.Fingerprint(buf))
}

// findProjectRoot walks upward from dir looking for a recognized manifest
// file (§4.J step 1), stopping at the filesystem root.
func findProjectRoot(dir string) (root fspath.AbsolutePath, manifestPath fspath.AbsolutePath, found bool, err error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", false, err
	}
	current := abs
	for {
		rootPath, rerr := fspath.New(current)
		if rerr != nil {
			return "", "", false, rerr
		}
		for _, name := range manifestFileNames {
			candidate := rootPath.Join(name)
			if candidate.FileExists() {
				return rootPath, candidate, true, nil
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", "", false, nil
		}
		current = parent
	}
}

// manifestFileNames mirrors manifest.Load's search order.
var manifestFileNames = []string{"pantry.json", "pantry.jsonc", "package.json"}
