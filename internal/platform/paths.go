// Package platform resolves the cache/data/config/home directories Pantry
// uses, following each OS's own convention (spec §4.B), and publishes the
// name of the dynamic-loader environment variable the installer and
// activation hook need to prepend to.
package platform

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/yookoala/realpath"

	"github.com/pantryhq/pantry/internal/fspath"
)

// Dirs holds the four directories Pantry persists into, resolved once at
// startup. Callers receive plain strings/AbsolutePaths; nothing here is
// re-resolved per call.
type Dirs struct {
	Home   fspath.AbsolutePath
	Cache  fspath.AbsolutePath
	Data   fspath.AbsolutePath
	Config fspath.AbsolutePath
}

// appName namespaces Pantry's directories under each OS's convention.
const appName = "pantry"

// Resolve computes Dirs for the current OS, starting from go-homedir's
// home directory (symlinks resolved where possible). It returns an error
// when the home directory cannot be determined or a derived directory is
// not an absolute path.
func Resolve() (Dirs, error) {
	home, err := homedir.Dir()
	if err != nil {
		return Dirs{}, err
	}
	if resolved, rerr := realpath.Realpath(home); rerr == nil {
		home = resolved
	}

	var cache, data, config string
	switch runtime.GOOS {
	case "darwin":
		cache = joinPath(home, "Library", "Caches", appName)
		data = joinPath(home, "Library", "Application Support", appName)
		config = joinPath(home, "Library", "Application Support", appName)
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		if local == "" {
			local = joinPath(home, "AppData", "Local")
		}
		cache = joinPath(local, appName, "Cache")
		data = joinPath(local, appName, "Data")
		config = joinPath(local, appName, "Config")
	default: // linux, bsd, and anything else: XDG
		cache = joinPath(xdgOrDefault(xdg.CacheHome, home, ".cache"), appName)
		data = joinPath(xdgOrDefault(xdg.DataHome, home, ".local", "share"), appName)
		config = joinPath(xdgOrDefault(xdg.ConfigHome, home, ".config"), appName)
	}

	homeAbs, err := fspath.New(home)
	if err != nil {
		return Dirs{}, err
	}
	cacheAbs, err := fspath.New(cache)
	if err != nil {
		return Dirs{}, err
	}
	dataAbs, err := fspath.New(data)
	if err != nil {
		return Dirs{}, err
	}
	configAbs, err := fspath.New(config)
	if err != nil {
		return Dirs{}, err
	}
	return Dirs{Home: homeAbs, Cache: cacheAbs, Data: dataAbs, Config: configAbs}, nil
}

func xdgOrDefault(xdgValue, home string, fallbackSegments ...string) string {
	if xdgValue != "" {
		return xdgValue
	}
	return joinPath(append([]string{home}, fallbackSegments...)...)
}

func joinPath(segments ...string) string {
	return filepath.Join(segments...)
}

// DynamicLoaderVar returns the name of the environment variable the
// platform's dynamic loader consults to find shared libraries, so the
// installer and activation hook can prepend an environment's lib/ to it.
func DynamicLoaderVar() string {
	switch runtime.GOOS {
	case "darwin":
		return "DYLD_LIBRARY_PATH"
	case "windows":
		return "PATH"
	default:
		return "LD_LIBRARY_PATH"
	}
}

// StoreRoot is <cache>/packages, the content-addressed artifact store.
func (d Dirs) StoreRoot() fspath.AbsolutePath {
	return d.Cache.Join("packages")
}

// LockPath is the shared artifact cache's cross-process advisory lock file.
func (d Dirs) LockPath() fspath.AbsolutePath {
	return d.StoreRoot().Join(".lock")
}

// EnvironmentsRoot is <data>/environments, the root of all materialized
// per-project environments.
func (d Dirs) EnvironmentsRoot() fspath.AbsolutePath {
	return d.Data.Join("environments")
}
