package artifactcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/DataDog/zstd"
	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"

	"github.com/pantryhq/pantry/internal/fs"
	"github.com/pantryhq/pantry/internal/fspath"
	"github.com/pantryhq/pantry/internal/hashing"
)

// IntegrityMismatchError is returned by Put when the bytes written don't
// hash to the expected checksum.
type IntegrityMismatchError struct {
	Name, Version, Expected, Got string
}

func (e *IntegrityMismatchError) Error() string {
	return "integrity mismatch for " + e.Name + "@" + e.Version + ": expected " + e.Expected + ", got " + e.Got
}

// Options configures a Store.
type Options struct {
	Root           fspath.AbsolutePath
	Policy         Policy
	MaxSizeBytes   int64         // 0 = unbounded
	MaxAge         time.Duration // used by PolicyTTL
	Compress       bool
	LockTimeout    time.Duration // default 5s, per §4.E
}

// Store is the artifact cache described in §4.E: a content-addressed
// directory of package archives plus an in-memory metadata index,
// optionally shared across processes through an advisory lock file.
type Store struct {
	opts Options

	mu      sync.RWMutex
	entries map[string]*Entry

	stats Stats

	lockPath string
}

// Open creates (or reopens) a Store rooted at opts.Root, loading any
// sidecar metadata already on disk. The directory is created if absent.
func Open(opts Options) (*Store, error) {
	if opts.LockTimeout == 0 {
		opts.LockTimeout = 5 * time.Second
	}
	if err := opts.Root.MkdirAll(); err != nil {
		return nil, err
	}
	s := &Store{
		opts:     opts,
		entries:  map[string]*Entry{},
		lockPath: opts.Root.Join(".lock").String(),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// fingerprintKey renders the store's content-addressed key for name@version
// (§3: "path-in-store = store_root/packages/<hex(fingerprint(name@version))>"),
// so two different packages never collide on disk regardless of characters
// in name that wouldn't be safe as a path component.
func fingerprintKey(name, version string) string {
	return hashing.FingerprintHex([]byte(name + "@" + version))
}

func (s *Store) packagesDir() fspath.AbsolutePath {
	return s.opts.Root.Join("packages")
}

func (s *Store) artifactPath(name, version string) fspath.AbsolutePath {
	return s.packagesDir().Join(fingerprintKey(name, version) + ".pkg")
}

func (s *Store) metaPath(name, version string) fspath.AbsolutePath {
	return s.packagesDir().Join(fingerprintKey(name, version) + ".json")
}

// loadIndex walks store_root/packages for sidecar .json files and
// rebuilds the in-memory map, the way a restarted process rediscovers
// what a prior process already downloaded.
func (s *Store) loadIndex() error {
	root := s.packagesDir()
	if !root.DirExists() {
		return nil
	}
	return fs.Walk(root.String(), func(name string, isDir bool) error {
		if isDir {
			return nil
		}
		if len(name) < 5 || name[len(name)-5:] != ".json" {
			return nil
		}
		raw, err := fspath.UnsafeFrom(name).ReadFile()
		if err != nil {
			return nil // tolerate a partially written sidecar
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil
		}
		s.entries[e.key()] = &e
		return nil
	})
}

// acquireLock takes the store's cross-process advisory lock. Put holds it
// for the whole write, including the eviction it runs; Remove, Clean and
// Prune do not take it. nightlyone/lockfile only models a single exclusive
// holder (no reader/writer distinction), so readers that only need Has/Get
// skip locking and tolerate a file that disappears mid-read by treating
// that as a cache miss.
func (s *Store) acquireLock() (lockfile.Lockfile, error) {
	lf, err := lockfile.New(s.lockPath)
	if err != nil {
		return "", err
	}
	deadline := time.Now().Add(s.opts.LockTimeout)
	for {
		err := lf.TryLock()
		if err == nil {
			return lf, nil
		}
		if time.Now().After(deadline) {
			return "", errors.Wrap(err, "timed out acquiring artifact cache lock")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// Has reports whether name@version is present both in the index and on
// disk; a missing file evicts the stale index entry (§4.E).
func (s *Store) Has(name, version string) bool {
	s.mu.RLock()
	e, ok := s.entries[name+"@"+version]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if s.artifactPath(name, version).FileExists() {
		return true
	}
	s.mu.Lock()
	delete(s.entries, name+"@"+version)
	s.mu.Unlock()
	return false
}

// Get returns the entry for name@version, if present, bumping its
// last-accessed time and hit count under a write lock.
func (s *Store) Get(name, version string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name+"@"+version]
	if !ok {
		s.stats.Misses++
		return Entry{}, false
	}
	if !s.artifactPath(name, version).FileExists() {
		delete(s.entries, name+"@"+version)
		s.stats.Misses++
		return Entry{}, false
	}
	e.LastAccessed = time.Now()
	e.Hits++
	s.stats.Hits++
	return *e, true
}

// Put writes bytes for name@version, verifying the written content hashes
// to checksum before returning success, optionally compressing with zstd,
// replacing any prior entry, and running eviction afterward.
func (s *Store) Put(name, version, checksum string, content io.Reader) error {
	lf, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer lf.Unlock()

	dir := s.packagesDir()
	if err := dir.MkdirAll(); err != nil {
		return err
	}

	hasher := sha256.New()
	tee := io.TeeReader(content, hasher)

	path := s.artifactPath(name, version)
	f, err := path.Create()
	if err != nil {
		return err
	}

	var written int64
	var uncompressedSize int64
	if s.opts.Compress {
		zw := zstd.NewWriter(f)
		n, err := io.Copy(zw, tee)
		uncompressedSize = n
		if err == nil {
			err = zw.Close()
		}
		if err != nil {
			f.Close()
			path.Remove()
			return err
		}
		info, statErr := path.Lstat()
		if statErr == nil {
			written = info.Size()
		}
	} else {
		n, err := io.Copy(f, tee)
		written = n
		if err != nil {
			f.Close()
			path.Remove()
			return err
		}
	}
	if err := f.Close(); err != nil {
		path.Remove()
		return err
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if checksum == "" {
		// A static source (github/http/git, §3) carries no registry-issued
		// integrity hash to check against; trust the bytes as fetched and
		// record their hash for future revalidation instead.
		checksum = got
	} else if got != checksum {
		path.Remove()
		return &IntegrityMismatchError{Name: name, Version: version, Expected: checksum, Got: got}
	}

	now := time.Now()
	e := &Entry{
		Name:             name,
		Version:          version,
		Checksum:         checksum,
		Size:             written,
		Compressed:       s.opts.Compress,
		UncompressedSize: uncompressedSize,
		DownloadedAt:     now,
		LastAccessed:     now,
	}

	metaBytes, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.metaPath(name, version).WriteFile(metaBytes, 0o644); err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[e.key()] = e
	s.mu.Unlock()

	return s.evict()
}

// Read returns the decompressed bytes for name@version.
func (s *Store) Read(name, version string) ([]byte, error) {
	e, ok := s.Get(name, version)
	if !ok {
		return nil, nil
	}
	f, err := s.artifactPath(name, version).Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !e.Compressed {
		return io.ReadAll(f)
	}
	zr := zstd.NewReader(f)
	defer zr.Close()
	return io.ReadAll(zr)
}

// Remove deletes the cached artifact and its metadata for name@version.
func (s *Store) Remove(name, version string) error {
	s.mu.Lock()
	delete(s.entries, name+"@"+version)
	s.mu.Unlock()

	if err := s.artifactPath(name, version).Remove(); err != nil && !isNotExist(err) {
		return err
	}
	if err := s.metaPath(name, version).Remove(); err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

// Clear removes every cached artifact (an alias for Clean kept for
// symmetry with Prune; both wipe the whole store).
func (s *Store) Clear() error { return s.Clean() }

// Clean removes every entry in the store.
func (s *Store) Clean() error {
	s.mu.Lock()
	all := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	s.entries = map[string]*Entry{}
	s.mu.Unlock()

	for _, e := range all {
		if err := s.Remove(e.Name, e.Version); err != nil {
			return err
		}
	}
	return nil
}

// Prune removes entries that have expired under PolicyTTL's MaxAge; a
// no-op for other policies, which only evict on size pressure.
func (s *Store) Prune() error {
	if s.opts.Policy != PolicyTTL || s.opts.MaxAge <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-s.opts.MaxAge)

	s.mu.RLock()
	var expired []*Entry
	for _, e := range s.entries {
		if e.DownloadedAt.Before(cutoff) {
			expired = append(expired, e)
		}
	}
	s.mu.RUnlock()

	for _, e := range expired {
		if err := s.Remove(e.Name, e.Version); err != nil {
			return err
		}
		s.mu.Lock()
		s.stats.Evictions++
		s.mu.Unlock()
	}
	return nil
}

// evict runs after every Put, removing entries under opts.Policy until the
// store is within its size budget (0 = unbounded, never evicts).
func (s *Store) evict() error {
	if s.opts.MaxSizeBytes <= 0 {
		return nil
	}

	s.mu.RLock()
	var total int64
	all := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		total += e.Size
		all = append(all, e)
	}
	s.mu.RUnlock()

	if total <= s.opts.MaxSizeBytes {
		return nil
	}

	ordered := evictionOrder(all, s.opts.Policy)
	for _, e := range ordered {
		if total <= s.opts.MaxSizeBytes {
			break
		}
		if err := s.Remove(e.Name, e.Version); err != nil {
			return err
		}
		total -= e.Size
		s.mu.Lock()
		s.stats.Evictions++
		s.mu.Unlock()
	}
	return nil
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}
