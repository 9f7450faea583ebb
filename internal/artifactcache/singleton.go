package artifactcache

import "sync"

var (
	sharedMu    sync.Mutex
	sharedStore *Store
)

// Shared returns the process-wide Store for the system/user-wide artifact
// cache, initializing it on first call with opts. Subsequent calls ignore
// opts and return the already-initialized instance, mirroring the
// lazy-init singleton pattern Pantry uses for the one store every
// resolver/installer invocation in this process shares.
func Shared(opts Options) (*Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedStore != nil {
		return sharedStore, nil
	}
	s, err := Open(opts)
	if err != nil {
		return nil, err
	}
	sharedStore = s
	return s, nil
}

// resetSharedForTest clears the singleton; test-only.
func resetSharedForTest() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	sharedStore = nil
}
