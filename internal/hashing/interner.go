package hashing

import "sync"

// id is an interned string's index into an Interner's table.
type id int32

// Interner maps strings to small integer ids and back, with pointer/value
// equality on the id standing in for string equality. The resolver holds
// thousands of (name, version) comparisons per run; comparing a handful of
// bytes beats comparing small strings in the common case where the same
// package name recurs across dozens of dependency edges.
type Interner struct {
	mu     sync.RWMutex
	lookup map[string]id
	values []string
}

// NewInterner returns an empty Interner.
func NewInterner() *Interner {
	return &Interner{lookup: make(map[string]id)}
}

// Intern returns the id for s, assigning a new one if s hasn't been seen.
func (in *Interner) Intern(s string) id {
	in.mu.RLock()
	if existing, ok := in.lookup[s]; ok {
		in.mu.RUnlock()
		return existing
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if existing, ok := in.lookup[s]; ok {
		return existing
	}
	next := id(len(in.values))
	in.values = append(in.values, s)
	in.lookup[s] = next
	return next
}

// Lookup returns the string an id was interned from.
func (in *Interner) Lookup(i id) (string, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(i) < 0 || int(i) >= len(in.values) {
		return "", false
	}
	return in.values[i], true
}

// Len reports how many distinct strings have been interned.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.values)
}
