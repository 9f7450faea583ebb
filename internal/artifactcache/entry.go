// Package artifactcache implements the content-addressed package artifact
// store (§4.E): one file per "name@version" under store_root/packages,
// verified by SHA-256, evicted under a configurable policy and size
// budget, shared across processes via an advisory lock.
package artifactcache

import "time"

// Entry is the in-memory metadata record for one cached artifact. The
// backing file lives at <root>/packages/<hex(fingerprint(name@version))>.pkg
// (optionally zstd-compressed); Entry mirrors a sidecar .json written next
// to it, keyed the same way, so metadata survives a process restart.
type Entry struct {
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	// UncompressedSize is only meaningful when Compressed is true.
	UncompressedSize int64     `json:"uncompressedSize,omitempty"`
	DownloadedAt     time.Time `json:"downloadedAt"`
	LastAccessed     time.Time `json:"lastAccessed"`
	Hits             int64     `json:"hits"`
}

func (e *Entry) key() string { return e.Name + "@" + e.Version }
