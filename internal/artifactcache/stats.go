package artifactcache

import "time"

// Stats summarizes a Store's activity for reporting (§4.E).
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// Snapshot computes the full stats report, walking the current index for
// package/byte counts and the oldest/newest entries.
func (s *Store) Snapshot() SnapshotResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := SnapshotResult{Stats: s.stats}
	var oldest, newest *Entry
	var compressedBytes, uncompressedBytes int64

	for _, e := range s.entries {
		result.Packages++
		result.Bytes += e.Size
		if e.Compressed {
			compressedBytes += e.Size
			uncompressedBytes += e.UncompressedSize
		}
		if oldest == nil || e.DownloadedAt.Before(oldest.DownloadedAt) {
			oldest = e
		}
		if newest == nil || e.DownloadedAt.After(newest.DownloadedAt) {
			newest = e
		}
	}
	if oldest != nil {
		t := oldest.DownloadedAt
		result.Oldest = &t
	}
	if newest != nil {
		t := newest.DownloadedAt
		result.Newest = &t
	}
	if result.Hits+result.Misses > 0 {
		result.HitRate = float64(result.Hits) / float64(result.Hits+result.Misses)
	}
	if uncompressedBytes > 0 {
		result.CompressionRatio = float64(compressedBytes) / float64(uncompressedBytes)
	}
	return result
}

// SnapshotResult is the `stats` operation's output (§4.E).
type SnapshotResult struct {
	Stats
	Packages         int
	Bytes            int64
	HitRate          float64
	Oldest           *time.Time
	Newest           *time.Time
	CompressionRatio float64
}
