package artifactcache

import "sort"

// Policy selects which entries are removed first when the cache is over
// its size budget (§4.E).
type Policy string

const (
	// PolicyLRU evicts the least-recently-accessed entry first. Default.
	PolicyLRU Policy = "lru"
	// PolicyLFU evicts the least-frequently-accessed entry first, falling
	// back to LRU ordering among entries with equal (or absent) hit counts.
	PolicyLFU Policy = "lfu"
	// PolicyFIFO evicts the oldest downloaded-at entry first.
	PolicyFIFO Policy = "fifo"
	// PolicyTTL evicts the oldest downloaded-at entry first under size
	// pressure; Store.Prune removes entries older than Options.MaxAge.
	PolicyTTL Policy = "ttl"
)

// evictionOrder returns entries sorted so that the first element should be
// evicted first under policy.
func evictionOrder(entries []*Entry, policy Policy) []*Entry {
	ordered := make([]*Entry, len(entries))
	copy(ordered, entries)

	switch policy {
	case PolicyLFU:
		sort.SliceStable(ordered, func(i, j int) bool {
			if ordered[i].Hits != ordered[j].Hits {
				return ordered[i].Hits < ordered[j].Hits
			}
			return ordered[i].LastAccessed.Before(ordered[j].LastAccessed)
		})
	case PolicyFIFO:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].DownloadedAt.Before(ordered[j].DownloadedAt)
		})
	case PolicyTTL:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].DownloadedAt.Before(ordered[j].DownloadedAt)
		})
	case PolicyLRU:
		fallthrough
	default:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].LastAccessed.Before(ordered[j].LastAccessed)
		})
	}
	return ordered
}
