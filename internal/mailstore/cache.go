package mailstore

import (
	"sync"

	"github.com/waweber/imapfs/internal/cache/lru"
)

// uidEntry adapts a uint32 UID to lru.ValueType; every entry counts as
// weight 1 so CacheSize is simply "how many subjects to remember".
type uidEntry uint32

func (uidEntry) Size() uint64 { return 1 }

// subjectCache is a concurrency-safe, best-effort subject->UID cache.
// Misses are always resolved by re-searching, so eviction or a concurrent
// race merely costs an extra round-trip, never correctness.
type subjectCache struct {
	mu    sync.Mutex
	cache lru.Cache
}

func newSubjectCache(size int) subjectCache {
	return subjectCache{cache: lru.New(uint64(size))}
}

func (c *subjectCache) get(subject string) (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.cache.LookUp(subject)
	if v == nil {
		return 0, false
	}
	return uint32(v.(uidEntry)), true
}

func (c *subjectCache) put(subject string, uid uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = c.cache.Insert(subject, uidEntry(uid))
}

func (c *subjectCache) invalidate(subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Erase(subject)
}
