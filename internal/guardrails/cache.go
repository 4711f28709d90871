package guardrails

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
)

// ClassificationCache stores classifier verdicts keyed by normalized text.
// When full, inserting a new entry evicts the oldest one (FIFO); lookups do
// not change eviction order.
//
// Safe for concurrent use.
type ClassificationCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front is the oldest entry
	capacity int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	key     string
	verdict Verdict
}

type CacheStats struct {
	Size      int   `json:"size"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// NewClassificationCache creates a cache holding at most capacity entries.
// A capacity of zero disables caching.
func NewClassificationCache(capacity int) *ClassificationCache {
	return &ClassificationCache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: max(capacity, 0),
	}
}

// CacheKey hashes the lower-cased, trimmed text.
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}

// Get counts hits only. Misses are recorded with RecordMiss by whoever goes
// on to fetch the verdict, so waiters on a shared fetch are not counted.
func (c *ClassificationCache) Get(text string) (Verdict, bool) {
	key := CacheKey(text)

	c.mu.Lock()
	elem, ok := c.entries[key]
	var verdict Verdict
	if ok {
		verdict = elem.Value.(*cacheEntry).verdict
	}
	c.mu.Unlock()

	if !ok {
		return Verdict{}, false
	}

	c.hits.Add(1)
	return verdict, true
}

func (c *ClassificationCache) RecordMiss() {
	c.misses.Add(1)
}

func (c *ClassificationCache) Set(text string, verdict Verdict) {
	if c.capacity == 0 {
		return
	}

	key := CacheKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).verdict = verdict
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.evictions.Add(1)
	}

	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, verdict: verdict})
}

func (c *ClassificationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *ClassificationCache) Stats() CacheStats {
	return CacheStats{
		Size:      c.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
