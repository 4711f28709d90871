package guardrails

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassificationCache_FIFOEviction(t *testing.T) {
	cache := NewClassificationCache(2)

	cache.Set("first", Verdict{Decision: DecisionAllow})
	cache.Set("second", Verdict{Decision: DecisionBlock})

	// a lookup does not refresh the entry
	_, ok := cache.Get("first")
	require.True(t, ok)

	cache.Set("third", Verdict{Decision: DecisionAllow})

	_, ok = cache.Get("first")
	assert.False(t, ok, "oldest entry should be evicted")
	cache.RecordMiss()
	_, ok = cache.Get("second")
	assert.True(t, ok)
	_, ok = cache.Get("third")
	assert.True(t, ok)

	stats := cache.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, stats.Capacity)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestClassificationCache_NormalizesKey(t *testing.T) {
	cache := NewClassificationCache(10)
	cache.Set("  What Should I Take?  ", Verdict{Decision: DecisionBlock, Reason: "medical"})

	verdict, ok := cache.Get("what should i take?")
	require.True(t, ok)
	assert.Equal(t, DecisionBlock, verdict.Decision)
	assert.Equal(t, CacheKey("WHAT SHOULD I TAKE?"), CacheKey(" what should i take? "))
}

func TestClassificationCache_UpdateDoesNotGrow(t *testing.T) {
	cache := NewClassificationCache(2)
	cache.Set("a", Verdict{Decision: DecisionAllow})
	cache.Set("a", Verdict{Decision: DecisionBlock})

	assert.Equal(t, 1, cache.Len())
	verdict, _ := cache.Get("a")
	assert.Equal(t, DecisionBlock, verdict.Decision)
}

func TestClassificationCache_ZeroCapacity(t *testing.T) {
	cache := NewClassificationCache(0)
	cache.Set("a", Verdict{Decision: DecisionAllow})

	_, ok := cache.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestClassificationCache_NeverExceedsCapacity(t *testing.T) {
	const capacity = 16
	cache := NewClassificationCache(capacity)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				text := fmt.Sprintf("query-%d-%d", w, i)
				cache.Set(text, Verdict{Decision: DecisionAllow})
				cache.Get(text)
				assert.LessOrEqual(t, cache.Len(), capacity)
			}
		}(w)
	}
	wg.Wait()

	stats := cache.Stats()
	assert.Equal(t, capacity, stats.Size)
	assert.Equal(t, int64(8*200-capacity), stats.Evictions)
}
