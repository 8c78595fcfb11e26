// Package keycache maps a cache key (circuit tag, parameter source tag,
// circuit config representation) to a generated proving key, generating at
// most once concurrently per key and bounding generation by a wall-clock
// timeout. Grounded on cache/cache.go's GetOrCompute idiom, generalized from
// a single map+RWMutex to a singleflight-collapsed generator so concurrent
// callers for the same key share one in-flight generation instead of
// racing duplicate work.
package keycache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/taikochain/proverd/internal/blockingpool"
)

// DefaultTimeout is the default wall-clock bound on a single key
// generation, per spec §4.3.
const DefaultTimeout = 15 * time.Minute

// Entry is a cached proving key handle plus the instrumentation timings
// recorded while it was generated.
type Entry struct {
	Key    any
	VKMs   uint32
	PKMs   uint32
	cached bool
}

// GenerateFunc produces a proving key for a cache key. It must be safe to
// call from a goroutine outside any caller-held lock; it returns the key
// handle plus vk/pk millisecond timings.
type GenerateFunc func(ctx context.Context) (key any, vkMs, pkMs uint32, err error)

// Cache is a cache-key -> proving-key map with at-most-one concurrent
// generation per key.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	group   singleflight.Group
	timeout time.Duration
	pool    *blockingpool.Pool

	hits, misses int64
}

// New creates an empty key cache with the default 15-minute generation
// timeout. Generation runs on pool, the same dedicated blocking-worker
// pool proof generation uses (per §5, "proof and key generation
// themselves run on the blocking pool"); pass nil to fall back to a bare
// goroutine per generation (used by tests that don't care about pool
// sizing).
func New(pool *blockingpool.Pool) *Cache {
	return &Cache{
		entries: make(map[string]Entry),
		timeout: DefaultTimeout,
		pool:    pool,
	}
}

// WithTimeout overrides the generation timeout (used by tests).
func (c *Cache) WithTimeout(d time.Duration) *Cache {
	c.timeout = d
	return c
}

// GetOrGenerate returns the cached key for cacheKey, generating it via fn
// if absent. Concurrent callers racing the same cacheKey share a single
// generation: whichever completes first publishes the entry, and every
// caller (including the ones that lost the race) receives that same
// logical key, per §4.3's "prefer the cached value but do not discard work
// silently."
func (c *Cache) GetOrGenerate(ctx context.Context, cacheKey string, fn GenerateFunc) (any, error) {
	c.mu.RLock()
	if e, ok := c.entries[cacheKey]; ok {
		c.mu.RUnlock()
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return e.Key, nil
	}
	c.mu.RUnlock()

	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v, err, _ := c.group.Do(cacheKey, func() (any, error) {
		// Re-check: another goroutine may have populated the entry between
		// our RLock miss above and acquiring the singleflight slot.
		c.mu.RLock()
		if e, ok := c.entries[cacheKey]; ok {
			c.mu.RUnlock()
			return e, nil
		}
		c.mu.RUnlock()

		type result struct {
			key        any
			vkMs, pkMs uint32
			err        error
		}
		done := make(chan result, 1)
		runGen := func() {
			key, vkMs, pkMs, err := fn(genCtx)
			done <- result{key, vkMs, pkMs, err}
		}
		if c.pool != nil {
			go func() {
				c.pool.Run(genCtx, func() (any, error) {
					runGen()
					return nil, nil
				})
			}()
		} else {
			go runGen()
		}

		select {
		case <-genCtx.Done():
			return nil, fmt.Errorf("timeout")
		case r := <-done:
			if r.err != nil {
				return nil, r.err
			}
			entry := Entry{Key: r.key, VKMs: r.vkMs, PKMs: r.pkMs, cached: true}
			c.mu.Lock()
			// Another generation may have raced us to publish first; keep
			// whichever landed first so every caller observes one logical
			// key for this cacheKey.
			if existing, ok := c.entries[cacheKey]; ok {
				c.mu.Unlock()
				return existing, nil
			}
			c.entries[cacheKey] = entry
			c.misses++
			c.mu.Unlock()
			return entry, nil
		}
	})
	if err != nil {
		return nil, err
	}

	entry, ok := v.(Entry)
	if !ok {
		return nil, fmt.Errorf("keycache: unexpected generation result type %T", v)
	}
	return entry.Key, nil
}

// Timings returns the vk/pk generation timings recorded when cacheKey was
// first generated. ok is false if cacheKey is not present.
func (c *Cache) Timings(cacheKey string) (vkMs, pkMs uint32, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey]
	return e.VKMs, e.PKMs, ok
}

// Len reports the number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cache hit/miss counters, matching the teacher's cache.Stats
// idiom.
type Stats struct {
	Size   int
	Hits   int64
	Misses int64
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Size: len(c.entries), Hits: c.hits, Misses: c.misses}
}
