package service

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/routeguard/routeguard/internal/domain/access"
)

// lruEntry is a doubly-linked list node for the LRU cache.
type lruEntry struct {
	key  uint64
	auth access.Authorization
	prev *lruEntry
	next *lruEntry
}

// decisionCache provides bounded LRU caching for authorization verdicts.
// Thread-safe with Mutex (both Get and Put mutate LRU order). Clear bumps a
// generation counter so verdicts computed before an invalidation are never
// stored after it.
type decisionCache struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry
	head    *lruEntry // most recently used
	tail    *lruEntry // least recently used
	maxSize int
	gen     uint64
}

// newDecisionCache creates an LRU cache with the given max size.
func newDecisionCache(maxSize int) *decisionCache {
	return &decisionCache{
		entries: make(map[uint64]*lruEntry, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a cached verdict. On hit, the entry is promoted to the
// head (most recently used).
func (c *decisionCache) Get(key uint64) (access.Authorization, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.auth, true
	}
	return access.Authorization{}, false
}

// Generation returns the current cache generation. Capture it before
// computing a verdict and hand it back to Put.
func (c *decisionCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Put stores a verdict computed at generation gen. A verdict from an older
// generation is discarded: the rules changed while it was being computed,
// so caching it would serve pre-invalidation state. If at capacity, the
// least recently used entry is evicted.
func (c *decisionCache) Put(key uint64, auth access.Authorization, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}

	if e, ok := c.entries[key]; ok {
		e.auth = auth
		c.moveToHeadLocked(e)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}

	e := &lruEntry{key: key, auth: auth}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

// Clear empties the cache and advances the generation. Called on rule
// invalidation so post-invalidation resolutions observe the mutated rules,
// including resolutions that were already in flight when Clear ran.
func (c *decisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*lruEntry, c.maxSize)
	c.head = nil
	c.tail = nil
	c.gen++
}

// Size returns current cache size.
func (c *decisionCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// moveToHeadLocked moves an existing entry to the head. Must be called with lock held.
func (c *decisionCache) moveToHeadLocked(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

// pushHeadLocked inserts an entry at the head. Must be called with lock held.
func (c *decisionCache) pushHeadLocked(e *lruEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

// unlinkLocked removes an entry from the linked list. Must be called with lock held.
func (c *decisionCache) unlinkLocked(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

// evictTailLocked removes the least recently used entry. Must be called with lock held.
func (c *decisionCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// computeDecisionKey generates a unique hash for one authorization request.
// Includes method, path, sorted authorities, and the authentication flags.
func computeDecisionKey(method, path string, sub access.Subject) uint64 {
	h := xxhash.New()

	_, _ = h.WriteString(method)
	_, _ = h.Write([]byte{0}) // separator
	_, _ = h.WriteString(path)
	_, _ = h.Write([]byte{0})

	for _, a := range sub.SortedAuthorities() {
		_, _ = h.WriteString(a)
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write([]byte{flagByte(sub.Authenticated), flagByte(sub.RememberMe), flagByte(sub.FullyAuthenticated)})

	return h.Sum64()
}

func flagByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
