package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryCache is the first lookup tier: a size-bounded in-memory LRU over
// resolved audio payloads. Entries also age out after a TTL so a long-lived
// process does not pin superseded audio forever.
type MemoryCache struct {
	mu        sync.Mutex
	items     map[string]*list.Element
	lru       *list.List
	size      int64
	sizeLimit int64
	ttl       time.Duration
}

type memoryEntry struct {
	key       string
	payload   []byte
	createdAt time.Time
	size      int64
}

// NewMemoryCache creates a memory cache bounded by sizeLimit bytes; entries
// older than ttl are treated as absent.
func NewMemoryCache(sizeLimit int64, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		items:     make(map[string]*list.Element),
		lru:       list.New(),
		sizeLimit: sizeLimit,
		ttl:       ttl,
	}
}

// Get returns the cached payload for key, or nil if absent or expired.
func (mc *MemoryCache) Get(key string) []byte {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	elem, ok := mc.items[key]
	if !ok {
		return nil
	}
	entry := elem.Value.(*memoryEntry)
	if time.Since(entry.createdAt) > mc.ttl {
		mc.removeElement(elem)
		return nil
	}
	mc.lru.MoveToFront(elem)

	// Copy out so callers cannot mutate the cached bytes.
	out := make([]byte, len(entry.payload))
	copy(out, entry.payload)
	return out
}

// Put stores payload under key, evicting least-recently-used entries as
// needed to stay within the size limit. Empty payloads are ignored.
func (mc *MemoryCache) Put(key string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()

	size := int64(len(payload)) + int64(len(key)) + 64 // entry overhead

	if elem, ok := mc.items[key]; ok {
		entry := elem.Value.(*memoryEntry)
		mc.size -= entry.size
		entry.payload = payload
		entry.createdAt = time.Now()
		entry.size = size
		mc.size += size
		mc.lru.MoveToFront(elem)
		return
	}

	for mc.size+size > mc.sizeLimit && mc.lru.Len() > 0 {
		mc.removeElement(mc.lru.Back())
	}

	elem := mc.lru.PushFront(&memoryEntry{
		key:       key,
		payload:   payload,
		createdAt: time.Now(),
		size:      size,
	})
	mc.items[key] = elem
	mc.size += size
}

// Delete removes the entry for key, if present.
func (mc *MemoryCache) Delete(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if elem, ok := mc.items[key]; ok {
		mc.removeElement(elem)
	}
}

// Size returns the current byte size of the cache.
func (mc *MemoryCache) Size() int64 {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.size
}

// Len returns the number of live entries.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.lru.Len()
}

// Clear removes every entry.
func (mc *MemoryCache) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.items = make(map[string]*list.Element)
	mc.lru.Init()
	mc.size = 0
}

// cleanup removes expired entries. Called from the resolver's cleanup loop.
func (mc *MemoryCache) cleanup() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := time.Now()
	for elem := mc.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if now.Sub(elem.Value.(*memoryEntry).createdAt) > mc.ttl {
			mc.removeElement(elem)
		}
		elem = prev
	}
}

// removeElement must be called with the lock held.
func (mc *MemoryCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(mc.items, entry.key)
	mc.lru.Remove(elem)
	mc.size -= entry.size
}
