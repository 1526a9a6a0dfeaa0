package cache

import (
	"container/list"
	"sync"
	"time"
)

type fastEntry struct {
	key       string
	value     []byte
	createdAt time.Time
	ttl       time.Duration
}

// expired reports whether the entry is logically absent at now.
func (e *fastEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// fastTier is the in-process tier. Entries are kept in insertion order so
// that the oldest write is evicted first once maxEntries is reached; reads
// never reorder and only take the read lock.
type fastTier struct {
	mu         sync.RWMutex
	items      map[string]*list.Element
	order      *list.List
	maxEntries int
}

func newFastTier(maxEntries int) *fastTier {
	return &fastTier{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

func (t *fastTier) get(key string, now time.Time) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	elem, ok := t.items[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*fastEntry)
	if entry.expired(now) {
		return nil, false
	}
	return entry.value, true
}

func (t *fastTier) set(key string, value []byte, ttl time.Duration, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.items[key]; ok {
		t.order.Remove(elem)
		delete(t.items, key)
	}

	for t.maxEntries > 0 && t.order.Len() >= t.maxEntries {
		t.removeElement(t.order.Front())
	}

	t.items[key] = t.order.PushBack(&fastEntry{
		key:       key,
		value:     value,
		createdAt: now,
		ttl:       ttl,
	})
}

func (t *fastTier) delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.items[key]; ok {
		t.removeElement(elem)
	}
}

func (t *fastTier) clearExpired(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for elem := t.order.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*fastEntry).expired(now) {
			t.removeElement(elem)
			removed++
		}
		elem = next
	}
	return removed
}

func (t *fastTier) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.order.Len()
}

// removeElement must be called with mu held for writing.
func (t *fastTier) removeElement(elem *list.Element) {
	if elem == nil {
		return
	}
	t.order.Remove(elem)
	delete(t.items, elem.Value.(*fastEntry).key)
}
