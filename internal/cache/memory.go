package cache

import (
	"container/list"
	"time"
)

// memoryTier is the in-process tier: a linked hash map giving O(1)
// promote-to-front on hit and O(1) evict-oldest on overflow.
type memoryTier struct {
	capacity int
	order    *list.List // front = most recently hit
	index    map[string]*list.Element
}

type memoryEntry struct {
	key       string
	value     string
	createdAt time.Time
	ttl       time.Duration
	hitCount  int
	size      int
}

func newMemoryTier(capacity int) *memoryTier {
	if capacity < 1 {
		capacity = 1
	}
	return &memoryTier{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// get returns the entry and promotes it to the front. Expiry is the caller's
// concern; get only tracks recency.
func (m *memoryTier) get(key string) (*memoryEntry, bool) {
	elem, ok := m.index[key]
	if !ok {
		return nil, false
	}
	m.order.MoveToFront(elem)
	return elem.Value.(*memoryEntry), true
}

// peek returns the entry without touching recency or hit counts.
func (m *memoryTier) peek(key string) (*memoryEntry, bool) {
	elem, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return elem.Value.(*memoryEntry), true
}

// put inserts or replaces an entry, evicting the least-recently-hit entry
// when the tier is full. Returns the evicted key, if any.
func (m *memoryTier) put(entry *memoryEntry) (string, bool) {
	if elem, ok := m.index[entry.key]; ok {
		elem.Value = entry
		m.order.MoveToFront(elem)
		return "", false
	}
	m.index[entry.key] = m.order.PushFront(entry)
	if m.order.Len() <= m.capacity {
		return "", false
	}
	oldest := m.order.Back()
	if oldest == nil {
		return "", false
	}
	evicted := oldest.Value.(*memoryEntry)
	m.order.Remove(oldest)
	delete(m.index, evicted.key)
	return evicted.key, true
}

func (m *memoryTier) remove(key string) {
	if elem, ok := m.index[key]; ok {
		m.order.Remove(elem)
		delete(m.index, key)
	}
}

func (m *memoryTier) clear() {
	m.order.Init()
	m.index = make(map[string]*list.Element)
}

func (m *memoryTier) len() int {
	return m.order.Len()
}

// expiredKeys returns keys whose entries have outlived their TTL at now.
func (m *memoryTier) expiredKeys(now time.Time) []string {
	var keys []string
	for key, elem := range m.index {
		entry := elem.Value.(*memoryEntry)
		if entry.ttl > 0 && now.Sub(entry.createdAt) > entry.ttl {
			keys = append(keys, key)
		}
	}
	return keys
}
