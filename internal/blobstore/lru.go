package blobstore

import "container/list"

// memLRU is a bounded in-memory LRU keyed by (assetId, Kind), used as
// the store's first tier (spec.md §4.6 "Memory LRU ... Default capacity
// 150 entries"). No pack example imports a generic LRU library, so this
// is hand-rolled container/list + map, same as the teacher's preference
// for small, direct stdlib data structures over a dependency.
type memLRU struct {
	capacity int
	ll       *list.List // front = most recently used
	index    map[cacheKey]*list.Element
}

type cacheKey struct {
	assetID string
	kind    Kind
}

type lruEntry struct {
	key  cacheKey
	blob []byte
}

func newMemLRU(capacity int) *memLRU {
	if capacity <= 0 {
		capacity = 150
	}
	return &memLRU{capacity: capacity, ll: list.New(), index: make(map[cacheKey]*list.Element)}
}

func (m *memLRU) get(key cacheKey) ([]byte, bool) {
	el, ok := m.index[key]
	if !ok {
		return nil, false
	}
	m.ll.MoveToFront(el)
	return el.Value.(*lruEntry).blob, true
}

// put inserts or refreshes key, evicting the least-recently-used entry
// when capacity is exceeded. Evicted blobs have no OS-level handle in
// this pure-Go port (spec.md's "canvas-object URL" release has no
// analogue here); eviction is simply dropping the reference.
func (m *memLRU) put(key cacheKey, blob []byte) {
	if el, ok := m.index[key]; ok {
		el.Value.(*lruEntry).blob = blob
		m.ll.MoveToFront(el)
		return
	}
	el := m.ll.PushFront(&lruEntry{key: key, blob: blob})
	m.index[key] = el
	for m.ll.Len() > m.capacity {
		back := m.ll.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*lruEntry)
		m.ll.Remove(back)
		delete(m.index, victim.key)
	}
}

func (m *memLRU) remove(key cacheKey) {
	if el, ok := m.index[key]; ok {
		m.ll.Remove(el)
		delete(m.index, key)
	}
}

// clear empties the LRU entirely, used on folder-change cleanup (spec.md
// §5 "drop the in-memory blob LRU").
func (m *memLRU) clear() {
	m.ll.Init()
	m.index = make(map[cacheKey]*list.Element)
}

func (m *memLRU) len() int {
	return m.ll.Len()
}
