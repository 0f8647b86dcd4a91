package cache

import (
	"container/list"
	"sync"
)

// memoryEntry links the cache key and the entry to the list element.
type memoryEntry struct {
	key   string
	value *Entry
}

// MemoryStore implements Store with a hard entry-count limit. When full, the
// entry written longest ago is evicted.
type MemoryStore struct {
	mutex sync.RWMutex
	// Doubly linked list in write order, newest at the front
	order   *list.List
	entries map[string]*list.Element
	// Hard limit on stored entries
	maxEntries int
}

// NewMemoryStore creates a new MemoryStore holding at most maxEntries entries.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultConfig.MaxEntries
	}
	return &MemoryStore{
		order:      list.New(),
		entries:    make(map[string]*list.Element),
		maxEntries: maxEntries,
	}
}

// Get retrieves an entry. Reads do not change eviction order.
func (m *MemoryStore) Get(key string) (*Entry, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	element, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	return element.Value.(*memoryEntry).value, true
}

// Set adds or overwrites an entry, evicting the oldest write first when a new
// key would exceed the limit.
func (m *MemoryStore) Set(key string, entry *Entry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if element, ok := m.entries[key]; ok {
		element.Value.(*memoryEntry).value = entry
		m.order.MoveToFront(element)
		return nil
	}

	// Eviction
	for len(m.entries) >= m.maxEntries {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		evicted := m.order.Remove(oldest).(*memoryEntry)
		delete(m.entries, evicted.key)
	}
	m.entries[key] = m.order.PushFront(&memoryEntry{key: key, value: entry})
	return nil
}

// Delete removes an entry from the cache.
func (m *MemoryStore) Delete(key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if element, ok := m.entries[key]; ok {
		m.order.Remove(element)
		delete(m.entries, key)
	}
	return nil
}

// CompareAndDelete removes key if it still holds the very entry old.
func (m *MemoryStore) CompareAndDelete(key string, old *Entry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if element, ok := m.entries[key]; ok && element.Value.(*memoryEntry).value == old {
		m.order.Remove(element)
		delete(m.entries, key)
	}
	return nil
}

// Clear drops every entry.
func (m *MemoryStore) Clear() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.order.Init()
	m.entries = make(map[string]*list.Element)
	return nil
}

// Entries returns the stored entries, newest first.
func (m *MemoryStore) Entries() []*Entry {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]*Entry, 0, len(m.entries))
	for element := m.order.Front(); element != nil; element = element.Next() {
		out = append(out, element.Value.(*memoryEntry).value)
	}
	return out
}

// Close is a no-op for in-memory, but required by the interface.
func (m *MemoryStore) Close() error {
	return nil
}
