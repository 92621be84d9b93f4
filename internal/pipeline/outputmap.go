package pipeline

import (
	"maps"
	"sync"
)

// OutputMap is the shared key/value store every extra-info fetcher writes
// into during a run. One mutex serializes all access; when two fetchers
// write the same key, the last writer wins. Fetchers that need isolation
// should namespace their keys.
//
// The map object is long-lived: fetchers are connected to it once, and the
// resolver clears its contents in place at the start of every run so those
// references stay valid.
type OutputMap struct {
	mu     sync.Mutex
	values map[string]any
}

// NewOutputMap returns an empty OutputMap.
func NewOutputMap() *OutputMap {
	return &OutputMap{values: make(map[string]any)}
}

// Set stores value under key.
func (m *OutputMap) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Get returns the value stored under key and whether it exists.
func (m *OutputMap) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of stored keys.
func (m *OutputMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

// Snapshot returns a copy of the current contents.
func (m *OutputMap) Snapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.values)
}

// Reset discards all contents in place, keeping the map object (and every
// connected fetcher's reference to it) valid.
func (m *OutputMap) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.values)
}
