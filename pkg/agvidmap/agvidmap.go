// Package agvidmap implements a two-level map keyed by the pair
// (manufacturer, serialNumber), with insertion-ordered iteration. It is
// the leaf collection type MasterControlClient uses as its connection
// tracker (spec §2 "AgvIdMap").
//
// The locking pattern mirrors the teacher's shadow.Manager: a single
// RWMutex guarding a map, with snapshot-returning accessors so callers
// never hold a reference into internal state.
package agvidmap

import (
	"sync"

	"github.com/daohu527/vlink/pkg/vda5050"
)

// Map is a concurrency-safe two-level map from vda5050.AgvId to a value
// of type V, iterating in the order entries were first inserted.
type Map[V any] struct {
	mu      sync.RWMutex
	level1  map[string]map[string]V // manufacturer -> serialNumber -> value
	order   []vda5050.AgvId
}

// New creates an empty Map.
func New[V any]() *Map[V] {
	return &Map[V]{level1: make(map[string]map[string]V)}
}

// Set inserts or replaces the value for id. Replacing an existing id does
// not change its position in iteration order.
func (m *Map[V]) Set(id vda5050.AgvId, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inner, ok := m.level1[id.Manufacturer]
	if !ok {
		inner = make(map[string]V)
		m.level1[id.Manufacturer] = inner
	}
	if _, existed := inner[id.SerialNumber]; !existed {
		m.order = append(m.order, id)
	}
	inner[id.SerialNumber] = v
}

// Get returns the value for id and whether it was present.
func (m *Map[V]) Get(id vda5050.AgvId) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var zero V
	inner, ok := m.level1[id.Manufacturer]
	if !ok {
		return zero, false
	}
	v, ok := inner[id.SerialNumber]
	return v, ok
}

// Delete removes id's value, if present.
func (m *Map[V]) Delete(id vda5050.AgvId) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inner, ok := m.level1[id.Manufacturer]
	if !ok {
		return
	}
	if _, ok := inner[id.SerialNumber]; !ok {
		return
	}
	delete(inner, id.SerialNumber)
	if len(inner) == 0 {
		delete(m.level1, id.Manufacturer)
	}
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries currently stored.
func (m *Map[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Entry pairs an id with its value, returned by Entries for snapshot
// iteration.
type Entry[V any] struct {
	ID    vda5050.AgvId
	Value V
}

// Entries returns a snapshot of all (id, value) pairs in insertion order.
// Mutating the Map afterward does not affect the returned slice.
func (m *Map[V]) Entries() []Entry[V] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry[V], 0, len(m.order))
	for _, id := range m.order {
		if inner, ok := m.level1[id.Manufacturer]; ok {
			if v, ok := inner[id.SerialNumber]; ok {
				out = append(out, Entry[V]{ID: id, Value: v})
			}
		}
	}
	return out
}

// ForEach invokes fn for every (id, value) pair in insertion order. fn must
// not mutate the Map.
func (m *Map[V]) ForEach(fn func(id vda5050.AgvId, v V)) {
	for _, e := range m.Entries() {
		fn(e.ID, e.Value)
	}
}
