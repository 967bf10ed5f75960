// Package shadow tracks the recency of every AGV's last reported State
// for the master-control side, so staleness (an AGV that stopped
// publishing state but never sent an explicit CONNECTIONBROKEN) can be
// detected independently of the "connection" topic (spec §4.4).
package shadow

import (
	"sync"
	"time"

	"github.com/daohu527/vlink/pkg/vda5050"
)

// Entry is the liveness record for a single AGV.
type Entry struct {
	State     vda5050.State
	UpdatedAt time.Time
}

// Manager stores the last-seen State and timestamp per AGV.
type Manager struct {
	mu      sync.RWMutex
	shadows map[vda5050.AgvId]*Entry
}

// NewManager creates an empty shadow Manager.
func NewManager() *Manager {
	return &Manager{
		shadows: make(map[vda5050.AgvId]*Entry),
	}
}

// Update stores the latest known State for id, stamped with the time it
// was received.
func (m *Manager) Update(id vda5050.AgvId, state vda5050.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shadows[id] = &Entry{State: state, UpdatedAt: time.Now()}
}

// Get returns the shadow entry for id, or (nil, false) if not found.
func (m *Manager) Get(id vda5050.AgvId) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.shadows[id]
	return e, ok
}

// All returns a snapshot of every current shadow entry keyed by AgvId.
func (m *Manager) All() map[vda5050.AgvId]*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[vda5050.AgvId]*Entry, len(m.shadows))
	for id, e := range m.shadows {
		result[id] = e
	}
	return result
}

// ActiveAgvs returns the ids of AGVs whose last update is within maxAge.
func (m *Manager) ActiveAgvs(maxAge time.Duration) []vda5050.AgvId {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().Add(-maxAge)
	ids := make([]vda5050.AgvId, 0)
	for id, e := range m.shadows {
		if e.UpdatedAt.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// StaleAgvs returns the ids of AGVs that have been seen before but whose
// last update is older than maxAge -- candidates for a synthetic
// CONNECTIONBROKEN if the broker's last-will message was itself lost.
func (m *Manager) StaleAgvs(maxAge time.Duration) []vda5050.AgvId {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().Add(-maxAge)
	ids := make([]vda5050.AgvId, 0)
	for id, e := range m.shadows {
		if e.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Remove deletes the shadow entry for id.
func (m *Manager) Remove(id vda5050.AgvId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shadows, id)
}
