package shadow

import (
	"testing"
	"time"

	"github.com/daohu527/vlink/pkg/vda5050"
)

func id(serial string) vda5050.AgvId {
	return vda5050.AgvId{Manufacturer: "acme", SerialNumber: serial}
}

func TestUpdateAndGet(t *testing.T) {
	m := NewManager()
	m.Update(id("car-001"), vda5050.State{OrderID: "o1"})

	entry, ok := m.Get(id("car-001"))
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if entry.State.OrderID != "o1" {
		t.Errorf("OrderID = %q", entry.State.OrderID)
	}
}

func TestGetMissing(t *testing.T) {
	m := NewManager()
	if _, ok := m.Get(id("unknown")); ok {
		t.Error("expected no entry for unknown AGV")
	}
}

func TestUpdateOverwrites(t *testing.T) {
	m := NewManager()
	m.Update(id("car-001"), vda5050.State{OrderID: "o1"})
	m.Update(id("car-001"), vda5050.State{OrderID: "o2"})

	entry, _ := m.Get(id("car-001"))
	if entry.State.OrderID != "o2" {
		t.Errorf("OrderID = %q, want o2", entry.State.OrderID)
	}
}

func TestAll(t *testing.T) {
	m := NewManager()
	m.Update(id("car-001"), vda5050.State{})
	m.Update(id("car-002"), vda5050.State{})

	all := m.All()
	if len(all) != 2 {
		t.Errorf("len(All) = %d, want 2", len(all))
	}
}

func TestActiveAgvs(t *testing.T) {
	m := NewManager()
	m.Update(id("car-001"), vda5050.State{})

	m.mu.Lock()
	m.shadows[id("car-old")] = &Entry{
		State:     vda5050.State{},
		UpdatedAt: time.Now().Add(-10 * time.Minute),
	}
	m.mu.Unlock()

	active := m.ActiveAgvs(time.Minute)
	if len(active) != 1 || active[0] != id("car-001") {
		t.Errorf("ActiveAgvs = %v, want [%v]", active, id("car-001"))
	}
}

func TestStaleAgvs(t *testing.T) {
	m := NewManager()
	m.Update(id("car-001"), vda5050.State{})

	m.mu.Lock()
	m.shadows[id("car-old")] = &Entry{
		State:     vda5050.State{},
		UpdatedAt: time.Now().Add(-10 * time.Minute),
	}
	m.mu.Unlock()

	stale := m.StaleAgvs(time.Minute)
	if len(stale) != 1 || stale[0] != id("car-old") {
		t.Errorf("StaleAgvs = %v, want [%v]", stale, id("car-old"))
	}
}

func TestRemove(t *testing.T) {
	m := NewManager()
	m.Update(id("car-001"), vda5050.State{})
	m.Remove(id("car-001"))

	if _, ok := m.Get(id("car-001")); ok {
		t.Error("entry should have been removed")
	}
}
