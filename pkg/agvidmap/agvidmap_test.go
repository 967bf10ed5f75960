package agvidmap

import (
	"testing"

	"github.com/daohu527/vlink/pkg/vda5050"
)

func TestSetGet(t *testing.T) {
	m := New[int]()
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-001"}
	m.Set(id, 42)

	v, ok := m.Get(id)
	if !ok || v != 42 {
		t.Errorf("Get = (%d, %v), want (42, true)", v, ok)
	}
}

func TestGetMissing(t *testing.T) {
	m := New[int]()
	if _, ok := m.Get(vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-001"}); ok {
		t.Error("expected no entry")
	}
}

func TestDelete(t *testing.T) {
	m := New[int]()
	id := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-001"}
	m.Set(id, 1)
	m.Delete(id)
	if _, ok := m.Get(id); ok {
		t.Error("entry should have been removed")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestInsertionOrder(t *testing.T) {
	m := New[int]()
	ids := []vda5050.AgvId{
		{Manufacturer: "acme", SerialNumber: "car-003"},
		{Manufacturer: "acme", SerialNumber: "car-001"},
		{Manufacturer: "zeta", SerialNumber: "car-002"},
	}
	for i, id := range ids {
		m.Set(id, i)
	}
	// Replacing an existing entry must not move it.
	m.Set(ids[0], 99)

	entries := m.Entries()
	if len(entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(entries))
	}
	for i, e := range entries {
		if e.ID != ids[i] {
			t.Errorf("Entries[%d].ID = %v, want %v", i, e.ID, ids[i])
		}
	}
	if entries[0].Value != 99 {
		t.Errorf("Entries[0].Value = %d, want 99 (updated in place)", entries[0].Value)
	}
}

func TestDifferentManufacturersSameSerial(t *testing.T) {
	m := New[string]()
	a := vda5050.AgvId{Manufacturer: "acme", SerialNumber: "car-001"}
	b := vda5050.AgvId{Manufacturer: "zeta", SerialNumber: "car-001"}
	m.Set(a, "a")
	m.Set(b, "b")

	va, _ := m.Get(a)
	vb, _ := m.Get(b)
	if va != "a" || vb != "b" {
		t.Errorf("got (%q, %q), want (\"a\", \"b\")", va, vb)
	}
}
