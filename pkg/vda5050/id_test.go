package vda5050

import "testing"

func TestAgvIdValid(t *testing.T) {
	cases := []struct {
		id   AgvId
		want bool
	}{
		{AgvId{"acme", "car-001"}, true},
		{AgvId{"acme", "car_001.A:1"}, true},
		{AgvId{"", "car-001"}, false},
		{AgvId{"acme", ""}, false},
		{AgvId{"acme", "car/001"}, false},
		{AgvId{"acme", "car 001"}, false},
	}
	for _, c := range cases {
		if got := c.id.Valid(); got != c.want {
			t.Errorf("AgvId(%q,%q).Valid() = %v, want %v", c.id.Manufacturer, c.id.SerialNumber, got, c.want)
		}
	}
}

func TestAgvIdMatches(t *testing.T) {
	id := AgvId{"acme", "car-001"}
	if !id.Matches(AgvId{}) {
		t.Error("empty partial should match any id")
	}
	if !id.Matches(AgvId{Manufacturer: "acme"}) {
		t.Error("manufacturer-only partial should match")
	}
	if id.Matches(AgvId{Manufacturer: "other"}) {
		t.Error("mismatched manufacturer should not match")
	}
	if id.Matches(AgvId{SerialNumber: "car-002"}) {
		t.Error("mismatched serial should not match")
	}
}

func TestAgvIdString(t *testing.T) {
	id := AgvId{"acme", "car-001"}
	if got := id.String(); got != "acme/car-001" {
		t.Errorf("String() = %q", got)
	}
}
