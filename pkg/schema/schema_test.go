package schema

import (
	"encoding/json"
	"testing"

	"github.com/daohu527/vlink/pkg/vda5050"
)

func TestNewRejectsUnsupportedVersion(t *testing.T) {
	if _, err := New("0.9.9"); err == nil {
		t.Error("expected error for unsupported version")
	}
}

func TestValidateRejectsVersionMismatch(t *testing.T) {
	v, err := New("2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	payload, _ := json.Marshal(map[string]any{
		"version":      "1.1.0",
		"manufacturer": "acme",
		"serialNumber": "car-001",
		"orderId":      "o1",
		"nodes":        []any{map[string]any{"nodeId": "n1"}},
	})
	errs := v.Validate(vda5050.TopicOrder, payload)
	found := false
	for _, e := range errs {
		if e.Field == "version" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a version mismatch error, got %v", errs)
	}
}

func TestValidateOrderRequiresNodes(t *testing.T) {
	v, _ := New("2.0.0")
	payload, _ := json.Marshal(map[string]any{
		"version":      "2.0.0",
		"manufacturer": "acme",
		"serialNumber": "car-001",
		"orderId":      "o1",
		"nodes":        []any{},
	})
	errs := v.Validate(vda5050.TopicOrder, payload)
	found := false
	for _, e := range errs {
		if e.Field == "nodes" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a nodes error, got %v", errs)
	}
}

func TestValidateAcceptsWellFormedOrder(t *testing.T) {
	v, _ := New("2.0.0")
	payload, _ := json.Marshal(map[string]any{
		"version":      "2.0.0",
		"manufacturer": "acme",
		"serialNumber": "car-001",
		"orderId":      "o1",
		"nodes":        []any{map[string]any{"nodeId": "n1"}},
		"edges":        []any{},
	})
	if errs := v.Validate(vda5050.TopicOrder, payload); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateInstantActionsRequiresActionID(t *testing.T) {
	v, _ := New("2.0.0")
	payload, _ := json.Marshal(map[string]any{
		"version":      "2.0.0",
		"manufacturer": "acme",
		"serialNumber": "car-001",
		"actions":      []any{map[string]any{"actionType": "cancelOrder"}},
	})
	errs := v.Validate(vda5050.TopicInstantActions, payload)
	found := false
	for _, e := range errs {
		if e.Field == "actions[0].actionId" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected missing actionId error, got %v", errs)
	}
}
