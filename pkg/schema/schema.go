// Package schema provides the version-gated structural validators
// referenced by spec §4.2/§6. It deliberately does not generate or
// interpret JSON Schema documents — that is out of scope (spec §1) — and
// instead hand-validates the handful of invariants the wire format
// requires per topic and VDA 5050 version.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/daohu527/vlink/pkg/vda5050"
)

// SupportedVersions are the full VDA 5050 versions ("x.y.z") this module
// validates against (spec §2 "Schema validators").
var SupportedVersions = map[string]bool{
	"1.1.0": true,
	"2.0.0": true,
	"2.1.0": true,
}

// ValidationError is a single structural problem found in a payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator validates topic-specific payloads for a single configured
// VDA 5050 version.
type Validator struct {
	version string
}

// New returns a Validator gated to exactly one VDA 5050 version string
// ("x.y.z"). Construction fails if the version is not supported.
func New(version string) (*Validator, error) {
	if !SupportedVersions[version] {
		return nil, fmt.Errorf("schema: unsupported VDA 5050 version %q", version)
	}
	return &Validator{version: version}, nil
}

// Version returns the version this Validator is gated to.
func (v *Validator) Version() string { return v.version }

// Validate checks a raw JSON payload against topic-specific structural
// rules. It first checks the payload's own "version" field matches the
// validator's configured version (spec §4.2), then applies per-topic
// structural checks. FactsheetRequest's 1.1-vs-2.0+ gating is a
// controller-level decision (spec §4.3), not a schema concern, and is not
// checked here.
func (v *Validator) Validate(topic vda5050.Topic, payload []byte) []ValidationError {
	var generic struct {
		Version      string `json:"version"`
		Manufacturer string `json:"manufacturer"`
		SerialNumber string `json:"serialNumber"`
	}
	if err := json.Unmarshal(payload, &generic); err != nil {
		return []ValidationError{{Field: "$", Message: "invalid JSON: " + err.Error()}}
	}

	var errs []ValidationError
	if generic.Version != v.version {
		errs = append(errs, ValidationError{Field: "version", Message: fmt.Sprintf("got %q, want %q", generic.Version, v.version)})
	}
	if generic.Manufacturer == "" {
		errs = append(errs, ValidationError{Field: "manufacturer", Message: "must not be empty"})
	}
	if generic.SerialNumber == "" {
		errs = append(errs, ValidationError{Field: "serialNumber", Message: "must not be empty"})
	}

	switch topic {
	case vda5050.TopicOrder:
		errs = append(errs, validateOrderPayload(payload)...)
	case vda5050.TopicInstantActions:
		errs = append(errs, validateInstantActionsPayload(payload)...)
	case vda5050.TopicState:
		errs = append(errs, validateStatePayload(payload)...)
	}
	return errs
}

func validateOrderPayload(payload []byte) []ValidationError {
	var o struct {
		OrderID string        `json:"orderId"`
		Nodes   []vda5050.Node `json:"nodes"`
		Edges   []vda5050.Edge `json:"edges"`
	}
	if err := json.Unmarshal(payload, &o); err != nil {
		return []ValidationError{{Field: "$", Message: err.Error()}}
	}
	var errs []ValidationError
	if o.OrderID == "" {
		errs = append(errs, ValidationError{Field: "orderId", Message: "must not be empty"})
	}
	if len(o.Nodes) == 0 {
		errs = append(errs, ValidationError{Field: "nodes", Message: "must contain at least one node"})
	}
	return errs
}

func validateInstantActionsPayload(payload []byte) []ValidationError {
	var a struct {
		Actions []vda5050.Action `json:"actions"`
	}
	if err := json.Unmarshal(payload, &a); err != nil {
		return []ValidationError{{Field: "$", Message: err.Error()}}
	}
	var errs []ValidationError
	for i, action := range a.Actions {
		if action.ActionID == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("actions[%d].actionId", i), Message: "must not be empty"})
		}
		if action.ActionType == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("actions[%d].actionType", i), Message: "must not be empty"})
		}
	}
	return errs
}

func validateStatePayload(payload []byte) []ValidationError {
	var s struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(payload, &s); err != nil {
		return []ValidationError{{Field: "$", Message: err.Error()}}
	}
	// orderId may legitimately be empty (no order assigned yet); no check.
	return nil
}
