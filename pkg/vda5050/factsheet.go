package vda5050

// Factsheet is the payload of the "factsheet" topic: static capability
// description of an AGV. The VDA 5050 factsheet schema is large; this
// model keeps the fields the controller and adapters actually populate,
// per spec §4.3 ("factsheetRequest" is v>=2.0 only).
type Factsheet struct {
	TypeSpecification   TypeSpecification    `json:"typeSpecification"`
	PhysicalParameters   PhysicalParameters   `json:"physicalParameters"`
	ProtocolLimits       ProtocolLimits       `json:"protocolLimits"`
	AgvActions           []AgvActionSpec      `json:"agvActions,omitempty"`
}

// TypeSpecification describes the vehicle type/series.
type TypeSpecification struct {
	SeriesName      string   `json:"seriesName"`
	AgvKinematic    string   `json:"agvKinematic"`
	AgvClass        string   `json:"agvClass"`
	MaxLoadMass     float64  `json:"maxLoadMass,omitempty"`
	LocalizationTypes []string `json:"localizationTypes,omitempty"`
}

// PhysicalParameters describes the vehicle's physical envelope.
type PhysicalParameters struct {
	SpeedMin   float64 `json:"speedMin"`
	SpeedMax   float64 `json:"speedMax"`
	Length     float64 `json:"length,omitempty"`
	Width      float64 `json:"width,omitempty"`
	HeightMax  float64 `json:"heightMax,omitempty"`
}

// ProtocolLimits reports the transport-level limits the adapter advertises.
type ProtocolLimits struct {
	MaxStringLens    map[string]uint32 `json:"maxStringLens,omitempty"`
	MaxArrayLens     map[string]uint32 `json:"maxArrayLens,omitempty"`
	Timing           map[string]float64 `json:"timing,omitempty"`
}

// AgvActionSpec advertises an actionType the AGV can execute, used by
// orchestration tooling to validate orders before sending them.
type AgvActionSpec struct {
	ActionType        string   `json:"actionType"`
	ActionScopes      []string `json:"actionScopes,omitempty"` // "INSTANT" / "NODE" / "EDGE"
}
