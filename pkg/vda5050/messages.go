package vda5050

// Envelope is implemented by every per-topic wire message so the
// transport layer can stamp header fields without knowing the payload
// shape. Each concrete message type embeds Header anonymously, so
// encoding/json promotes HeaderID/Timestamp/Version/Manufacturer/
// SerialNumber to the top level alongside the payload fields, matching
// the flat VDA 5050 wire format (spec §3 "Headered message").
type Envelope interface {
	SetHeader(h Header)
	GetHeader() Header
}

// OrderMessage is the "order" topic payload.
type OrderMessage struct {
	Header
	Order
}

func (m *OrderMessage) SetHeader(h Header) { m.Header = h }
func (m *OrderMessage) GetHeader() Header  { return m.Header }

// StateMessage is the "state" topic payload.
type StateMessage struct {
	Header
	State
}

func (m *StateMessage) SetHeader(h Header) { m.Header = h }
func (m *StateMessage) GetHeader() Header  { return m.Header }

// ConnectionMessage is the "connection" topic payload.
type ConnectionMessage struct {
	Header
	Connection
}

func (m *ConnectionMessage) SetHeader(h Header) { m.Header = h }
func (m *ConnectionMessage) GetHeader() Header  { return m.Header }

// VisualizationMessage is the "visualization" topic payload.
type VisualizationMessage struct {
	Header
	Visualization
}

func (m *VisualizationMessage) SetHeader(h Header) { m.Header = h }
func (m *VisualizationMessage) GetHeader() Header  { return m.Header }

// InstantActionsMessage is the "instantActions" topic payload.
type InstantActionsMessage struct {
	Header
	InstantActions
}

func (m *InstantActionsMessage) SetHeader(h Header) { m.Header = h }
func (m *InstantActionsMessage) GetHeader() Header  { return m.Header }

// FactsheetMessage is the "factsheet" topic payload.
type FactsheetMessage struct {
	Header
	Factsheet
}

func (m *FactsheetMessage) SetHeader(h Header) { m.Header = h }
func (m *FactsheetMessage) GetHeader() Header  { return m.Header }
