package vda5050

// ConnectionState is the liveness state published on topic "connection".
type ConnectionState string

const (
	ConnectionOnline         ConnectionState = "ONLINE"
	ConnectionOffline        ConnectionState = "OFFLINE"
	ConnectionBroken         ConnectionState = "CONNECTIONBROKEN"
)

// Connection is the payload of the "connection" topic.
type Connection struct {
	ConnectionState ConnectionState `json:"connectionState"`
	Timestamp       string          `json:"timestamp"`
}

// InstantActions is the payload of the "instantActions" topic: a batch of
// out-of-band Actions (spec §4.3 "Instant actions").
type InstantActions struct {
	Actions []Action `json:"actions"`
}
